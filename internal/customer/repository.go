// Package customer exposes the one mutable customer action the panel
// has: pausing and resuming a cliente.
package customer

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/datapainel/datapainel-backend/pkg/database"
	"github.com/datapainel/datapainel-backend/pkg/errors"
)

// Repository operates on the tenant's clientes table
type Repository struct{}

// NewRepository creates a customer repository
func NewRepository() *Repository {
	return &Repository{}
}

// TogglePaused flips the paused flag of one customer and returns the
// new value.
func (r *Repository) TogglePaused(ctx context.Context, conn *sqlx.Conn, customerID int64) (bool, error) {
	query := `
		UPDATE clientes
		SET paused = NOT COALESCE(paused, false)
		WHERE id = $1
		RETURNING paused
	`

	var paused bool
	err := conn.QueryRowxContext(ctx, query, customerID).Scan(&paused)
	if err == nil {
		return paused, nil
	}
	if err == sql.ErrNoRows {
		return false, errors.NotFound("Cliente não encontrado")
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return false, appErr
	}
	return false, err
}
