// Package admin implements the administrative endpoints: metadata
// management in the tenant database, user registration in the identity
// provider and the company listing.
package admin

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/datapainel/datapainel-backend/pkg/database"
	"github.com/datapainel/datapainel-backend/pkg/errors"
)

// GraphInput is a chart metadata row as submitted by an admin. A zero
// id inserts; a positive one updates.
type GraphInput struct {
	ID            int64           `json:"id"`
	Slug          string          `json:"slug" validate:"required"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	QueryTemplate string          `json:"query_template" validate:"required"`
	ParamSchema   json.RawMessage `json:"param_schema"`
	DefaultParams json.RawMessage `json:"default_params"`
	ResultShape   json.RawMessage `json:"result_shape"`
	AllowedRoles  []string        `json:"allowed_roles"`
	IsActive      *bool           `json:"is_active"`
}

// TableInput is a table metadata row; charts plus the display columns
type TableInput struct {
	GraphInput
	ColumnConfig json.RawMessage `json:"column_config"`
	PrimaryKey   string          `json:"primary_key"`
}

// MetadataRepository writes chart and table metadata into a tenant database
type MetadataRepository struct{}

// NewMetadataRepository creates the admin metadata repository
func NewMetadataRepository() *MetadataRepository {
	return &MetadataRepository{}
}

// SaveGraph inserts or updates a graficos_dashboard row and returns its id.
// A duplicate slug on insert maps to Conflict.
func (r *MetadataRepository) SaveGraph(ctx context.Context, conn *sqlx.Conn, in *GraphInput) (int64, error) {
	if in.ID > 0 {
		query := `
			UPDATE graficos_dashboard
			SET slug = $1, title = $2, description = $3, query_template = $4,
			    param_schema = $5, default_params = $6, result_shape = $7,
			    allowed_roles = $8, is_active = $9
			WHERE id = $10
			RETURNING id
		`
		return r.save(ctx, conn, query,
			in.Slug, in.Title, in.Description, in.QueryTemplate,
			jsonOr(in.ParamSchema, "{}"), jsonOr(in.DefaultParams, "{}"), jsonOr(in.ResultShape, "null"),
			pq.Array(roles(in.AllowedRoles)), active(in.IsActive), in.ID,
		)
	}

	query := `
		INSERT INTO graficos_dashboard
			(slug, title, description, query_template, param_schema,
			 default_params, result_shape, allowed_roles, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return r.save(ctx, conn, query,
		in.Slug, in.Title, in.Description, in.QueryTemplate,
		jsonOr(in.ParamSchema, "{}"), jsonOr(in.DefaultParams, "{}"), jsonOr(in.ResultShape, "null"),
		pq.Array(roles(in.AllowedRoles)), active(in.IsActive),
	)
}

// SaveTable inserts or updates a dashboard_tables row and returns its id
func (r *MetadataRepository) SaveTable(ctx context.Context, conn *sqlx.Conn, in *TableInput) (int64, error) {
	if in.ID > 0 {
		query := `
			UPDATE dashboard_tables
			SET slug = $1, title = $2, description = $3, query_template = $4,
			    param_schema = $5, default_params = $6, result_shape = $7,
			    allowed_roles = $8, is_active = $9, column_config = $10, primary_key = $11
			WHERE id = $12
			RETURNING id
		`
		return r.save(ctx, conn, query,
			in.Slug, in.Title, in.Description, in.QueryTemplate,
			jsonOr(in.ParamSchema, "{}"), jsonOr(in.DefaultParams, "{}"), jsonOr(in.ResultShape, "null"),
			pq.Array(roles(in.AllowedRoles)), active(in.IsActive),
			jsonOr(in.ColumnConfig, "[]"), in.PrimaryKey, in.ID,
		)
	}

	query := `
		INSERT INTO dashboard_tables
			(slug, title, description, query_template, param_schema,
			 default_params, result_shape, allowed_roles, is_active,
			 column_config, primary_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	return r.save(ctx, conn, query,
		in.Slug, in.Title, in.Description, in.QueryTemplate,
		jsonOr(in.ParamSchema, "{}"), jsonOr(in.DefaultParams, "{}"), jsonOr(in.ResultShape, "null"),
		pq.Array(roles(in.AllowedRoles)), active(in.IsActive),
		jsonOr(in.ColumnConfig, "[]"), in.PrimaryKey,
	)
}

func (r *MetadataRepository) save(ctx context.Context, conn *sqlx.Conn, query string, args ...interface{}) (int64, error) {
	var id int64
	err := conn.QueryRowxContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return 0, appErr
	}
	if err == sql.ErrNoRows {
		return 0, errors.NotFound("registro de metadata não encontrado")
	}
	return 0, err
}

func jsonOr(raw json.RawMessage, fallback string) []byte {
	if len(raw) == 0 {
		return []byte(fallback)
	}
	return []byte(raw)
}

func roles(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func active(in *bool) bool {
	if in == nil {
		return true
	}
	return *in
}
