// Package registry reads and writes the central db_info table that maps a
// principal to its tenant database coordinates.
package registry

import (
	"context"
	"net/url"

	"github.com/datapainel/datapainel-backend/internal/supabase"
	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/tenant"
)

const table = "db_info"

// Directory is the tenant directory backed by the central registry
type Directory struct {
	client *supabase.Client
	logger *logger.Logger
}

// NewDirectory creates a tenant directory
func NewDirectory(client *supabase.Client, log *logger.Logger) *Directory {
	return &Directory{
		client: client,
		logger: log,
	}
}

// Company is the admin-facing listing entry; credentials are not exposed
type Company struct {
	UserID      string `json:"id_user"`
	CompanyName string `json:"company_name"`
	Database    string `json:"db_name"`
	Host        string `json:"db_host"`
}

// Lookup fetches the tenant coordinates for a principal. A missing row
// yields NotFound.
func (d *Directory) Lookup(ctx context.Context, principalID string) (*tenant.Coordinates, error) {
	query := "id_user=eq." + url.QueryEscape(principalID) + "&select=*&limit=1"

	var rows []tenant.Coordinates
	if err := d.client.Select(ctx, table, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("Dados de conexão não encontrados para este usuário")
	}

	return &rows[0], nil
}

// List returns every registered company, without credentials
func (d *Directory) List(ctx context.Context) ([]Company, error) {
	query := "select=id_user,company_name,db_name,db_host&order=company_name.asc"

	var rows []Company
	if err := d.client.Select(ctx, table, query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert registers the coordinates for a newly created tenant user
func (d *Directory) Insert(ctx context.Context, coords *tenant.Coordinates) error {
	return d.client.Insert(ctx, table, coords, supabase.WriteOptions{}, nil)
}
