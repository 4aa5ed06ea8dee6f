package dashboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ChartMetadata is a row of graficos_dashboard: a parameterised query
// stored as data. Read-only to the engine.
type ChartMetadata struct {
	ID            int64                  `json:"id"`
	Slug          string                 `json:"slug"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	QueryTemplate string                 `json:"-"`
	ParamSchema   ParamSchema            `json:"-"`
	DefaultParams map[string]interface{} `json:"-"`
	ResultShape   json.RawMessage        `json:"result_shape,omitempty"`
	AllowedRoles  []string               `json:"-"`
}

// TableMetadata is a row of dashboard_tables. column_config and
// primary_key ride along for the frontend; the engine does not interpret
// them.
type TableMetadata struct {
	ChartMetadata
	ColumnConfig json.RawMessage `json:"column_config,omitempty"`
	PrimaryKey   string          `json:"primary_key,omitempty"`
}

// MetadataRepository loads chart and table metadata from a tenant database
type MetadataRepository struct{}

// NewMetadataRepository creates a metadata repository
func NewMetadataRepository() *MetadataRepository {
	return &MetadataRepository{}
}

type chartRow struct {
	ID            int64          `db:"id"`
	Slug          string         `db:"slug"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	QueryTemplate string         `db:"query_template"`
	ParamSchema   []byte         `db:"param_schema"`
	DefaultParams []byte         `db:"default_params"`
	ResultShape   []byte         `db:"result_shape"`
	AllowedRoles  pq.StringArray `db:"allowed_roles"`
}

type tableRow struct {
	chartRow
	ColumnConfig []byte `db:"column_config"`
	PrimaryKey   string `db:"primary_key"`
}

// ListCharts returns active chart metadata ordered by id, optionally
// filtered to the given slugs.
func (r *MetadataRepository) ListCharts(ctx context.Context, conn *sqlx.Conn, slugs []string) ([]ChartMetadata, error) {
	query := `
		SELECT id, slug,
		       COALESCE(title, '') AS title,
		       COALESCE(description, '') AS description,
		       COALESCE(query_template, '') AS query_template,
		       COALESCE(param_schema, '{}') AS param_schema,
		       COALESCE(default_params, '{}') AS default_params,
		       COALESCE(result_shape, 'null') AS result_shape,
		       COALESCE(allowed_roles, '{}') AS allowed_roles
		FROM graficos_dashboard
		WHERE is_active = true
	`
	var args []interface{}
	if len(slugs) > 0 {
		query += " AND slug = ANY($1)"
		args = append(args, pq.Array(slugs))
	}
	query += " ORDER BY id"

	rows, err := conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart metadata: %w", err)
	}
	defer rows.Close()

	var charts []ChartMetadata
	for rows.Next() {
		var row chartRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan chart metadata: %w", err)
		}
		chart, err := row.toChart()
		if err != nil {
			return nil, err
		}
		charts = append(charts, chart)
	}
	return charts, rows.Err()
}

// ListTables returns active table metadata ordered by id, optionally
// filtered to the given slugs.
func (r *MetadataRepository) ListTables(ctx context.Context, conn *sqlx.Conn, slugs []string) ([]TableMetadata, error) {
	query := `
		SELECT id, slug,
		       COALESCE(title, '') AS title,
		       COALESCE(description, '') AS description,
		       COALESCE(query_template, '') AS query_template,
		       COALESCE(param_schema, '{}') AS param_schema,
		       COALESCE(default_params, '{}') AS default_params,
		       COALESCE(result_shape, 'null') AS result_shape,
		       COALESCE(allowed_roles, '{}') AS allowed_roles,
		       COALESCE(column_config, '[]') AS column_config,
		       COALESCE(primary_key, '') AS primary_key
		FROM dashboard_tables
		WHERE is_active = true
	`
	var args []interface{}
	if len(slugs) > 0 {
		query += " AND slug = ANY($1)"
		args = append(args, pq.Array(slugs))
	}
	query += " ORDER BY id"

	rows, err := conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load table metadata: %w", err)
	}
	defer rows.Close()

	var tables []TableMetadata
	for rows.Next() {
		var row tableRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan table metadata: %w", err)
		}
		chart, err := row.chartRow.toChart()
		if err != nil {
			return nil, err
		}
		tables = append(tables, TableMetadata{
			ChartMetadata: chart,
			ColumnConfig:  json.RawMessage(row.ColumnConfig),
			PrimaryKey:    row.PrimaryKey,
		})
	}
	return tables, rows.Err()
}

// ClientsAccessColumn probes the tenant schema for the column the
// baseline clientes table orders by: ultimo_acesso when present,
// created_at as fallback. Empty means the table does not exist.
func (r *MetadataRepository) ClientsAccessColumn(ctx context.Context, conn *sqlx.Conn) (string, error) {
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = 'clientes' AND column_name = ANY($1)
	`
	rows, err := conn.QueryxContext(ctx, query, pq.Array([]string{"ultimo_acesso", "created_at"}))
	if err != nil {
		return "", fmt.Errorf("failed to probe clientes table: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, 2)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case found["ultimo_acesso"]:
		return "ultimo_acesso", nil
	case found["created_at"]:
		return "created_at", nil
	default:
		return "", nil
	}
}

func (row *chartRow) toChart() (ChartMetadata, error) {
	chart := ChartMetadata{
		ID:            row.ID,
		Slug:          row.Slug,
		Title:         row.Title,
		Description:   row.Description,
		QueryTemplate: row.QueryTemplate,
		ResultShape:   json.RawMessage(row.ResultShape),
		AllowedRoles:  []string(row.AllowedRoles),
	}

	if len(row.ParamSchema) > 0 {
		if err := json.Unmarshal(row.ParamSchema, &chart.ParamSchema); err != nil {
			return chart, fmt.Errorf("invalid param_schema for slug %s: %w", row.Slug, err)
		}
	}
	if len(row.DefaultParams) > 0 {
		if err := json.Unmarshal(row.DefaultParams, &chart.DefaultParams); err != nil {
			return chart, fmt.Errorf("invalid default_params for slug %s: %w", row.Slug, err)
		}
	}
	return chart, nil
}
