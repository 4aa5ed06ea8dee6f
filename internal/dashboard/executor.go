package dashboard

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/tenant"
)

// SlugRequest asks for one chart or table by slug, with per-slug
// parameter overrides.
type SlugRequest struct {
	Slug   string                 `json:"slug"`
	Params map[string]interface{} `json:"params"`
}

// BatchRequest is the /fetchUserData body. Empty graphs means every
// active chart; empty tables means every active table plus the baseline
// clientes listing.
type BatchRequest struct {
	Graphs []SlugRequest `json:"graphs"`
	Tables []SlugRequest `json:"tables"`
}

// DebugInfo exposes what actually ran for one slug
type DebugInfo struct {
	Slug     string                   `json:"slug"`
	Params   map[string]interface{}   `json:"params"`
	Query    string                   `json:"query"`
	Args     []interface{}            `json:"args"`
	RowCount int                      `json:"rowCount"`
	Sample   []map[string]interface{} `json:"sample"`
}

// BatchResponse is the full batch document. Dataset keys are metadata
// ids; error keys are the requested slugs.
type BatchResponse struct {
	CompanyName string                             `json:"company_name"`
	Graphics    []ChartMetadata                    `json:"graphics"`
	Datasets    map[int64][]map[string]interface{} `json:"datasets"`
	Debug       map[int64]*DebugInfo               `json:"debug"`
	Errors      map[string]string                  `json:"errors"`
	Tables      []TableMetadata                    `json:"tables"`
	TableRows   map[int64][]map[string]interface{} `json:"tableRows"`
	TableDebug  map[int64]*DebugInfo               `json:"tableDebug"`
	TableErrors map[string]string                  `json:"tableErrors"`
}

const (
	errChartNotFound = "Gráfico não encontrado ou inativo."
	errTableNotFound = "Tabela não encontrada ou inativa."
	errEmptyTemplate = "Query template vazio."
	errRoleDenied    = "Usuário não possui permissão para acessar este recurso."

	// clientsSlug is the baseline listing every tenant gets without a
	// dashboard_tables row.
	clientsSlug = "clientes"

	debugSampleSize = 5
)

// Executor runs a batch of metadata-driven queries against one tenant
// connection. Per-slug failures are downgraded to entries in the errors
// maps; only infrastructure failures surface as errors.
type Executor struct {
	metadata *MetadataRepository
	logger   *logger.Logger
	now      func() time.Time
}

// NewExecutor creates a batch executor
func NewExecutor(metadata *MetadataRepository, log *logger.Logger) *Executor {
	return &Executor{
		metadata: metadata,
		logger:   log,
		now:      time.Now,
	}
}

// Execute runs the requested charts and tables and assembles the batch
// document. The tenant coordinates are taken from the context.
func (e *Executor) Execute(ctx context.Context, conn *sqlx.Conn, principal *identity.Principal, req *BatchRequest) (*BatchResponse, error) {
	var companyName string
	if coords, err := tenant.FromContext(ctx); err == nil {
		companyName = coords.CompanyName
	}

	resp := &BatchResponse{
		CompanyName: companyName,
		Graphics:    []ChartMetadata{},
		Datasets:    make(map[int64][]map[string]interface{}),
		Debug:       make(map[int64]*DebugInfo),
		Errors:      make(map[string]string),
		Tables:      []TableMetadata{},
		TableRows:   make(map[int64][]map[string]interface{}),
		TableDebug:  make(map[int64]*DebugInfo),
		TableErrors: make(map[string]string),
	}

	roles := identity.ExtractRoles(principal.AppMetadata, principal.UserMetadata, "user", identity.RoleAuthenticated)

	if err := e.executeCharts(ctx, conn, roles, req.Graphs, resp); err != nil {
		return nil, err
	}
	if err := e.executeTables(ctx, conn, roles, req.Tables, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func (e *Executor) executeCharts(ctx context.Context, conn *sqlx.Conn, roles []string, requests []SlugRequest, resp *BatchResponse) error {
	slugs, paramsBySlug := indexRequests(requests)

	charts, err := e.metadata.ListCharts(ctx, conn, slugs)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(charts))
	for _, chart := range charts {
		seen[chart.Slug] = true

		debug, rows, runErr := e.run(ctx, conn, chart.Slug, chart.QueryTemplate, chart.ParamSchema, chart.DefaultParams, chart.AllowedRoles, paramsBySlug[chart.Slug], roles)
		if runErr != "" {
			resp.Errors[chart.Slug] = runErr
			continue
		}

		resp.Graphics = append(resp.Graphics, chart)
		resp.Datasets[chart.ID] = rows
		resp.Debug[chart.ID] = debug
	}

	for _, slug := range slugs {
		if !seen[slug] {
			resp.Errors[slug] = errChartNotFound
		}
	}
	return nil
}

func (e *Executor) executeTables(ctx context.Context, conn *sqlx.Conn, roles []string, requests []SlugRequest, resp *BatchResponse) error {
	slugs, paramsBySlug := indexRequests(requests)

	tables, err := e.metadata.ListTables(ctx, conn, slugs)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(tables)+1)
	for _, table := range tables {
		seen[table.Slug] = true

		debug, rows, runErr := e.run(ctx, conn, table.Slug, table.QueryTemplate, table.ParamSchema, table.DefaultParams, table.AllowedRoles, paramsBySlug[table.Slug], roles)
		if runErr != "" {
			resp.TableErrors[table.Slug] = runErr
			continue
		}

		resp.Tables = append(resp.Tables, table)
		resp.TableRows[table.ID] = rows
		resp.TableDebug[table.ID] = debug
	}

	// The clientes listing needs no dashboard_tables row: it is served
	// whenever no explicit selection was made, or asked for by slug, as
	// long as the tenant schema actually has the table.
	wantClients := len(slugs) == 0 || containsSlug(slugs, clientsSlug)
	if wantClients && !seen[clientsSlug] {
		table, ok, probeErr := e.clientsTable(ctx, conn)
		if probeErr != nil {
			return probeErr
		}
		if ok {
			seen[clientsSlug] = true
			debug, rows, runErr := e.run(ctx, conn, table.Slug, table.QueryTemplate, table.ParamSchema, table.DefaultParams, table.AllowedRoles, paramsBySlug[clientsSlug], roles)
			if runErr != "" {
				resp.TableErrors[clientsSlug] = runErr
			} else {
				resp.Tables = append(resp.Tables, table)
				resp.TableRows[table.ID] = rows
				resp.TableDebug[table.ID] = debug
			}
		}
	}

	for _, slug := range slugs {
		if !seen[slug] {
			resp.TableErrors[slug] = errTableNotFound
		}
	}
	return nil
}

// run executes one metadata row. A non-empty third return is the
// user-facing per-slug error.
func (e *Executor) run(ctx context.Context, conn *sqlx.Conn, slug, template string, schema ParamSchema, defaults map[string]interface{}, allowedRoles []string, provided map[string]interface{}, roles []string) (*DebugInfo, []map[string]interface{}, string) {
	if template == "" {
		return nil, nil, errEmptyTemplate
	}
	if len(allowedRoles) > 0 && !anyRole(roles, allowedRoles) {
		return nil, nil, errRoleDenied
	}

	params, extras, err := ResolveParams(schema, defaults, provided, e.now())
	if err != nil {
		return nil, nil, err.Error()
	}
	if len(extras) > 0 {
		e.logger.Debug().Str("slug", slug).Strs("params", extras).Msg("undeclared parameters passed through")
	}

	stmt, err := Compile(template, params, schema)
	if err != nil {
		return nil, nil, err.Error()
	}

	rows, err := e.query(ctx, conn, stmt)
	if err != nil {
		e.logger.Warn().Err(err).Str("slug", slug).Msg("query execution failed")
		return nil, nil, err.Error()
	}

	sample := rows
	if len(sample) > debugSampleSize {
		sample = sample[:debugSampleSize]
	}
	debug := &DebugInfo{
		Slug:     slug,
		Params:   params,
		Query:    stmt.Text,
		Args:     stmt.Args,
		RowCount: len(rows),
		Sample:   sample,
	}
	return debug, rows, ""
}

// query binds the compiled arguments, wrapping array-typed ones for the
// driver, and returns the sanitised result set.
func (e *Executor) query(ctx context.Context, conn *sqlx.Conn, stmt *Statement) ([]map[string]interface{}, error) {
	args := make([]interface{}, len(stmt.Args))
	for i, arg := range stmt.Args {
		if stmt.ArrayArgs[i+1] {
			args[i] = pq.Array(arg)
		} else {
			args[i] = arg
		}
	}

	dbRows, err := conn.QueryxContext(ctx, stmt.Text, args...)
	if err != nil {
		return nil, err
	}
	defer dbRows.Close()

	rows := []map[string]interface{}{}
	for dbRows.Next() {
		row := make(map[string]interface{})
		if err := dbRows.MapScan(row); err != nil {
			return nil, err
		}
		rows = append(rows, SanitizeRow(row))
	}
	return rows, dbRows.Err()
}

// clientsTable synthesises the baseline listing metadata. The second
// return is false when the tenant schema has no clientes table.
func (e *Executor) clientsTable(ctx context.Context, conn *sqlx.Conn) (TableMetadata, bool, error) {
	column, err := e.metadata.ClientsAccessColumn(ctx, conn)
	if err != nil {
		return TableMetadata{}, false, err
	}
	if column == "" {
		return TableMetadata{}, false, nil
	}

	return TableMetadata{
		ChartMetadata: ChartMetadata{
			ID:            0,
			Slug:          clientsSlug,
			Title:         "Clientes",
			Description:   "Clientes cadastrados",
			QueryTemplate: "SELECT * FROM clientes ORDER BY " + column + " DESC NULLS LAST",
		},
		ColumnConfig: []byte(`[{"key":"nome","label":"Nome","type":"string"},{"key":"whatsapp","label":"WhatsApp","type":"string"},{"key":"paused","label":"Pausado","type":"boolean","is_toggle":true},{"key":"` + column + `","label":"Último acesso","type":"date"}]`),
		PrimaryKey:   "id",
	}, true, nil
}

func indexRequests(requests []SlugRequest) ([]string, map[string]map[string]interface{}) {
	var slugs []string
	paramsBySlug := make(map[string]map[string]interface{}, len(requests))
	for _, r := range requests {
		if r.Slug == "" {
			continue
		}
		if _, dup := paramsBySlug[r.Slug]; !dup {
			slugs = append(slugs, r.Slug)
		}
		paramsBySlug[r.Slug] = r.Params
	}
	return slugs, paramsBySlug
}

func containsSlug(slugs []string, want string) bool {
	for _, s := range slugs {
		if s == want {
			return true
		}
	}
	return false
}

func anyRole(have, allowed []string) bool {
	set := make(map[string]bool, len(have))
	for _, r := range have {
		set[r] = true
	}
	for _, r := range allowed {
		if set[r] {
			return true
		}
	}
	return false
}
