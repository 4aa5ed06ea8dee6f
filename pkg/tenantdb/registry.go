// Package tenantdb maintains one bounded connection pool per tenant
// database. Pools are opened lazily on first borrow and kept for the
// lifetime of the process; all borrows release their connection on every
// exit path.
package tenantdb

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/datapainel/datapainel-backend/pkg/config"
	"github.com/datapainel/datapainel-backend/pkg/database"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/tenant"
)

// Registry caches tenant pools keyed by connection URL
type Registry struct {
	cfg    *config.TenantDBConfig
	logger *logger.Logger

	mu    sync.Mutex
	pools map[string]*database.DB
}

// NewRegistry creates an empty pool registry
func NewRegistry(cfg *config.TenantDBConfig, log *logger.Logger) *Registry {
	return &Registry{
		cfg:    cfg,
		logger: log,
		pools:  make(map[string]*database.DB),
	}
}

// URL builds the connection URL for the given tenant coordinates.
// The registry row carries no port; the configured default applies.
func (r *Registry) URL(coords *tenant.Coordinates) string {
	return config.BuildDatabaseURL(
		coords.Host, r.cfg.DefaultPort,
		coords.User, coords.Password, coords.Database,
		r.cfg.SSLMode,
	)
}

// Pool returns the cached pool for the tenant, opening it on first use.
// The pool map only grows; tenants are few and pools are bounded.
func (r *Registry) Pool(coords *tenant.Coordinates) (*database.DB, error) {
	url := r.URL(coords)

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.pools[url]; ok {
		return db, nil
	}

	db, err := database.Open(url, database.PoolSettings{
		MaxOpenConns:    r.cfg.MaxOpenConns,
		MaxIdleConns:    r.cfg.MaxIdleConns,
		ConnMaxLifetime: r.cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("company", coords.CompanyName).
		Str("db_host", coords.Host).
		Str("db_name", coords.Database).
		Msg("opened tenant pool")

	r.pools[url] = db
	return db, nil
}

// WithConn borrows a single connection from the tenant pool and runs fn on
// it. The connection is returned to the pool on every exit path, including
// failure of fn.
func (r *Registry) WithConn(ctx context.Context, coords *tenant.Coordinates, fn func(*sqlx.Conn) error) error {
	db, err := r.Pool(coords)
	if err != nil {
		return err
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(conn)
}

// Health reports the status of every open tenant pool, keyed by
// host/database so credentials never leave the process.
func (r *Registry) Health(ctx context.Context) map[string]interface{} {
	r.mu.Lock()
	pools := make(map[string]*database.DB, len(r.pools))
	for url, db := range r.pools {
		pools[url] = db
	}
	r.mu.Unlock()

	out := map[string]interface{}{
		"open_pools": len(pools),
	}
	for url, db := range pools {
		key := "unknown"
		if parsed, err := config.ParseDatabaseURL(url); err == nil {
			key = parsed.Host + "/" + parsed.Database
		}
		out[key] = db.Health(ctx)
	}
	return out
}

// Close shuts every cached pool down. Called on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for url, db := range r.pools {
		if err := db.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close tenant pool")
		}
		delete(r.pools, url)
	}
}
