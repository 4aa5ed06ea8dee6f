package tenant

import (
	"context"
	"errors"
)

// Coordinates locate a tenant's dedicated database. Rows come from the
// central registry (db_info) keyed by the owning principal id and are never
// mutated by the gateway.
type Coordinates struct {
	UserID      string `json:"id_user"`
	Host        string `json:"db_host"`
	Database    string `json:"db_name"`
	User        string `json:"db_user"`
	Password    string `json:"db_password"`
	CompanyName string `json:"company_name"`
}

// contextKey is a private type for context keys to prevent collisions
type contextKey struct{}

// ErrNoTenantInContext is returned when tenant context is missing
var ErrNoTenantInContext = errors.New("no tenant in context")

// WithCoordinates attaches the resolved tenant coordinates to the context.
// Called once per request after the registry lookup succeeds.
func WithCoordinates(ctx context.Context, coords *Coordinates) context.Context {
	return context.WithValue(ctx, contextKey{}, coords)
}

// FromContext extracts the tenant coordinates from the context.
// Returns ErrNoTenantInContext if the registry lookup has not run.
func FromContext(ctx context.Context) (*Coordinates, error) {
	coords, ok := ctx.Value(contextKey{}).(*Coordinates)
	if !ok || coords == nil {
		return nil, ErrNoTenantInContext
	}
	return coords, nil
}
