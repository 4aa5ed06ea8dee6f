// Package identity resolves bearer tokens into principals and derives
// their role sets from identity-provider metadata.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/datapainel/datapainel-backend/internal/supabase"
	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/logger"
)

// RoleAuthenticated is granted to every principal
const RoleAuthenticated = "authenticated"

// Principal is the authenticated caller, materialised per request
type Principal struct {
	ID           string
	Email        string
	AppMetadata  map[string]interface{}
	UserMetadata map[string]interface{}
	Roles        []string
}

// HasRole reports whether the principal's role set contains role
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Resolver verifies tokens and builds principals
type Resolver struct {
	client    *supabase.Client
	jwtSecret string
	logger    *logger.Logger
}

// NewResolver creates a resolver. A non-empty jwtSecret enables local
// HS256 verification; otherwise every resolve round-trips to the identity
// provider.
func NewResolver(client *supabase.Client, jwtSecret string, log *logger.Logger) *Resolver {
	return &Resolver{
		client:    client,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// TokenFromHeader extracts the bearer token from an Authorization header
func TokenFromHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.Unauthorized("missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.Unauthorized("invalid authorization header format")
	}

	return parts[1], nil
}

// Resolve verifies the token and returns the principal it belongs to
func (r *Resolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	if r.jwtSecret != "" {
		if p, err := r.resolveLocal(token); err == nil {
			return p, nil
		}
		// Local verification can fail on key rotation; the provider
		// remains the source of truth.
	}

	user, err := r.client.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return principalFromUser(user), nil
}

// RequireRole resolves the token and fails with Forbidden unless the
// principal's role set contains role.
func (r *Resolver) RequireRole(ctx context.Context, token, role string) (*Principal, error) {
	p, err := r.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if !p.HasRole(role) {
		return nil, errors.Forbidden("Usuário não possui permissão de " + role)
	}
	return p, nil
}

type supabaseClaims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

func (r *Resolver) resolveLocal(token string) (*Principal, error) {
	var claims supabaseClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrTokenInvalid
		}
		return []byte(r.jwtSecret), nil
	})
	if err != nil {
		return nil, errors.TokenInvalid()
	}
	if claims.Subject == "" {
		return nil, errors.TokenInvalid()
	}

	return principalFromUser(&supabase.AuthUser{
		ID:           claims.Subject,
		Email:        claims.Email,
		AppMetadata:  claims.AppMetadata,
		UserMetadata: claims.UserMetadata,
	}), nil
}

func principalFromUser(user *supabase.AuthUser) *Principal {
	return &Principal{
		ID:           user.ID,
		Email:        user.Email,
		AppMetadata:  user.AppMetadata,
		UserMetadata: user.UserMetadata,
		Roles:        ExtractRoles(user.AppMetadata, user.UserMetadata, RoleAuthenticated),
	}
}

// ExtractRoles unions the seed roles with every role found under the
// role / roles keys of the app and user metadata maps, in that order.
// A string contributes itself, a list of strings its elements; anything
// else is ignored.
func ExtractRoles(appMetadata, userMetadata map[string]interface{}, seed ...string) []string {
	seen := make(map[string]bool, len(seed)+4)
	roles := make([]string, 0, len(seed)+4)

	add := func(role string) {
		if role == "" || seen[role] {
			return
		}
		seen[role] = true
		roles = append(roles, role)
	}

	for _, s := range seed {
		add(s)
	}

	sources := []interface{}{
		lookup(appMetadata, "role"),
		lookup(userMetadata, "role"),
		lookup(appMetadata, "roles"),
		lookup(userMetadata, "roles"),
	}
	for _, src := range sources {
		switch v := src.(type) {
		case string:
			add(v)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case []string:
			for _, s := range v {
				add(s)
			}
		}
	}

	return roles
}

func lookup(m map[string]interface{}, key string) interface{} {
	if m == nil {
		return nil
	}
	return m[key]
}
