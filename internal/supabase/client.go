// Package supabase is the HTTP client for the central Supabase project:
// the identity provider (GoTrue) and the PostgREST-exposed registry tables.
// Tenant business data never lives here; only user identities, tenant
// database coordinates and device-approval state.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datapainel/datapainel-backend/pkg/config"
	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/logger"
)

// Client talks to the Supabase auth and rest APIs
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a new Supabase client
func New(cfg *config.SupabaseConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// AuthUser is the identity provider's view of a user
type AuthUser struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

// GetUser verifies an access token against the identity provider and
// returns the user it belongs to.
func (c *Client) GetUser(ctx context.Context, token string) (*AuthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "UPSTREAM_UNAVAILABLE", "identity provider unreachable", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Unauthorized("Token inválido ou expirado")
	}

	var user AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}
	if user.ID == "" {
		return nil, errors.Unauthorized("Token inválido ou expirado")
	}

	return &user, nil
}

// AdminCreateUser creates a confirmed user through the admin API
func (c *Client) AdminCreateUser(ctx context.Context, email, password string) (*AuthUser, error) {
	payload := map[string]interface{}{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}

	var user AuthUser
	if err := c.doAdmin(ctx, http.MethodPost, "/auth/v1/admin/users", payload, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, errors.Internal("identity provider returned no user id")
	}
	return &user, nil
}

// AdminGetUser fetches a user by id through the admin API. The device
// confirmation flow uses it to find the notification recipient.
func (c *Client) AdminGetUser(ctx context.Context, userID string) (*AuthUser, error) {
	var user AuthUser
	if err := c.doAdmin(ctx, http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AdminDeleteUser removes a user through the admin API. Used to roll back
// a registration whose registry insert failed.
func (c *Client) AdminDeleteUser(ctx context.Context, userID string) error {
	return c.doAdmin(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) doAdmin(ctx context.Context, method, path string, payload, dest interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "UPSTREAM_UNAVAILABLE", "identity provider unreachable", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapError(resp)
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("failed to decode identity admin response: %w", err)
		}
	}
	return nil
}

// WriteOptions tune a rest write
type WriteOptions struct {
	// OnConflict names the unique columns for an upsert
	OnConflict string
	// Merge resolves conflicts by merging instead of erroring
	Merge bool
}

// Select runs a PostgREST read. rawQuery is the already-encoded filter
// string (e.g. "id_user=eq.<uuid>&select=*&limit=1"); dest must be a
// pointer to a slice.
func (c *Client) Select(ctx context.Context, table, rawQuery string, dest interface{}) error {
	endpoint := c.baseURL + "/rest/v1/" + table
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setRestHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "UPSTREAM_UNAVAILABLE", "registry unreachable", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.mapError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode registry response: %w", err)
	}
	return nil
}

// Insert runs a PostgREST insert or upsert. When dest is non-nil the
// written representation is decoded into it (dest must be a pointer to a
// slice).
func (c *Client) Insert(ctx context.Context, table string, payload interface{}, opts WriteOptions, dest interface{}) error {
	endpoint := c.baseURL + "/rest/v1/" + table
	if opts.OnConflict != "" {
		endpoint += "?on_conflict=" + url.QueryEscape(opts.OnConflict)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setRestHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	prefer := "return=representation"
	if dest == nil {
		prefer = "return=minimal"
	}
	if opts.Merge {
		prefer += ",resolution=merge-duplicates"
	}
	req.Header.Set("Prefer", prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "UPSTREAM_UNAVAILABLE", "registry unreachable", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapError(resp)
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("failed to decode registry response: %w", err)
		}
	}
	return nil
}

// Update runs a PostgREST patch against the rows selected by rawFilter
// (e.g. "id=eq.<uuid>"). The updated representation is decoded into dest
// when non-nil.
func (c *Client) Update(ctx context.Context, table, rawFilter string, patch interface{}, dest interface{}) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/rest/v1/" + table + "?" + rawFilter
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setRestHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	if dest != nil {
		req.Header.Set("Prefer", "return=representation")
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "UPSTREAM_UNAVAILABLE", "registry unreachable", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapError(resp)
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("failed to decode registry response: %w", err)
		}
	}
	return nil
}

func (c *Client) setRestHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
}

type restError struct {
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Code    string `json:"code"`
}

func (c *Client) mapError(resp *http.Response) error {
	var body restError
	json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	message := body.Message
	if message == "" {
		message = body.Msg
	}
	if message == "" {
		message = resp.Status
	}

	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("message", message).
		Msg("supabase request failed")

	switch {
	case resp.StatusCode == http.StatusConflict || body.Code == "23505":
		return errors.Conflict(message)
	case resp.StatusCode == http.StatusNotFound:
		return errors.NotFound(message)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Unauthorized(message)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return errors.BadRequest(message)
	default:
		return errors.Internal(message)
	}
}
