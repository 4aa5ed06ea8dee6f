// Package device implements the device-approval state machine: every
// login ties a client-supplied device id to a record that must be
// confirmed by email before sensitive endpoints open up.
package device

import (
	"context"
	"net/url"
	"time"

	"github.com/datapainel/datapainel-backend/internal/supabase"
	"github.com/datapainel/datapainel-backend/pkg/logger"
)

const (
	devicesTable = "security_user_devices"
	eventsTable  = "security_login_events"
)

// Device statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Record is a row of security_user_devices, unique per (user, device)
type Record struct {
	ID            string     `json:"id,omitempty"`
	UserID        string     `json:"user_id"`
	DeviceID      string     `json:"device_id"`
	DeviceName    string     `json:"device_name,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	Locale        string     `json:"locale,omitempty"`
	Timezone      string     `json:"timezone,omitempty"`
	Screen        string     `json:"screen,omitempty"`
	Status        string     `json:"status"`
	ApprovalToken *string    `json:"approval_token,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
}

// Approved reports whether the record satisfies the approved predicate
func (r *Record) Approved() bool {
	return r != nil && r.Status == StatusApproved && r.ConfirmedAt != nil
}

// LoginEvent is an append-only audit row
type LoginEvent struct {
	UserID     string                 `json:"user_id"`
	DeviceID   string                 `json:"device_id,omitempty"`
	DeviceName string                 `json:"device_name,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Locale     string                 `json:"locale,omitempty"`
	Timezone   string                 `json:"timezone,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Store persists device records and login events in the central registry
type Store struct {
	client *supabase.Client
	logger *logger.Logger
}

// NewStore creates a device store
func NewStore(client *supabase.Client, log *logger.Logger) *Store {
	return &Store{
		client: client,
		logger: log,
	}
}

// GetByUserDevice fetches the record for one (user, device) pair.
// A missing row returns nil without error; absence is a regular state.
func (s *Store) GetByUserDevice(ctx context.Context, userID, deviceID string) (*Record, error) {
	query := "user_id=eq." + url.QueryEscape(userID) +
		"&device_id=eq." + url.QueryEscape(deviceID) +
		"&select=*&limit=1"

	var rows []Record
	if err := s.client.Select(ctx, devicesTable, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetByToken fetches the record holding an approval token. Tokens are
// single-use; a consumed token matches nothing.
func (s *Store) GetByToken(ctx context.Context, token string) (*Record, error) {
	query := "approval_token=eq." + url.QueryEscape(token) + "&select=*&limit=1"

	var rows []Record
	if err := s.client.Select(ctx, devicesTable, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Upsert inserts the record, merging on the (user_id, device_id) unique
// key, and returns the stored row.
func (s *Store) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	var rows []Record
	opts := supabase.WriteOptions{OnConflict: "user_id,device_id", Merge: true}
	if err := s.client.Insert(ctx, devicesTable, rec, opts, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rec, nil
	}
	return &rows[0], nil
}

// Update patches the record by surrogate id and returns the updated row
func (s *Store) Update(ctx context.Context, id string, patch map[string]interface{}) (*Record, error) {
	var rows []Record
	filter := "id=eq." + url.QueryEscape(id)
	if err := s.client.Update(ctx, devicesTable, filter, patch, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// RecordLoginEvent appends an audit row. At-most-once: failures are
// logged and swallowed so a broken audit trail never blocks a login.
func (s *Store) RecordLoginEvent(ctx context.Context, evt *LoginEvent) {
	if err := s.client.Insert(ctx, eventsTable, evt, supabase.WriteOptions{}, nil); err != nil {
		s.logger.Warn().Err(err).Str("user_id", evt.UserID).Msg("failed to record login event")
	}
}
