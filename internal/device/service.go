package device

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"time"

	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/internal/mailer"
	"github.com/datapainel/datapainel-backend/internal/supabase"
	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/logger"
)

// Device statuses reported to the client; StatusNotFound covers the
// absent state, which has no row.
const StatusNotFound = "not_found"

// AuditSink receives security events. A nil sink is valid and drops
// everything.
type AuditSink interface {
	Emit(ctx context.Context, eventType string, data map[string]interface{})
}

// RegisterInput is the client-reported device fingerprint
type RegisterInput struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	UserAgent  string `json:"userAgent"`
	Locale     string `json:"locale"`
	Timezone   string `json:"timezone"`
	Screen     string `json:"screen"`
	Resend     bool   `json:"resend"`
}

// Info is the device detail echoed to the client; tokens never leave
// the server.
type Info struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

// StatusResponse answers the register and status-check endpoints
type StatusResponse struct {
	Status               string `json:"status"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
	Device               *Info  `json:"device,omitempty"`
}

// Service drives the approval state machine
type Service struct {
	store    *Store
	client   *supabase.Client
	sender   mailer.Sender
	audit    AuditSink
	logger   *logger.Logger
	now      func() time.Time
	newToken func() string
}

// NewService creates the device service. audit may be nil.
func NewService(store *Store, client *supabase.Client, sender mailer.Sender, audit AuditSink, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		client:   client,
		sender:   sender,
		audit:    audit,
		logger:   log,
		now:      time.Now,
		newToken: generateToken,
	}
}

func generateToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// RegisterLogin applies a login attempt to the state machine. linkBase
// is the confirmation-link base URL resolved by the handler.
func (s *Service) RegisterLogin(ctx context.Context, principal *identity.Principal, input RegisterInput, ip, linkBase string) (*StatusResponse, error) {
	if input.DeviceID == "" {
		return nil, errors.BadRequest("Identificador do dispositivo ausente")
	}

	rec, err := s.store.GetByUserDevice(ctx, principal.ID, input.DeviceID)
	if err != nil {
		return nil, err
	}

	switch {
	case rec == nil:
		return s.registerNewDevice(ctx, principal, input, ip, linkBase)
	case rec.Approved():
		return s.registerKnownDevice(ctx, principal, rec, input, ip)
	default:
		return s.resendPending(ctx, principal, rec, input, ip, linkBase)
	}
}

// absent → pending: persist the fingerprint with a fresh token and email
// the confirmation link.
func (s *Service) registerNewDevice(ctx context.Context, principal *identity.Principal, input RegisterInput, ip, linkBase string) (*StatusResponse, error) {
	token := s.newToken()
	now := s.now().UTC()

	rec, err := s.store.Upsert(ctx, &Record{
		UserID:        principal.ID,
		DeviceID:      input.DeviceID,
		DeviceName:    input.DeviceName,
		UserAgent:     input.UserAgent,
		IPAddress:     ip,
		Locale:        input.Locale,
		Timezone:      input.Timezone,
		Screen:        input.Screen,
		Status:        StatusPending,
		ApprovalToken: &token,
		LastSeenAt:    &now,
	})
	if err != nil {
		return nil, err
	}

	s.store.RecordLoginEvent(ctx, s.loginEvent(principal, input, ip, "new_device"))
	s.emit(ctx, "device.registered", principal.ID, input.DeviceID)
	s.sendConfirmation(ctx, principal.Email, principal.Email, input, ip, token, linkBase)

	return &StatusResponse{
		Status:               StatusPending,
		RequiresConfirmation: true,
		Device:               toInfo(rec),
	}, nil
}

// pending → pending: refresh the fingerprint; mint a new token only when
// the client asked for a resend or the prior token is gone.
func (s *Service) resendPending(ctx context.Context, principal *identity.Principal, rec *Record, input RegisterInput, ip, linkBase string) (*StatusResponse, error) {
	now := s.now().UTC()
	patch := map[string]interface{}{
		"device_name":  input.DeviceName,
		"user_agent":   input.UserAgent,
		"ip_address":   ip,
		"locale":       input.Locale,
		"timezone":     input.Timezone,
		"screen":       input.Screen,
		"last_seen_at": now,
	}

	token := ""
	if input.Resend || rec.ApprovalToken == nil {
		token = s.newToken()
		patch["approval_token"] = token
	} else {
		token = *rec.ApprovalToken
	}

	updated, err := s.store.Update(ctx, rec.ID, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = rec
	}

	s.sendConfirmation(ctx, principal.Email, principal.Email, input, ip, token, linkBase)

	return &StatusResponse{
		Status:               StatusPending,
		RequiresConfirmation: true,
		Device:               toInfo(updated),
	}, nil
}

// approved → approved: refresh mutable attributes and notify the owner
func (s *Service) registerKnownDevice(ctx context.Context, principal *identity.Principal, rec *Record, input RegisterInput, ip string) (*StatusResponse, error) {
	now := s.now().UTC()
	patch := map[string]interface{}{"last_seen_at": now}
	if input.DeviceName != "" && input.DeviceName != rec.DeviceName {
		patch["device_name"] = input.DeviceName
	}
	if input.UserAgent != "" && input.UserAgent != rec.UserAgent {
		patch["user_agent"] = input.UserAgent
	}
	if ip != "" && ip != rec.IPAddress {
		patch["ip_address"] = ip
	}
	if input.Locale != "" && input.Locale != rec.Locale {
		patch["locale"] = input.Locale
	}
	if input.Timezone != "" && input.Timezone != rec.Timezone {
		patch["timezone"] = input.Timezone
	}
	if input.Screen != "" && input.Screen != rec.Screen {
		patch["screen"] = input.Screen
	}

	updated, err := s.store.Update(ctx, rec.ID, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = rec
	}

	s.store.RecordLoginEvent(ctx, s.loginEvent(principal, input, ip, "login"))
	s.emit(ctx, "device.login", principal.ID, input.DeviceID)
	s.sendNotification(ctx, principal.Email, principal.Email, deviceName(updated), ip, input.Locale, input.Timezone)

	return &StatusResponse{
		Status:               StatusApproved,
		RequiresConfirmation: false,
		Device:               toInfo(updated),
	}, nil
}

// CheckStatus reports where a device stands, optionally resending the
// confirmation email for a pending one.
func (s *Service) CheckStatus(ctx context.Context, principal *identity.Principal, deviceID string, resend bool, ip, linkBase string) (*StatusResponse, error) {
	if deviceID == "" {
		return nil, errors.BadRequest("Identificador do dispositivo ausente")
	}

	rec, err := s.store.GetByUserDevice(ctx, principal.ID, deviceID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &StatusResponse{
			Status:               StatusNotFound,
			RequiresConfirmation: true,
		}, nil
	}

	if rec.Approved() {
		return &StatusResponse{
			Status:               StatusApproved,
			RequiresConfirmation: false,
			Device:               toInfo(rec),
		}, nil
	}

	if resend || rec.ApprovalToken == nil {
		token := s.newToken()
		updated, err := s.store.Update(ctx, rec.ID, map[string]interface{}{"approval_token": token})
		if err != nil {
			return nil, err
		}
		if updated != nil {
			rec = updated
		}
		input := RegisterInput{DeviceID: deviceID, DeviceName: rec.DeviceName, Locale: rec.Locale, Timezone: rec.Timezone}
		s.sendConfirmation(ctx, principal.Email, principal.Email, input, rec.IPAddress, token, linkBase)
	}

	return &StatusResponse{
		Status:               StatusPending,
		RequiresConfirmation: true,
		Device:               toInfo(rec),
	}, nil
}

// Confirm consumes an approval token: pending → approved. The token is
// cleared so a second confirmation finds nothing.
func (s *Service) Confirm(ctx context.Context, token string) (*Record, error) {
	if token == "" {
		return nil, errors.BadRequest("Token ausente")
	}

	rec, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NotFound("Token não encontrado ou já utilizado")
	}

	now := s.now().UTC()
	updated, err := s.store.Update(ctx, rec.ID, map[string]interface{}{
		"status":         StatusApproved,
		"confirmed_at":   now,
		"approval_token": nil,
		"last_seen_at":   now,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = rec
		updated.Status = StatusApproved
		updated.ConfirmedAt = &now
		updated.ApprovalToken = nil
	}

	s.store.RecordLoginEvent(ctx, &LoginEvent{
		UserID:     updated.UserID,
		DeviceID:   updated.DeviceID,
		DeviceName: updated.DeviceName,
		IPAddress:  updated.IPAddress,
		UserAgent:  updated.UserAgent,
		Locale:     updated.Locale,
		Timezone:   updated.Timezone,
		Metadata:   map[string]interface{}{"event": "device_confirmed"},
	})
	s.emit(ctx, "device.confirmed", updated.UserID, updated.DeviceID)

	// The confirmation link carries no session; the owner's address comes
	// from the identity provider.
	if user, lookupErr := s.client.AdminGetUser(ctx, updated.UserID); lookupErr == nil && user.Email != "" {
		s.sendNotification(ctx, user.Email, user.Email, deviceName(updated), updated.IPAddress, updated.Locale, updated.Timezone)
	} else if lookupErr != nil {
		s.logger.Warn().Err(lookupErr).Str("user_id", updated.UserID).Msg("could not resolve email for confirmation notice")
	}

	return updated, nil
}

// RequireApproved gates an endpoint on an approved device
func (s *Service) RequireApproved(ctx context.Context, principal *identity.Principal, deviceID string) error {
	if deviceID == "" {
		return errors.Forbidden("Dispositivo não identificado")
	}

	rec, err := s.store.GetByUserDevice(ctx, principal.ID, deviceID)
	if err != nil {
		return err
	}
	if !rec.Approved() {
		return errors.Forbidden("Dispositivo não aprovado")
	}
	return nil
}

func (s *Service) loginEvent(principal *identity.Principal, input RegisterInput, ip, kind string) *LoginEvent {
	return &LoginEvent{
		UserID:     principal.ID,
		DeviceID:   input.DeviceID,
		DeviceName: input.DeviceName,
		IPAddress:  ip,
		UserAgent:  input.UserAgent,
		Locale:     input.Locale,
		Timezone:   input.Timezone,
		Metadata:   map[string]interface{}{"event": kind, "screen": input.Screen},
	}
}

func (s *Service) sendConfirmation(ctx context.Context, to, recipientName string, input RegisterInput, ip, token, linkBase string) {
	if to == "" {
		s.logger.Warn().Msg("no recipient for confirmation email")
		return
	}
	content := mailer.ConfirmationEmail(mailer.DeviceParams{
		RecipientName: recipientName,
		DeviceName:    input.DeviceName,
		IP:            ip,
		Locale:        input.Locale,
		Timezone:      input.Timezone,
		ConfirmLink:   confirmLink(linkBase, token),
		When:          s.now(),
	})
	s.sender.Send(ctx, mailer.Message{To: to, Subject: content.Subject, HTML: content.HTML, Text: content.Text})
}

func (s *Service) sendNotification(ctx context.Context, to, recipientName, device, ip, locale, timezone string) {
	if to == "" {
		return
	}
	content := mailer.LoginNotificationEmail(mailer.DeviceParams{
		RecipientName: recipientName,
		DeviceName:    device,
		IP:            ip,
		Locale:        locale,
		Timezone:      timezone,
		When:          s.now(),
	})
	s.sender.Send(ctx, mailer.Message{To: to, Subject: content.Subject, HTML: content.HTML, Text: content.Text})
}

func (s *Service) emit(ctx context.Context, eventType, userID, deviceID string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, eventType, map[string]interface{}{
		"user_id":   userID,
		"device_id": deviceID,
	})
}

func confirmLink(linkBase, token string) string {
	return linkBase + "?token=" + url.QueryEscape(token)
}

func deviceName(rec *Record) string {
	if rec.DeviceName != "" {
		return rec.DeviceName
	}
	return rec.DeviceID
}

func toInfo(rec *Record) *Info {
	if rec == nil {
		return nil
	}
	return &Info{
		ID:          rec.ID,
		Name:        rec.DeviceName,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
		ConfirmedAt: rec.ConfirmedAt,
		LastSeenAt:  rec.LastSeenAt,
	}
}
