package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/internal/mailer"
	"github.com/datapainel/datapainel-backend/internal/supabase"
	"github.com/datapainel/datapainel-backend/pkg/config"
	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/logger"
)

// fakeRegistry emulates the PostgREST surface the store talks to
type fakeRegistry struct {
	mu      sync.Mutex
	records []Record
	patches []map[string]interface{}
	events  []map[string]interface{}
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/security_user_devices":
		f.selectDevices(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/security_user_devices":
		f.upsertDevice(w, r)
	case r.Method == http.MethodPatch && r.URL.Path == "/rest/v1/security_user_devices":
		f.patchDevice(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/security_login_events":
		var evt map[string]interface{}
		json.NewDecoder(r.Body).Decode(&evt)
		f.events = append(f.events, evt)
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/auth/v1/admin/users/"):
		json.NewEncoder(w).Encode(map[string]string{
			"id":    strings.TrimPrefix(r.URL.Path, "/auth/v1/admin/users/"),
			"email": "owner@example.com",
		})
	default:
		http.Error(w, "unexpected call: "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func (f *fakeRegistry) selectDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matches := []Record{}
	for _, rec := range f.records {
		if v := q.Get("user_id"); v != "" && v != "eq."+rec.UserID {
			continue
		}
		if v := q.Get("device_id"); v != "" && v != "eq."+rec.DeviceID {
			continue
		}
		if v := q.Get("approval_token"); v != "" {
			if rec.ApprovalToken == nil || v != "eq."+*rec.ApprovalToken {
				continue
			}
		}
		matches = append(matches, rec)
	}
	json.NewEncoder(w).Encode(matches)
}

func (f *fakeRegistry) upsertDevice(w http.ResponseWriter, r *http.Request) {
	var rec Record
	json.NewDecoder(r.Body).Decode(&rec)
	if rec.ID == "" {
		rec.ID = "dev-1"
	}
	f.records = append(f.records, rec)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode([]Record{rec})
}

func (f *fakeRegistry) patchDevice(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	json.NewDecoder(r.Body).Decode(&patch)
	f.patches = append(f.patches, patch)

	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
	for i := range f.records {
		if f.records[i].ID != id {
			continue
		}
		applyPatch(&f.records[i], patch)
		json.NewEncoder(w).Encode([]Record{f.records[i]})
		return
	}
	json.NewEncoder(w).Encode([]Record{})
}

func applyPatch(rec *Record, patch map[string]interface{}) {
	raw, _ := json.Marshal(rec)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	for k, v := range patch {
		if v == nil {
			delete(m, k)
		} else {
			m[k] = v
		}
	}
	merged, _ := json.Marshal(m)
	var out Record
	json.Unmarshal(merged, &out)
	*rec = out
}

// recordingSender captures outbound mail
type recordingSender struct {
	messages []mailer.Message
}

func (s *recordingSender) Send(_ context.Context, msg mailer.Message) bool {
	s.messages = append(s.messages, msg)
	return true
}

func newTestService(t *testing.T, initial []Record) (*Service, *fakeRegistry, *recordingSender, func()) {
	registry := &fakeRegistry{records: initial}
	server := httptest.NewServer(registry)

	log := logger.New("test", "test")
	client := supabase.New(&config.SupabaseConfig{
		URL:            server.URL,
		AnonKey:        "anon",
		ServiceRoleKey: "service",
	}, log)

	sender := &recordingSender{}
	svc := NewService(NewStore(client, log), client, sender, nil, log)
	svc.newToken = func() string { return "fresh-token" }
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	return svc, registry, sender, server.Close
}

func principal() *identity.Principal {
	return &identity.Principal{ID: "user-1", Email: "maria@example.com"}
}

func pendingRecord(token string) Record {
	rec := Record{
		ID:       "dev-1",
		UserID:   "user-1",
		DeviceID: "abc",
		Status:   StatusPending,
	}
	if token != "" {
		rec.ApprovalToken = &token
	}
	return rec
}

func approvedRecord() Record {
	confirmed := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return Record{
		ID:          "dev-1",
		UserID:      "user-1",
		DeviceID:    "abc",
		DeviceName:  "Chrome",
		Status:      StatusApproved,
		ConfirmedAt: &confirmed,
	}
}

func TestRegisterLogin_NewDevice(t *testing.T) {
	svc, registry, sender, done := newTestService(t, nil)
	defer done()

	resp, err := svc.RegisterLogin(context.Background(), principal(), RegisterInput{
		DeviceID:   "abc",
		DeviceName: "Chrome / Windows",
	}, "203.0.113.9", "https://api.example.com/confirmDevice")

	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	assert.True(t, resp.RequiresConfirmation)
	require.NotNil(t, resp.Device)

	// Confirmation mail carries the freshly minted token.
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "maria@example.com", sender.messages[0].To)
	assert.Contains(t, sender.messages[0].HTML, "https://api.example.com/confirmDevice?token=fresh-token")

	// Login event recorded alongside.
	require.Len(t, registry.events, 1)
	assert.Equal(t, "user-1", registry.events[0]["user_id"])
}

func TestRegisterLogin_MissingDeviceID(t *testing.T) {
	svc, _, _, done := newTestService(t, nil)
	defer done()

	_, err := svc.RegisterLogin(context.Background(), principal(), RegisterInput{}, "", "")

	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.StatusCode)
}

func TestRegisterLogin_PendingKeepsTokenWithoutResend(t *testing.T) {
	svc, registry, sender, done := newTestService(t, []Record{pendingRecord("old-token")})
	defer done()

	resp, err := svc.RegisterLogin(context.Background(), principal(), RegisterInput{
		DeviceID: "abc",
	}, "", "https://x/confirmDevice")

	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)

	// The existing token survives and goes out again.
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0].HTML, "token=old-token")
	require.Len(t, registry.patches, 1)
	assert.NotContains(t, registry.patches[0], "approval_token")
}

func TestRegisterLogin_PendingResendMintsToken(t *testing.T) {
	svc, registry, sender, done := newTestService(t, []Record{pendingRecord("old-token")})
	defer done()

	_, err := svc.RegisterLogin(context.Background(), principal(), RegisterInput{
		DeviceID: "abc",
		Resend:   true,
	}, "", "https://x/confirmDevice")

	require.NoError(t, err)
	require.Len(t, registry.patches, 1)
	assert.Equal(t, "fresh-token", registry.patches[0]["approval_token"])
	assert.Contains(t, sender.messages[0].HTML, "token=fresh-token")
}

func TestRegisterLogin_PendingNilTokenMintsToken(t *testing.T) {
	svc, registry, _, done := newTestService(t, []Record{pendingRecord("")})
	defer done()

	_, err := svc.RegisterLogin(context.Background(), principal(), RegisterInput{
		DeviceID: "abc",
	}, "", "https://x/confirmDevice")

	require.NoError(t, err)
	require.Len(t, registry.patches, 1)
	assert.Equal(t, "fresh-token", registry.patches[0]["approval_token"])
}

func TestRegisterLogin_ApprovedDevice(t *testing.T) {
	svc, registry, sender, done := newTestService(t, []Record{approvedRecord()})
	defer done()

	resp, err := svc.RegisterLogin(context.Background(), principal(), RegisterInput{
		DeviceID:   "abc",
		DeviceName: "Chrome atualizado",
	}, "198.51.100.7", "")

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, resp.Status)
	assert.False(t, resp.RequiresConfirmation)

	// Changed attributes land in the patch; a notification goes out.
	require.Len(t, registry.patches, 1)
	assert.Equal(t, "Chrome atualizado", registry.patches[0]["device_name"])
	assert.Equal(t, "198.51.100.7", registry.patches[0]["ip_address"])
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "Novo acesso à sua conta", sender.messages[0].Subject)
	require.Len(t, registry.events, 1)
}

func TestCheckStatus_AbsentDevice(t *testing.T) {
	svc, _, _, done := newTestService(t, nil)
	defer done()

	resp, err := svc.CheckStatus(context.Background(), principal(), "abc", false, "", "")

	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, resp.Status)
	assert.True(t, resp.RequiresConfirmation)
	assert.Nil(t, resp.Device)
}

func TestCheckStatus_PendingResend(t *testing.T) {
	svc, registry, sender, done := newTestService(t, []Record{pendingRecord("old-token")})
	defer done()

	resp, err := svc.CheckStatus(context.Background(), principal(), "abc", true, "", "https://x/confirmDevice")

	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	require.Len(t, registry.patches, 1)
	assert.Equal(t, "fresh-token", registry.patches[0]["approval_token"])
	require.Len(t, sender.messages, 1)
}

func TestConfirm_ConsumesToken(t *testing.T) {
	svc, registry, sender, done := newTestService(t, []Record{pendingRecord("the-token")})
	defer done()

	rec, err := svc.Confirm(context.Background(), "the-token")

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, rec.Status)
	assert.NotNil(t, rec.ConfirmedAt)
	assert.Nil(t, rec.ApprovalToken)

	// Notification goes to the address the identity provider holds.
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "owner@example.com", sender.messages[0].To)

	// Token is single-use: the same link finds nothing the second time.
	_, err = svc.Confirm(context.Background(), "the-token")
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)

	require.Len(t, registry.events, 1)
	assert.Equal(t, map[string]interface{}{"event": "device_confirmed"}, registry.events[0]["metadata"])
}

func TestRequireApproved(t *testing.T) {
	svc, _, _, done := newTestService(t, []Record{approvedRecord()})
	defer done()

	assert.NoError(t, svc.RequireApproved(context.Background(), principal(), "abc"))

	err := svc.RequireApproved(context.Background(), principal(), "")
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 403, appErr.StatusCode)

	err = svc.RequireApproved(context.Background(), principal(), "unknown-device")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 403, appErr.StatusCode)
}
