package device

import (
	"net/http"

	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/pkg/config"
	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/httputil"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/ratelimit"
)

// HeaderDeviceID carries the client device fingerprint id
const HeaderDeviceID = "X-Client-Device-Id"

const fallbackLinkBase = "http://localhost:5173"

// Handler serves the device lifecycle endpoints
type Handler struct {
	resolver *identity.Resolver
	service  *Service
	security *config.SecurityConfig
	logger   *logger.Logger
}

// NewHandler creates a device handler
func NewHandler(resolver *identity.Resolver, service *Service, security *config.SecurityConfig, log *logger.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		service:  service,
		security: security,
		logger:   log,
	}
}

// RegisterLoginEvent handles POST /registerLoginEvent: the login hook
// that feeds the state machine.
func (h *Handler) RegisterLoginEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := h.authenticate(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var input RegisterInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}

	resp, err := h.service.RegisterLogin(ctx, principal, input, ratelimit.ClientIP(r), h.linkBase(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// CheckDeviceStatus handles POST /checkDeviceStatus: the polling
// endpoint the frontend hits while waiting for confirmation.
func (h *Handler) CheckDeviceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := h.authenticate(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var input struct {
		DeviceID string `json:"deviceId"`
		Resend   bool   `json:"resend"`
	}
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}

	resp, err := h.service.CheckStatus(ctx, principal, input.DeviceID, input.Resend, ratelimit.ClientIP(r), h.linkBase(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// ConfirmDevice handles /confirmDevice. The GET variant is the email
// link and answers with HTML; the POST variant is the API form. The
// token itself is the capability; no bearer is required.
func (h *Handler) ConfirmDevice(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.confirmHTML(w, r)
	case http.MethodPost:
		h.confirmJSON(w, r)
	default:
		httputil.MethodNotAllowed(w, r)
	}
}

func (h *Handler) confirmHTML(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.HTML(w, http.StatusBadRequest, missingTokenPage())
		return
	}

	rec, err := h.service.Confirm(r.Context(), token)
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			httputil.HTML(w, appErr.StatusCode, errorPage(appErr.Message+"."))
			return
		}
		h.logger.Error().Err(err).Msg("device confirmation failed")
		httputil.HTML(w, http.StatusInternalServerError, errorPage("Ocorreu um erro inesperado."))
		return
	}

	httputil.HTML(w, http.StatusOK, successPage(deviceName(rec)))
}

func (h *Handler) confirmJSON(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token string `json:"token"`
	}
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}

	if _, err := h.service.Confirm(r.Context(), input.Token); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": StatusApproved})
}

// RequireApproved is the gate other handlers call before admin work
func (h *Handler) RequireApproved(r *http.Request, principal *identity.Principal) error {
	return h.service.RequireApproved(r.Context(), principal, r.Header.Get(HeaderDeviceID))
}

func (h *Handler) authenticate(r *http.Request) (*identity.Principal, error) {
	token, err := identity.TokenFromHeader(r)
	if err != nil {
		return nil, err
	}
	return h.resolver.Resolve(r.Context(), token)
}

// linkBase resolves where confirmation links point: explicit
// configuration first, then the app base URL, then the request origin.
func (h *Handler) linkBase(r *http.Request) string {
	if h.security.ConfirmURLBase != "" {
		return h.security.ConfirmURLBase
	}
	if h.security.AppBaseURL != "" {
		return h.security.AppBaseURL + "/confirmDevice"
	}
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin + "/confirmDevice"
	}
	return fallbackLinkBase + "/confirmDevice"
}
