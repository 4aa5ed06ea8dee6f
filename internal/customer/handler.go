package customer

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/datapainel/datapainel-backend/internal/device"
	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/internal/registry"
	"github.com/datapainel/datapainel-backend/pkg/httputil"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/tenantdb"
)

// Handler serves the customer endpoints
type Handler struct {
	resolver   *identity.Resolver
	devices    *device.Service
	directory  *registry.Directory
	pools      *tenantdb.Registry
	repository *Repository
	logger     *logger.Logger
}

// NewHandler creates a customer handler
func NewHandler(resolver *identity.Resolver, devices *device.Service, directory *registry.Directory, pools *tenantdb.Registry, log *logger.Logger) *Handler {
	return &Handler{
		resolver:   resolver,
		devices:    devices,
		directory:  directory,
		pools:      pools,
		repository: NewRepository(),
		logger:     log,
	}
}

// TogglePaused handles POST /toggleCustomerPaused: flip the paused flag
// of one cliente in the caller's tenant database. Requires an approved
// device.
func (h *Handler) TogglePaused(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := identity.TokenFromHeader(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	principal, err := h.resolver.Resolve(ctx, token)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if err := h.devices.RequireApproved(ctx, principal, r.Header.Get(device.HeaderDeviceID)); err != nil {
		httputil.Error(w, err)
		return
	}

	var input struct {
		CustomerID int64 `json:"customer_id" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	coords, err := h.directory.Lookup(ctx, principal.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var paused bool
	err = h.pools.WithConn(ctx, coords, func(conn *sqlx.Conn) error {
		var toggleErr error
		paused, toggleErr = h.repository.TogglePaused(ctx, conn, input.CustomerID)
		return toggleErr
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Str("user_id", principal.ID).
		Int64("customer_id", input.CustomerID).
		Bool("paused", paused).
		Msg("customer pause toggled")

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"customer_id": input.CustomerID,
		"paused":      paused,
	})
}
