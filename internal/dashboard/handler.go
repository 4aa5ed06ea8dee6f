package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/internal/registry"
	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/httputil"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/tenant"
	"github.com/datapainel/datapainel-backend/pkg/tenantdb"
)

// Handler serves the data-fetch endpoint
type Handler struct {
	resolver  *identity.Resolver
	directory *registry.Directory
	pools     *tenantdb.Registry
	executor  *Executor
	logger    *logger.Logger
}

// NewHandler creates a dashboard handler
func NewHandler(resolver *identity.Resolver, directory *registry.Directory, pools *tenantdb.Registry, executor *Executor, log *logger.Logger) *Handler {
	return &Handler{
		resolver:  resolver,
		directory: directory,
		pools:     pools,
		executor:  executor,
		logger:    log,
	}
}

// FetchUserData handles POST /fetchUserData: authenticate, look the
// tenant up, borrow a connection and run the batch. Per-slug failures
// land inside the document; only infrastructure failures reach the
// error writer.
func (h *Handler) FetchUserData(w http.ResponseWriter, r *http.Request) {
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

	var req BatchRequest
	if err := decodeBatchRequest(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	coords, err := h.directory.Lookup(ctx, principal.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	ctx = tenant.WithCoordinates(ctx, coords)
	log := h.logger.WithUserID(principal.ID).WithCompany(coords.CompanyName)

	var resp *BatchResponse
	err = h.pools.WithConn(ctx, coords, func(conn *sqlx.Conn) error {
		var execErr error
		resp, execErr = h.executor.Execute(ctx, conn, principal, &req)
		return execErr
	})
	if err != nil {
		log.Error().Err(err).Msg("batch execution failed")
		httputil.Error(w, err)
		return
	}

	log.Info().
		Int("graphics", len(resp.Graphics)).
		Int("tables", len(resp.Tables)).
		Int("errors", len(resp.Errors)+len(resp.TableErrors)).
		Msg("batch served")

	httputil.JSON(w, http.StatusOK, resp)
}

// decodeBatchRequest treats an empty body as "everything": the dashboard
// sends no body when it wants all active charts and tables.
func decodeBatchRequest(r *http.Request, req *BatchRequest) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.BadRequest("invalid JSON body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}
