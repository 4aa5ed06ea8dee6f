package admin

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/datapainel/datapainel-backend/internal/device"
	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/internal/registry"
	"github.com/datapainel/datapainel-backend/internal/supabase"
	"github.com/datapainel/datapainel-backend/pkg/httputil"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/tenant"
	"github.com/datapainel/datapainel-backend/pkg/tenantdb"
)

// RoleAdmin gates every endpoint in this package
const RoleAdmin = "admin"

// Handler serves the administrative endpoints. All of them require the
// admin role and an approved device.
type Handler struct {
	resolver  *identity.Resolver
	devices   *device.Service
	directory *registry.Directory
	pools     *tenantdb.Registry
	client    *supabase.Client
	metadata  *MetadataRepository
	logger    *logger.Logger
}

// NewHandler creates an admin handler
func NewHandler(resolver *identity.Resolver, devices *device.Service, directory *registry.Directory, pools *tenantdb.Registry, client *supabase.Client, log *logger.Logger) *Handler {
	return &Handler{
		resolver:  resolver,
		devices:   devices,
		directory: directory,
		pools:     pools,
		client:    client,
		metadata:  NewMetadataRepository(),
		logger:    log,
	}
}

// authorize resolves the caller, checks the admin role and the device
// approval. Every admin endpoint starts here.
func (h *Handler) authorize(r *http.Request) (*identity.Principal, error) {
	token, err := identity.TokenFromHeader(r)
	if err != nil {
		return nil, err
	}
	principal, err := h.resolver.RequireRole(r.Context(), token, RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := h.devices.RequireApproved(r.Context(), principal, r.Header.Get(device.HeaderDeviceID)); err != nil {
		return nil, err
	}
	return principal, nil
}

type saveResponse struct {
	Message     string `json:"message"`
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	CompanyName string `json:"company_name"`
}

// ManageGraph handles POST /manageGraph: upsert a chart metadata row in
// the admin's tenant database.
func (h *Handler) ManageGraph(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authorize(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var input GraphInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	resp, err := h.saveMetadata(r.Context(), principal, input.Slug, func(ctx context.Context, conn *sqlx.Conn) (int64, error) {
		return h.metadata.SaveGraph(ctx, conn, &input)
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	resp.Message = "Gráfico salvo com sucesso"
	httputil.JSON(w, http.StatusOK, resp)
}

// ManageTable handles POST /manageTable: same as ManageGraph for
// dashboard_tables rows.
func (h *Handler) ManageTable(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authorize(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var input TableInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	resp, err := h.saveMetadata(r.Context(), principal, input.Slug, func(ctx context.Context, conn *sqlx.Conn) (int64, error) {
		return h.metadata.SaveTable(ctx, conn, &input)
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	resp.Message = "Tabela salva com sucesso"
	httputil.JSON(w, http.StatusOK, resp)
}

func (h *Handler) saveMetadata(ctx context.Context, principal *identity.Principal, slug string, save func(context.Context, *sqlx.Conn) (int64, error)) (*saveResponse, error) {
	coords, err := h.directory.Lookup(ctx, principal.ID)
	if err != nil {
		return nil, err
	}

	var id int64
	err = h.pools.WithConn(ctx, coords, func(conn *sqlx.Conn) error {
		var saveErr error
		id, saveErr = save(ctx, conn)
		return saveErr
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("user_id", principal.ID).
		Str("slug", slug).
		Int64("id", id).
		Msg("metadata saved")

	return &saveResponse{
		ID:          id,
		Slug:        slug,
		CompanyName: coords.CompanyName,
	}, nil
}

// RegisterUserInput is the new-tenant payload
type RegisterUserInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DBHost      string `json:"db_host" validate:"required"`
	DBName      string `json:"db_name" validate:"required"`
	DBUser      string `json:"db_user" validate:"required"`
	DBPassword  string `json:"db_password" validate:"required"`
	CompanyName string `json:"company_name" validate:"required"`
}

// RegisterUser handles POST /registerUser: create the identity-provider
// user and register its tenant coordinates. A failed registry insert
// rolls the user creation back.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.authorize(r); err != nil {
		httputil.Error(w, err)
		return
	}

	var input RegisterUserInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	user, err := h.client.AdminCreateUser(ctx, input.Email, input.Password)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	coords := &tenant.Coordinates{
		UserID:      user.ID,
		Host:        input.DBHost,
		Database:    input.DBName,
		User:        input.DBUser,
		Password:    input.DBPassword,
		CompanyName: input.CompanyName,
	}
	if err := h.directory.Insert(ctx, coords); err != nil {
		// Leave no orphan identity behind the failed registration.
		if cleanupErr := h.client.AdminDeleteUser(ctx, user.ID); cleanupErr != nil {
			h.logger.Error().Err(cleanupErr).Str("user_id", user.ID).Msg("rollback of created user failed")
		}
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Str("user_id", user.ID).
		Str("company", input.CompanyName).
		Msg("tenant user registered")

	httputil.Created(w, map[string]string{"userId": user.ID})
}

// ListCompanies handles POST /listCompanies
func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authorize(r); err != nil {
		httputil.Error(w, err)
		return
	}

	companies, err := h.directory.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"companies": companies})
}
