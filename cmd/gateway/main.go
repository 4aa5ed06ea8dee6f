package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/datapainel/datapainel-backend/internal/admin"
	"github.com/datapainel/datapainel-backend/internal/customer"
	"github.com/datapainel/datapainel-backend/internal/dashboard"
	"github.com/datapainel/datapainel-backend/internal/device"
	"github.com/datapainel/datapainel-backend/internal/events"
	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/internal/mailer"
	"github.com/datapainel/datapainel-backend/internal/registry"
	"github.com/datapainel/datapainel-backend/internal/supabase"
	"github.com/datapainel/datapainel-backend/pkg/config"
	"github.com/datapainel/datapainel-backend/pkg/httputil"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/ratelimit"
	"github.com/datapainel/datapainel-backend/pkg/tenantdb"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("gateway", cfg.Server.Environment)
	log.Info().Msg("starting dashboard gateway")

	// Central Supabase project: identity provider + registry tables
	sb := supabase.New(&cfg.Supabase, log)
	resolver := identity.NewResolver(sb, cfg.Supabase.JWTSecret, log)
	directory := registry.NewDirectory(sb, log)

	// Tenant connection pools, opened lazily per company
	pools := tenantdb.NewRegistry(&cfg.TenantDB, log)
	defer pools.Close()

	// Optional audit stream
	audit, err := events.Connect(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect audit stream")
	}
	defer audit.Close()

	// Device approval flow
	sender := mailer.NewResendSender(&cfg.Email, log)
	deviceStore := device.NewStore(sb, log)
	deviceService := device.NewService(deviceStore, sb, sender, audit, log)

	// Handlers
	executor := dashboard.NewExecutor(dashboard.NewMetadataRepository(), log)
	dashboardHandler := dashboard.NewHandler(resolver, directory, pools, executor, log)
	deviceHandler := device.NewHandler(resolver, deviceService, &cfg.Security, log)
	adminHandler := admin.NewHandler(resolver, deviceService, directory, pools, sb, log)
	customerHandler := customer.NewHandler(resolver, deviceService, directory, pools, log)

	limiter := ratelimit.New()

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.CORS(cfg.Server.AllowedOrigin))
	r.MethodNotAllowed(httputil.MethodNotAllowed)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":       "healthy",
			"service":      "gateway",
			"tenant_pools": pools.Health(req.Context()),
			"audit":        audit.Health(),
		})
	})

	defaultWindow := cfg.RateLimit.Window
	defaultMax := cfg.RateLimit.MaxRequests

	quota := func(endpoint string, max int, keyFn httputil.KeyFunc) func(http.Handler) http.Handler {
		return httputil.RateLimit(limiter, endpoint, max, defaultWindow, keyFn)
	}

	// Data path
	r.With(quota("fetchUserData", defaultMax, ratelimit.AuthenticatedKey)).
		Post("/fetchUserData", dashboardHandler.FetchUserData)

	// Device lifecycle
	r.With(quota("registerLoginEvent", 20, ratelimit.AuthenticatedKey)).
		Post("/registerLoginEvent", deviceHandler.RegisterLoginEvent)
	r.With(quota("checkDeviceStatus", 30, ratelimit.AuthenticatedKey)).
		Post("/checkDeviceStatus", deviceHandler.CheckDeviceStatus)
	r.Get("/confirmDevice", deviceHandler.ConfirmDevice)
	r.Post("/confirmDevice", deviceHandler.ConfirmDevice)

	// Admin
	r.With(quota("manageGraph", defaultMax, ratelimit.AuthenticatedKey)).
		Post("/manageGraph", adminHandler.ManageGraph)
	r.With(quota("manageTable", defaultMax, ratelimit.AuthenticatedKey)).
		Post("/manageTable", adminHandler.ManageTable)
	r.With(quota("registerUser", 10, ratelimit.AuthenticatedKey)).
		Post("/registerUser", adminHandler.RegisterUser)
	r.With(quota("listCompanies", 30, ratelimit.AuthenticatedKey)).
		Post("/listCompanies", adminHandler.ListCompanies)

	// Customer actions
	r.With(quota("toggleCustomerPaused", 10, ratelimit.AuthenticatedKey)).
		Post("/toggleCustomerPaused", customerHandler.TogglePaused)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
