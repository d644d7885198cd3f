package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"zapgate/internal/api"
	"zapgate/internal/api/handlers"
	"zapgate/internal/api/middleware"
	"zapgate/internal/engine/actions"
	"zapgate/internal/engine/gateway"
	"zapgate/internal/engine/idempotency"
	"zapgate/internal/engine/identity"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/engine/webhooks"
	"zapgate/internal/pkg/logger"
	"zapgate/internal/platform/audit"
	"zapgate/internal/platform/auth"
	"zapgate/internal/platform/config"
	"zapgate/internal/platform/database"
	"zapgate/internal/platform/mail"
	"zapgate/internal/platform/metrics"
	"zapgate/internal/platform/repositories"
	"zapgate/migrations"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "zapgate-server",
		Short: "WhatsApp integration gateway HTTP server",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "path to YAML config file")
	root.AddCommand(serveCmd(), tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Logging, "server")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	rawDB, err := database.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer rawDB.Close()

	if err := database.Migrate(rawDB, migrations.FS); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db := sqlx.NewDb(rawDB, database.DriverName())

	rdb, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		// Redis only backs a cache and the rate limiter; both have local fallbacks.
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, continuing without it")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Repositories
	bindingRepo := repositories.NewBindingRepository(rawDB)
	recordRepo := repositories.NewRecordRepository(db)
	outboxRepo := repositories.NewOutboxRepository(db)

	// Services
	auditLog := audit.NewLogger(rawDB, cfg.Gateway.RequestTimeout)
	routes := actions.Routes(recordRepo)
	store := idempotency.NewStore(db, rdb, cfg.Redis.CacheTTL)
	gw := gateway.NewService(db, store, identity.NewResolver(bindingRepo), auditLog, routes, cfg.Gateway.RequestTimeout)

	breaker := webhooks.NewBreaker(cfg.Webhooks.BreakerThreshold, cfg.Webhooks.BreakerCooldown)
	dispatcher := webhooks.NewDispatcher(cfg.Webhooks.URL, cfg.Webhooks.Secret, cfg.Webhooks.Timeout, breaker, auditLog)
	outbox := webhooks.NewOutbox(outboxRepo, cfg.Webhooks.MaxAttempts)

	mailer := mail.NewMailer(mail.NewTemplateStore(rawDB), mail.NewTransport(cfg.Email))
	bindings := identity.NewService(db, bindingRepo, outbox, mailer)
	tokenSvc := auth.NewTokenService(cfg.JWT)

	rateLimiter := middleware.NewRateLimiter(rdb)
	go rateLimiter.Cleanup(ctx)

	deps := &api.Dependencies{
		Routes:            routes,
		InboundHandler:    handlers.NewInboundHandler(gw, cfg.Gateway.MaxBodyBytes),
		VerifyHandler:     handlers.NewVerifyHandler(cfg.Gateway.VerifyToken),
		HealthHandler:     handlers.NewHealthHandler(rawDB, rdb),
		BindingHandler:    handlers.NewBindingHandler(bindings),
		WebhookLogHandler: handlers.NewWebhookLogHandler(auditLog, dispatcher),
		StatsHandler:      handlers.NewStatsHandler(recordRepo),
		WebhookToken:      middleware.NewWebhookToken(cfg.Gateway.WebhookToken, gw, cfg.Gateway.MaxBodyBytes),
		AuthMiddleware:    middleware.NewAuthMiddleware(tokenSvc),
		TenantMiddleware:  middleware.NewTenantMiddleware(bindingRepo),
		RateLimiter:       rateLimiter,
		InboundRateLimit:  cfg.Gateway.RateLimitPerMinute,
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.MustRegister(reg)
		deps.MetricsHandler = handlers.NewMetricsHandler(reg)
		deps.MetricsPath = cfg.Metrics.Path
	}

	if cfg.Gateway.WebhookToken == "" {
		log.Warn().Msg("gateway.webhook_token is empty; every inbound call will be rejected")
	}
	if !dispatcher.Configured() {
		log.Warn().Msg("webhooks.url is empty; outbound events stay queued")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// tokenCmd mints an admin JWT for operating the /api/v1 surface.
func tokenCmd() *cobra.Command {
	var userID, gabineteID, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin access token for a gabinete",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not configured")
			}
			if gabineteID == "" {
				return errors.New("--gabinete is required")
			}
			if !permissions.ValidRole(permissions.Role(role)) {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.NewTokenService(cfg.JWT).GenerateAccessToken(userID, gabineteID, role)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "admin", "user id carried in the token")
	cmd.Flags().StringVar(&gabineteID, "gabinete", "", "gabinete id the token is scoped to")
	cmd.Flags().StringVar(&role, "role", string(permissions.RoleChefeGabinete), "role carried in the token")
	return cmd
}
