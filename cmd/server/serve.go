package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/ai"
	"github.com/kiranshivaraju/errtrack/internal/api"
	"github.com/kiranshivaraju/errtrack/internal/api/handler"
	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/assistant"
	"github.com/kiranshivaraju/errtrack/internal/auth"
	"github.com/kiranshivaraju/errtrack/internal/cache"
	"github.com/kiranshivaraju/errtrack/internal/config"
	"github.com/kiranshivaraju/errtrack/internal/discussion"
	"github.com/kiranshivaraju/errtrack/internal/ingest"
	"github.com/kiranshivaraju/errtrack/internal/metrics"
	"github.com/kiranshivaraju/errtrack/internal/notify"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/internal/triage"
	"github.com/kiranshivaraju/errtrack/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log.Level))
	metrics.SetBuildInfo(version, commit)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"database_driver", cfg.Database.Driver,
		"redis", cfg.Redis.URL != "",
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open store (runs migrations for Postgres)
	s, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Optional Redis
	c, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	if cfg.Database.Driver == config.DriverMemory {
		if err := seedDevData(ctx, s, cfg); err != nil {
			return fmt.Errorf("seed development data: %w", err)
		}
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("ai provider: %w", err)
	}
	if provider != nil {
		slog.Info("help assistant enabled", "provider", provider.Name())
	}

	// 4. Build router and start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      buildRouter(cfg, s, c, provider),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore returns the configured store and a function that releases it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return store.NewPostgresStore(pool), pool.Close, nil
}

// openCache connects to Redis when configured. A nil Cache means the server
// runs with in-process rate limiting and no API key cache.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	if cfg.Redis.URL == "" {
		return nil, func() {}, nil
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	return redisCache, func() { redisCache.Close() }, nil
}

// buildRouter wires services and handlers. c and provider may be nil.
func buildRouter(cfg *config.Config, s store.Store, c cache.Cache, provider models.AIProvider) http.Handler {
	tokens := auth.NewJWTService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.Issuer)

	var limiter cache.Limiter = cache.NewLocalLimiter(cfg.Ingest.RateLimitPerMinute)
	var cachePing handler.Pinger
	if c != nil {
		limiter = cache.NewWindowLimiter(c, cfg.Ingest.RateLimitPerMinute)
		cachePing = c
	}

	notifier := notify.NewNotifier(s)
	ingestSvc := ingest.NewService(s, ingest.WithStoreTimeout(cfg.Ingest.StoreTimeout))
	triageSvc := triage.NewService(s, notifier)
	discussionSvc := discussion.NewService(s, notifier)
	assistantSvc := assistant.NewService(provider, s, cfg.AI.InferenceTimeout)

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(s, tokens, c, cfg.Ingest.APIKeyCacheTTL),
		RateLimit: mw.NewRateLimit(limiter),

		HealthHandler:  handler.NewHealthHandler(s, cachePing),
		MetricsHandler: promhttp.Handler(),

		ReportHandler:   handler.NewReportHandler(ingestSvc),
		IncidentHandler: handler.NewIncidentHandler(ingestSvc, triageSvc),
		ListErrors:      handler.NewListErrorsHandler(triageSvc),
		GetError:        handler.NewGetErrorHandler(triageSvc),
		UpdateError:     handler.NewUpdateErrorHandler(triageSvc),
		DeleteError:     handler.NewDeleteErrorHandler(triageSvc),

		ListComments: handler.NewListCommentsHandler(triageSvc, discussionSvc),
		AddComment:   handler.NewAddCommentHandler(triageSvc, discussionSvc),

		DashboardStats: handler.NewDashboardStatsHandler(triageSvc),
		RecentErrors:   handler.NewRecentErrorsHandler(triageSvc),

		ListNotifications: handler.NewListNotificationsHandler(notifier),
		UnreadCount:       handler.NewUnreadCountHandler(notifier),
		MarkRead:          handler.NewMarkReadHandler(notifier),
		MarkAllRead:       handler.NewMarkAllReadHandler(notifier),

		Help: handler.NewHelpHandler(assistantSvc),
	})
}

// seedDevData creates an admin and a project in an empty in-memory store and
// logs their credentials, so a development server is usable immediately.
func seedDevData(ctx context.Context, s store.Store, cfg *config.Config) error {
	admin := &models.User{
		ID:        uuid.New(),
		Email:     "admin@localhost",
		Name:      "Admin",
		Role:      models.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	key, err := auth.GenerateAPIKey(bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	project := &models.Project{
		ID:           uuid.New(),
		Name:         "default",
		OwnerID:      admin.ID,
		APIKeyPrefix: key.Prefix,
		APIKeyHash:   key.Hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateProject(ctx, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	tokens := auth.NewJWTService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	token, err := tokens.GenerateToken(admin)
	if err != nil {
		return fmt.Errorf("issue admin token: %w", err)
	}

	slog.Info("development credentials",
		"project_id", project.ID,
		"api_key", key.Raw,
		"admin_id", admin.ID,
		"admin_token", token,
	)
	return nil
}
