package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/rentdesk/rentdesk/internal/activity"
	"github.com/rentdesk/rentdesk/internal/app"
	"github.com/rentdesk/rentdesk/internal/auth"
	"github.com/rentdesk/rentdesk/internal/contracts"
	"github.com/rentdesk/rentdesk/internal/dashboard"
	"github.com/rentdesk/rentdesk/internal/invoices"
	"github.com/rentdesk/rentdesk/internal/observability"
	"github.com/rentdesk/rentdesk/internal/payments"
	"github.com/rentdesk/rentdesk/internal/platform/cache"
	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
	"github.com/rentdesk/rentdesk/internal/tenants"
	"github.com/rentdesk/rentdesk/internal/users"
	"github.com/rentdesk/rentdesk/internal/view"
	"github.com/rentdesk/rentdesk/jobs"
	"github.com/rentdesk/rentdesk/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "web")
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "rentdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine(view.WithDefaultCurrency(cfg.DefaultCurrency))
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	loc := cfg.Location()
	dashboardCache := cache.NewVersioned(redisClient, "rentdesk:dashboard", cfg.DashboardCacheTTL)
	activityLogger := shared.NewActivityLogger(dbpool, dashboardCache, logger)
	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	mailQueue := jobs.NewMailQueue(jobClient)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool), auth.NewRedisTokenStore(redisClient), mailQueue, activityLogger, auth.Options{
		BaseURL:       cfg.AppBaseURL,
		SignupEnabled: cfg.SignupEnabled,
	})
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, rbacMiddleware.RequireLogin)

	shopService := shops.NewService(shops.NewRepository(dbpool), activityLogger, shops.Options{DefaultCurrency: cfg.DefaultCurrency, Location: loc})
	tenantService := tenants.NewService(tenants.NewRepository(dbpool), activityLogger)
	contractService := contracts.NewService(contracts.NewRepository(dbpool), activityLogger, contracts.Options{DefaultCurrency: cfg.DefaultCurrency, Location: loc})
	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), activityLogger, invoices.Options{Location: loc})
	paymentService := payments.NewService(payments.NewRepository(dbpool), activityLogger, loc)
	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), dashboardCache, loc)
	userService := users.NewService(users.NewRepository(dbpool), activityLogger)

	reportClient := report.NewClient(cfg.GotenbergURL)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		Health: func(r *http.Request) error {
			return errors.Join(dbpool.Ping(r.Context()), redisClient.Ping(r.Context()).Err())
		},
		AuthHandler:        authHandler,
		DashboardHandler:   dashboard.NewHandler(logger, dashboardService, templates, csrfManager, rbacMiddleware),
		ShopsHandler:       shops.NewHandler(logger, shopService, tenantService, templates, csrfManager, rbacMiddleware),
		TenantsHandler:     tenants.NewHandler(logger, tenantService, templates, csrfManager, rbacMiddleware),
		ContractsHandler:   contracts.NewHandler(logger, contractService, shopService, tenantService, templates, csrfManager, rbacMiddleware),
		InvoicesHandler:    invoices.NewHandler(logger, invoiceService, contractService, reportClient, templates, csrfManager, rbacMiddleware),
		PaymentsHandler:    payments.NewHandler(logger, paymentService, templates, csrfManager, rbacMiddleware),
		ActivityHandler:    activity.NewHandler(logger, activity.NewService(activity.NewRepository(dbpool)), templates, csrfManager, rbacMiddleware, loc),
		UsersHandler:       users.NewHandler(logger, userService, templates, csrfManager, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, templates, csrfManager, rbacMiddleware),
		ReportHandler:      report.NewHandler(reportClient, logger),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger, rbacMiddleware),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
