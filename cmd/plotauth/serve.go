package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/adeilh/plot-auth/auth"
	"github.com/adeilh/plot-auth/config"
	"github.com/adeilh/plot-auth/db/sql/postgres"
	"github.com/adeilh/plot-auth/httpx"
	"github.com/adeilh/plot-auth/logging"
	"github.com/adeilh/plot-auth/mailer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the database schema before serving.")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	cfg.LogFallbacks(logger)

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("database schema applied")
	}

	manager, err := newManager(cfg, db, logger)
	if err != nil {
		return err
	}
	handlers, err := httpx.NewAuthHandlers(httpx.AuthHandlersConfig{
		Service:       manager,
		Authorizer:    manager.Authorizer(),
		SessionCookie: cfg.Auth.SessionCookie,
		SecureCookie:  cfg.Auth.SecureCookie,
		Logger:        logger.Named("http"),
	})
	if err != nil {
		return err
	}

	opts := []httpx.ServerOption{
		httpx.WithAddress(cfg.HTTP.Addr),
		httpx.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
		httpx.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpx.WithLogger(logger.Named("http")),
		httpx.WithValidators(httpx.RequireJSON),
	}
	if len(cfg.HTTP.CORSOrigins) > 0 {
		cors := httpx.DefaultCORSConfig
		cors.AllowOrigins = cfg.HTTP.CORSOrigins
		cors.AllowCredentials = true
		opts = append(opts, httpx.WithCORS(&cors))
	}
	server := httpx.NewServer(opts...)

	var regErr error
	server.RegisterRoutes(func(a *httpx.App) {
		a.GET("/healthz", healthHandler(db))
		regErr = handlers.Register(a)
	})
	if regErr != nil {
		return regErr
	}

	err = server.Start(ctx)
	manager.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, config.ErrMissingDatabaseURL
	}
	return postgres.Open(ctx,
		postgres.WithDSN(cfg.Database.URL),
		postgres.WithMaxOpenConns(cfg.Database.MaxOpenConns),
		postgres.WithMaxIdleConns(cfg.Database.MaxIdleConns),
		postgres.WithConnMaxLifetime(cfg.Database.ConnMaxLifetime),
		postgres.WithLogger(logger.Named("postgres")),
	)
}

func newManager(cfg *config.Config, db *sql.DB, logger *zap.Logger) (*auth.Manager, error) {
	dir, err := postgres.NewUserDirectory(db)
	if err != nil {
		return nil, err
	}
	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return auth.NewManager(auth.ManagerConfig{
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		SessionSecret:  []byte(cfg.Auth.SessionSecret),
		ResetSecret:    []byte(cfg.Auth.ResetSecret),
		SessionTTL:     cfg.Auth.SessionTTL,
		ResetTTL:       cfg.Auth.ResetTTL,
		ClockSkew:      cfg.Auth.ClockSkew,
		Directory:      dir,
		Dispatcher:     dispatcher,
		LinkBaseURL:    cfg.Auth.ResetLinkBaseURL,
		PasswordHasher: auth.NewBcryptHasher(auth.WithBcryptCost(cfg.Auth.BcryptCost)),
		LegacyHashers:  []auth.PasswordHasher{auth.NewArgon2idHasher()},
		RehashOnLogin:  cfg.Auth.RehashOnLogin,
		Logger:         logger.Named("auth"),
	})
}

func newDispatcher(cfg *config.Config, logger *zap.Logger) (auth.EmailDispatcher, error) {
	if cfg.Mail.APIURL == "" {
		logger.Warn("MAIL_API_URL not set; reset links are logged at debug level only")
		return mailer.NewLogDispatcher(logger.Named("mailer")), nil
	}
	return mailer.NewHTTPDispatcher(mailer.HTTPDispatcherConfig{
		APIURL:  cfg.Mail.APIURL,
		APIKey:  cfg.Mail.APIKey,
		From:    cfg.Mail.From,
		Timeout: cfg.Mail.Timeout,
		Retries: cfg.Mail.MaxRetries,
		Logger:  logger.Named("mailer"),
	})
}

func healthHandler(db *sql.DB) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		if err := db.PingContext(c.Request().Context()); err != nil {
			return httpx.HTTPError(httpx.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
	}
}
