package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/api"
	"github.com/reportgate/reportgate/pkg/audit"
	"github.com/reportgate/reportgate/pkg/config"
	"github.com/reportgate/reportgate/pkg/embed"
	"github.com/reportgate/reportgate/pkg/entitlement"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/links"
	"github.com/reportgate/reportgate/pkg/observability"
	"github.com/reportgate/reportgate/pkg/powerbi"
	"github.com/reportgate/reportgate/pkg/reports"
	"github.com/reportgate/reportgate/pkg/storage/postgres"
	"github.com/reportgate/reportgate/pkg/units"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := postgres.EnsureSchema(db); err != nil {
		logger.WithError(err).Fatal("failed to ensure schema")
	}

	userService := identity.NewPostgresService(db)
	unitService := units.NewPostgresService(db)
	reportService := reports.NewPostgresService(db)
	linkService := links.NewPostgresService(db)
	logStore := audit.NewPostgresStore(db)

	metrics := observability.NewMetrics()
	resolver := entitlement.NewResolver(unitService, reportService)
	upstream := powerbi.NewClient(cfg.PowerBI, logger, metrics)
	broker := embed.NewBroker(resolver, reportService, upstream, logStore, logger)
	tokens := identity.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	server := api.NewServer(api.Deps{
		Users:    userService,
		Units:    unitService,
		Reports:  reportService,
		Links:    linkService,
		Logs:     logStore,
		Resolver: resolver,
		Broker:   broker,
		Upstream: upstream,
		Tokens:   tokens,
		Metrics:  metrics,
		DB:       db,
	}, logger)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", addr).Info("starting server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
