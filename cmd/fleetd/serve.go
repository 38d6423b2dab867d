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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/realtime/internal/alerting"
	"fleet-monitor/realtime/internal/auth"
	"fleet-monitor/realtime/internal/config"
	"fleet-monitor/realtime/internal/logging"
	"fleet-monitor/realtime/internal/pipeline"
	"fleet-monitor/realtime/internal/presence"
	"fleet-monitor/realtime/internal/realtime"
	"fleet-monitor/realtime/internal/rules"
	"fleet-monitor/realtime/internal/store"
	transporthttp "fleet-monitor/realtime/internal/transport/http"
	"fleet-monitor/realtime/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

var (
	migrateOnStart bool
	alertStoreKind string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, WebSocket feed and background workers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply the database schema before serving")
	serveCmd.Flags().StringVar(&alertStoreKind, "alert-store", "postgres", "where alerts live: postgres or memory")
}

type alertBackend interface {
	alerting.AlertStore
	transporthttp.AlertReader
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ruleSet, err := rules.LoadFile(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL())
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to postgres", "host", cfg.DBHost, "db", cfg.DBName)

	if migrateOnStart {
		if err := db.Migrate(ctx, logger); err != nil {
			return err
		}
	}

	var alerts alertBackend
	switch alertStoreKind {
	case "postgres":
		alerts = db
	case "memory":
		alerts = store.NewMemoryAlertStore()
		logger.Warn("alerts are kept in memory and lost on restart")
	default:
		return fmt.Errorf("unknown --alert-store %q", alertStoreKind)
	}

	var redisStore *store.RedisStore
	if cfg.RedisEnabled {
		redisStore, err = store.NewRedisStore(ctx, cfg, logger.With("component", "redis"))
		if err != nil {
			return err
		}
		defer redisStore.Close()
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	registry := realtime.NewRegistry()
	hub := ws.NewHub(registry, cfg.WSSendBuffer, logger.With("component", "ws"))
	broadcaster := realtime.NewBroadcaster(registry, hub, realtime.Options{
		ThrottleWindow: cfg.ThrottleWindow(),
		Policy:         realtime.ThrottlePolicy(cfg.ThrottlePolicy),
		Logger:         logger.With("component", "broadcaster"),
	})

	tracker := presence.New(presence.Options{
		OfflineThreshold: cfg.OfflineThreshold(),
		SweepInterval:    cfg.SweepInterval(),
		Logger:           logger.With("component", "presence"),
	}, broadcaster.BroadcastStatus)
	defer tracker.Stop()

	notifiers := alerting.Notifiers{broadcaster}
	if redisStore != nil {
		notifiers = append(notifiers, redisStore)
	}
	evaluator := alerting.NewEvaluator(ruleSet, alerts, notifiers, logger.With("component", "alerting"))

	pipeDeps := pipeline.Deps{
		Telemetry:   db,
		LastSeen:    db,
		Evaluator:   evaluator,
		Presence:    tracker,
		Broadcaster: broadcaster,
	}
	if redisStore != nil {
		pipeDeps.State = redisStore
	}
	pipe := pipeline.New(pipeDeps, pipeline.Options{
		LastSeenChannelSize:   cfg.LastSeenChannelSize,
		StateChannelSize:      cfg.StateChannelSize,
		AlertChannelSize:      cfg.AlertChannelSize,
		AlertWorkers:          cfg.AlertWorkers,
		LastSeenBatchSize:     cfg.LastSeenBatchSize,
		LastSeenFlushInterval: cfg.LastSeenFlushInterval(),
		Logger:                logger.With("component", "pipeline"),
	})

	users, err := auth.NewUserStore(cfg.AdminPassword, cfg.ViewerPassword)
	if err != nil {
		return err
	}

	httpDeps := transporthttp.Deps{
		Vehicles:  db,
		Telemetry: db,
		Alerts:    alerts,
		Ingester:  pipe,
		Presence:  tracker,
		Users:     users,
		JWT:       auth.NewJWTService([]byte(cfg.JWTSecret), time.Duration(cfg.JWTTTLMinutes)*time.Minute),
		WebSocket: hub,
		Health:    map[string]transporthttp.Pinger{"postgres": db},
		Logger:    logger.With("component", "http"),
	}
	if redisStore != nil {
		httpDeps.LiveState = redisStore
		httpDeps.Health["redis"] = redisStore
	}
	if cfg.IngestRequireAPIKey {
		var keys auth.KeyLookup
		if redisStore != nil {
			keys = redisStore
		}
		httpDeps.APIKeys = auth.NewAuthenticator(cfg, keys, logger.With("component", "auth"))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           transporthttp.NewServer(httpDeps).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	pipe.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	pipe.Stop()
	return err
}
