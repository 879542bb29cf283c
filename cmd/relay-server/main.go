package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cheildo/duel-relay/internal/config"
	"github.com/cheildo/duel-relay/internal/diagnostics"
	"github.com/cheildo/duel-relay/internal/events"
	"github.com/cheildo/duel-relay/internal/gateway"
	"github.com/cheildo/duel-relay/internal/lifecycle"
	"github.com/cheildo/duel-relay/internal/metrics"
	"github.com/cheildo/duel-relay/internal/pkg/database"
	"github.com/cheildo/duel-relay/internal/pkg/kafka"
	"github.com/cheildo/duel-relay/internal/pkg/logger"
	"github.com/cheildo/duel-relay/internal/pkg/redis"
	"github.com/cheildo/duel-relay/internal/playerprofile"
)

func startDiagnosticsServer(port string, log *slog.Logger) {
	go func() {
		log.Info("Starting diagnostics server", "port", port)
		// http.DefaultServeMux already has the pprof handlers registered by the import.
		if err := http.ListenAndServe(fmt.Sprintf(":%s", port), nil); err != nil {
			log.Error("Diagnostics server failed to start", "error", err)
		}
	}()
}

func main() {
	// --- Configuration Loading ---
	cfg, err := config.Load("relay-server", "./configs/development", ".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log, logCloser := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	// --- Profile Store ---
	store, closeStore, err := newProfileStore(cfg, log)
	if err != nil {
		log.Error("Failed to initialize profile store", "store", cfg.Profile.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	profiles := playerprofile.NewService(store, cfg.Profile.Timeout, log)

	// --- Match Events ---
	publisher := events.NopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MatchEventsTopic, log))
		log.Info("Publishing match events to Kafka", "topic", cfg.Kafka.MatchEventsTopic)
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Dependency Injection ---
	ctrl := lifecycle.New(profiles, publisher, m, log)
	conns := gateway.NewConnectionManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wsHandler := gateway.NewWebsocketHandler(ctx, ctrl, conns, gateway.Config{
		SendBuffer: cfg.Websocket.SendBuffer,
		ReadLimit:  cfg.Websocket.ReadLimitBytes,
	}, log)

	// --- HTTP Router and Middleware Setup ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/ws", wsHandler)
	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPServer.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Relay server starting...", "port", cfg.HTTPServer.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// --- gRPC Diagnostics ---
	var diag *diagnostics.Server
	if cfg.GRPCServer.Port != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCServer.Port))
		if err != nil {
			log.Error("Failed to listen on gRPC port", "port", cfg.GRPCServer.Port, "error", err)
			os.Exit(1)
		}
		diag = diagnostics.NewServer(log)
		go func() {
			if err := diag.Serve(lis); err != nil {
				log.Error("gRPC server failed to serve", "error", err)
			}
		}()
	}

	if cfg.Diagnostics.Port != "" {
		startDiagnosticsServer(cfg.Diagnostics.Port, log)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down servers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	// Hijacked WebSocket connections are not tracked by http.Server.
	conns.CloseAll()
	if diag != nil {
		diag.Stop()
	}
	if err := publisher.Close(); err != nil {
		log.Error("Failed to flush match events", "error", err)
	}
	log.Info("Servers shut down gracefully.")
}

// newProfileStore picks the configured backing store. SQL stores may get a Redis cache
// in front. The returned func releases whatever was opened.
func newProfileStore(cfg *config.Config, log *slog.Logger) (playerprofile.Store, func(), error) {
	var (
		store playerprofile.Store
		db    *sql.DB
		err   error
	)
	switch cfg.Profile.Store {
	case config.ProfileStoreMemory:
		log.Info("Using in-memory profile store")
		return playerprofile.NewMemoryStore(), func() {}, nil
	case config.ProfileStoreSQLite:
		db, err = database.NewSQLiteDB(cfg.Profile.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using SQLite profile store", "path", cfg.Profile.SQLitePath)
		store = playerprofile.NewSQLiteRepository(db, log)
	default:
		db, err = database.NewPostgresDB(cfg.Database.DSN(), cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		log.Info("Database connection successful.")
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(db, log); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		store = playerprofile.NewRepository(db, log)
	}

	if !cfg.Profile.Cache.Enabled {
		return store, func() { db.Close() }, nil
	}

	rdb, err := redis.NewClient(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("Redis connection successful.")
	return playerprofile.NewCachedStore(rdb, store, cfg.Profile.Cache.TTL, log), func() {
		rdb.Close()
		db.Close()
	}, nil
}
