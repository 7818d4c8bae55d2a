package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/floodgate/api"
	"github.com/yourusername/floodgate/metrics"
	"github.com/yourusername/floodgate/pkg/floodgate"
	"github.com/yourusername/floodgate/store"
)

func main() {
	// A missing .env is fine; environment variables take over.
	_ = godotenv.Load()

	log := newLogger(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "json"))

	opts := []floodgate.Option{floodgate.WithLogger(log)}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		opts = append(opts, floodgate.WithConfigFile(path))
	}

	registry := prometheus.NewRegistry()
	opts = append(opts, floodgate.WithMetrics(metrics.NewCollector(registry)))

	limiter, err := floodgate.NewRateLimiter(opts...)
	if err != nil {
		log.WithError(err).Fatal("failed to create rate limiter")
	}

	// Reputation persistence: Redis when configured, otherwise in-memory
	// (snapshots are lost on restart).
	snapshots := newSnapshotStore(log)
	defer snapshots.Close()
	restoreSnapshot(limiter, snapshots, log)

	stopSweep := limiter.StartBackgroundSweep()
	defer stopSweep()

	handler := api.NewHandler(limiter, log)
	mux := handler.Routes()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := ":" + getEnv("PORT", "8080")
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("floodgate server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := snapshots.Save(saveCtx, limiter.Snapshot()); err != nil {
		log.WithError(err).Warn("failed to persist reputation snapshot")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown did not complete cleanly")
	}
}

func newSnapshotStore(log *logrus.Logger) store.SnapshotStore {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Info("using in-memory snapshot store")
		return store.NewMemoryStore()
	}

	redisStore := store.NewRedisStore(store.RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisStore.Ping(ctx); err != nil {
		log.WithError(err).Fatal("failed to connect to Redis")
	}

	log.WithField("addr", redisAddr).Info("connected to Redis")
	return redisStore
}

func restoreSnapshot(limiter *floodgate.RateLimiter, snapshots store.SnapshotStore, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := snapshots.Load(ctx)
	if err == store.ErrNoSnapshot {
		return
	}
	if err != nil {
		log.WithError(err).Warn("failed to load reputation snapshot")
		return
	}

	limiter.RestoreSnapshot(snap)
	log.WithFields(logrus.Fields{
		"trusted": len(snap.Trusted),
		"banned":  len(snap.Banned),
	}).Info("reputation snapshot restored")
}

func newLogger(level, format string) *logrus.Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	log.SetOutput(os.Stdout)
	return log
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
