package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-replay/internal/events"
	"session-replay/internal/frames"
	"session-replay/internal/platform/config"
	"session-replay/internal/platform/logger"
	"session-replay/internal/platform/metrics"
	"session-replay/internal/session"
	"session-replay/internal/store"
	"session-replay/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	dbPath := config.GetEnv("DB_PATH", "")
	jpegQuality := config.GetEnvInt("JPEG_QUALITY", frames.DefaultJPEGQuality)
	watchMedia := config.GetEnv("WATCH_MEDIA", "true") == "true"
	secondaryDriftMs := config.GetEnvFloat("SYNC_SECONDARY_DRIFT_MS", sync.DefaultSecondaryDriftTolerance*1000)
	primaryDriftMs := config.GetEnvFloat("SYNC_PRIMARY_DRIFT_MS", sync.DefaultPrimaryDriftTolerance*1000)
	coalesceGapMs := config.GetEnvFloat("EVENTS_COALESCE_GAP_MS", events.DefaultCoalesceGapSeconds*1000)
	seekSkipMs := config.GetEnvFloat("FRAMES_SEEK_SKIP_MS", frames.DefaultSeekSkipWindow*1000)
	endEpsilonMs := config.GetEnvFloat("FRAMES_END_EPSILON_MS", frames.DefaultEndEpsilon*1000)
	shutdownTimeout := config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	corsOrigins := config.GetEnv("CORS_ORIGINS", "*")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	var st store.Store
	if dbPath != "" {
		sqlite, err := store.OpenSQLite(dbPath)
		if err != nil {
			log.Error("open database failed", "path", dbPath, "error", err)
			os.Exit(1)
		}
		st = sqlite
	} else {
		log.Warn("DB_PATH not set, using empty in-memory store")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	met := metrics.New()
	mgr := session.NewManager(st, session.Config{
		Sync: sync.Config{
			SecondaryDriftTolerance: secondaryDriftMs / 1000,
			PrimaryDriftTolerance:   primaryDriftMs / 1000,
		},
		Frames: frames.Config{
			SeekSkipWindow: seekSkipMs / 1000,
			EndEpsilon:     endEpsilonMs / 1000,
		},
		Events: events.Config{
			CoalesceGapSeconds: coalesceGapMs / 1000,
		},
		JPEGQuality: jpegQuality,
		WatchMedia:  watchMedia,
	}, log, met)
	h := session.NewHandler(mgr, st, log, met)

	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{corsOrigins},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(nil).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"db_path", dbPath,
		"watch_media", watchMedia,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	mgr.CloseAll()

	log.Info("server stopped")
}
