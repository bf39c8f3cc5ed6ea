package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"checkin/internal/api"
	"checkin/internal/checkin"
	"checkin/internal/cloudinary"
	"checkin/internal/config"
	"checkin/internal/docstore"
	"checkin/internal/logging"
	"checkin/internal/photos"
	"checkin/internal/queue"
	"checkin/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, "checkin-api")
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	docs, err := store.OpenDocuments(startCtx, cfg.StoreBackend, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer docs.Close()

	health := map[string]api.HealthCheck{
		"store": func(ctx context.Context) bool { return docs.Ping(ctx) == nil },
	}

	var repairs queue.Queue
	if cfg.QueueBackend == "memory" {
		// nothing drains this queue in process; repairs are only logged
		repairs = queue.NewInMemory(256)
		log.Warn().Msg("in-memory repair queue, run the worker against redis to apply repairs")
	} else {
		redisClient, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		repairs = queue.NewRedisQueue(redisClient.Client, cfg.RepairQueueKey)
		health["redis"] = redisClient.Healthy
	}

	svc := buildServices(cfg, docs, repairs, log)

	r := api.NewRouter(svc, api.Options{
		OperatorSigningKey: cfg.OperatorSigningKey,
		JWTIssuer:          cfg.JWTIssuer,
		RateLimitPerMin:    cfg.RateLimitPerMin,
		RequestTimeout:     cfg.RequestTimeout,
		AccessLog:          true,
		Health:             health,
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Str("queue", cfg.QueueBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func buildServices(cfg config.App, docs docstore.Store, repairs checkin.Publisher, log zerolog.Logger) api.Services {
	resolver := checkin.NewResolver(docs, cfg.ResolverCacheTTL, log)
	students := checkin.NewStudents(docs)

	svc := api.Services{
		Events:      checkin.NewEvents(docs, resolver, cfg.TestEventID, log),
		Students:    students,
		Recorder:    checkin.NewRecorder(docs, resolver, students, repairs, cfg.RecordRetries, log),
		Reader:      checkin.NewReader(docs, resolver, log),
		Maintenance: checkin.NewMaintenance(docs, resolver, students, log),
		Deleter:     checkin.NewDeleter(docs, resolver, log),
		ErrorLog:    checkin.NewErrorLog(docs, log),
	}

	if cfg.CloudinaryConfigured() {
		cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.PhotoFolder)
		svc.Photos = photos.NewChecker(docs, cdn, log)
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		log.Warn().Msg("cloudinary not configured, photo endpoints disabled")
	}
	if cfg.OperatorSigningKey == "" {
		log.Warn().Msg("OPERATOR_SIGNING_KEY not set, maintenance endpoints are unauthenticated")
	}
	return svc
}
