package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"checkin/internal/checkin"
	"checkin/internal/config"
	"checkin/internal/logging"
	"checkin/internal/metrics"
	"checkin/internal/queue"
	"checkin/internal/store"
)

const repairAttempts = 3

// Worker consumes repair messages and rewrites both representations of
// scans whose dual write did not complete.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, "checkin-worker")
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Fatal().Msg("the repair worker needs QUEUE_BACKEND=redis")
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	docs, err := store.OpenDocuments(startCtx, cfg.StoreBackend, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("store connect failed")
	}
	defer docs.Close()

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_ADDR")
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, consumer will keep retrying")
	}
	q := queue.NewRedisQueue(redisClient.Client, cfg.RepairQueueKey)

	resolver := checkin.NewResolver(docs, cfg.ResolverCacheTTL, log)
	maint := checkin.NewMaintenance(docs, resolver, checkin.NewStudents(docs), log)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Str("queue", cfg.RepairQueueKey).Msg("worker started, waiting for repairs")
	for msg := range messages {
		handle(ctx, maint, q, msg, log)
	}
	log.Info().Msg("worker stopped")
}

func handle(ctx context.Context, maint *checkin.Maintenance, q queue.Queue, msg queue.Message, log zerolog.Logger) {
	if msg.Type != queue.TypeRepair {
		log.Warn().Str("type", msg.Type).Msg("skipping unknown message")
		return
	}

	var req checkin.RepairRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		metrics.RepairsApplied.WithLabelValues("invalid").Inc()
		log.Error().Err(err).Msg("decode repair request")
		return
	}
	rlog := log.With().Str("scanId", req.ScanID).Str("eventId", req.EventID).Logger()

	var err error
retry:
	for attempt := 1; attempt <= repairAttempts; attempt++ {
		applied, rerr := maint.Repair(ctx, req)
		if err = rerr; err == nil {
			if applied {
				metrics.RepairsApplied.WithLabelValues("ok").Inc()
			} else {
				metrics.RepairsApplied.WithLabelValues("obsolete").Inc()
			}
			return
		}
		if errors.Is(err, checkin.ErrValidation) {
			metrics.RepairsApplied.WithLabelValues("invalid").Inc()
			rlog.Error().Err(err).Msg("dropping malformed repair")
			return
		}
		rlog.Warn().Err(err).Int("attempt", attempt).Msg("repair failed")
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
			break retry
		}
	}

	metrics.RepairsApplied.WithLabelValues("failed").Inc()
	// push it back so a later run can apply it once the store recovers
	requeueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if perr := q.Publish(requeueCtx, msg); perr != nil {
		rlog.Error().Err(perr).AnErr("repairErr", err).Msg("repair dropped, scan representations may diverge")
		return
	}
	rlog.Error().Err(err).Msg("repair requeued")
}
