package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
)

// Scheduler owns the ingestion timer loops. One loop per process; the redis
// lock keeps overlapping timer fires and other replicas from running a pass
// concurrently (skip-if-already-running).
type Scheduler struct {
	IngestionService service.IngestionService
	redisClient      *shared.RedisClient
	config           *koanf.Koanf
	Logger           zerolog.Logger
}

// NewScheduler creates a new Scheduler
func NewScheduler(ingestionService service.IngestionService, redisClient *shared.RedisClient, cfg *koanf.Koanf, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		IngestionService: ingestionService,
		redisClient:      redisClient,
		config:           cfg,
		Logger:           logger,
	}
}

func (s *Scheduler) StartLaunchIngestion() {
	interval := s.config.Duration("ingestion.interval")
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lockTTL := s.config.Duration("ingestion.lock-ttl")
	if lockTTL <= 0 {
		lockTTL = 4 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		redisLockKey := "launch_ingestion_lock"
		if s.redisClient.AcquireLock(redisLockKey, lockTTL) {
			passID := uuid.New().String()
			s.Logger.Info().Str("pass_id", passID).Msg("launch ingestion pass starting")
			if err := s.IngestionService.RunPass(context.Background()); err != nil {
				s.Logger.Error().Err(err).Str("pass_id", passID).Msg("launch ingestion pass failed")
			} else {
				s.Logger.Info().Str("pass_id", passID).Msg("launch ingestion pass finished")
			}
			s.redisClient.ReleaseLock(redisLockKey)
		}
	}
}
