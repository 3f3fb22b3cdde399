package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/repository"
	"github.com/launchlens/launch-lens/internal/module/launch/tokenomics"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
)

const upsertLockTTL = 1 * time.Minute

// IngestOptions controls the overwrite and rescore policy for one ingestion.
type IngestOptions struct {
	Overwrite    bool
	ForceRescore bool
}

type IngestAction string

const (
	ActionInserted IngestAction = "inserted"
	ActionUpdated  IngestAction = "updated"
	ActionRescored IngestAction = "rescored"
	ActionSkipped  IngestAction = "skipped"
)

type IngestOutcome struct {
	Action IngestAction
	Record *schema.LaunchRecord
}

// LaunchGatewayService is the write path for launches: it applies the
// dedup/overwrite decision table against the (title, launchpad) natural key,
// scores with the LLM when needed, and signals cache invalidation and
// notifications after successful writes.
type LaunchGatewayService interface {
	Ingest(ctx context.Context, record *schema.LaunchRecord, opts IngestOptions) (*IngestOutcome, error)
	Rescore(ctx context.Context, id uint64) (*schema.LaunchRecord, error)
	RefreshTokenStats(ctx context.Context, id uint64) (*schema.LaunchRecord, error)
	Delete(title string, launchpad string) error
}

type launchGatewayService struct {
	config        *koanf.Koanf
	logger        zerolog.Logger
	repo          repository.LaunchRepository
	signals       LaunchSignalStore
	llmService    LLMService
	notifier      NotifierService
	chainClients  ChainClients
	client        *http.Client
	revalidateURL string
	retryAttempts int
	retryDelay    time.Duration
}

func NewLaunchGatewayService(cfg *koanf.Koanf, logger zerolog.Logger, repo repository.LaunchRepository, signals LaunchSignalStore, llmService LLMService, notifier NotifierService, chainClients ChainClients) LaunchGatewayService {
	return &launchGatewayService{
		config:        cfg,
		logger:        logger,
		repo:          repo,
		signals:       signals,
		llmService:    llmService,
		notifier:      notifier,
		chainClients:  chainClients,
		client:        &http.Client{Timeout: 10 * time.Second},
		revalidateURL: cfg.String("cache.revalidate-url"),
		retryAttempts: cfg.Int("fetch.retry-attempts"),
		retryDelay:    cfg.Duration("fetch.retry-base-delay"),
	}
}

func upsertLockKey(record *schema.LaunchRecord) string {
	sum := sha1.Sum([]byte(record.Title))
	return fmt.Sprintf("launch_upsert:%s:%s", record.Launchpad, hex.EncodeToString(sum[:]))
}

func (s *launchGatewayService) Ingest(ctx context.Context, record *schema.LaunchRecord, opts IngestOptions) (*IngestOutcome, error) {
	if record == nil || record.Title == "" {
		return nil, &shared.ValidationError{Field: "record", Reason: "missing title"}
	}
	if record.Launchpad == "" {
		record.Launchpad = schema.LaunchpadManual
	}

	// Per-natural-key critical section. Two passes observing "no existing
	// record" for the same key at once would otherwise race the insert.
	lockKey := upsertLockKey(record)
	if !s.signals.AcquireLock(lockKey, upsertLockTTL) {
		return nil, &shared.TransientFetchError{Op: "upsert lock", Err: fmt.Errorf("natural key %s/%s is being processed elsewhere", record.Launchpad, record.Title)}
	}
	defer s.signals.ReleaseLock(lockKey)

	existing, err := s.repo.GetByNaturalKey(record.Title, record.Launchpad)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		s.score(ctx, record)
		if err := s.repo.Upsert(record); err != nil {
			return nil, err
		}
		s.afterWrite(ctx, record, true)
		return &IngestOutcome{Action: ActionInserted, Record: record}, nil
	}

	needsScore := opts.ForceRescore || s.config.Bool("llm.force-rescore") || !existing.IsScored()

	if opts.Overwrite {
		if needsScore {
			s.score(ctx, record)
		} else {
			// Keep the stored LLM output so the upsert does not regress it
			// to placeholders.
			record.Summary = existing.Summary
			record.Analysis = existing.Analysis
			record.Rating = existing.Rating
			record.LLMAnalysisUpdatedAt = existing.LLMAnalysisUpdatedAt
		}
		if err := s.repo.Upsert(record); err != nil {
			return nil, err
		}
		s.afterWrite(ctx, record, false)
		return &IngestOutcome{Action: ActionUpdated, Record: record}, nil
	}

	if needsScore {
		score := s.llmService.ScoreLaunch(ctx, existing.Description, existing.Launchpad)
		if err := s.repo.UpdateLLMFields(existing.ID, score.Summary, score.Analysis, score.Rating); err != nil {
			return nil, err
		}
		existing.Summary = score.Summary
		existing.Analysis = score.Analysis
		existing.Rating = score.Rating
		s.afterWrite(ctx, existing, false)
		return &IngestOutcome{Action: ActionRescored, Record: existing}, nil
	}

	s.logger.Info().Str("title", record.Title).Str("launchpad", record.Launchpad).Msg("launch unchanged, skipping")
	return &IngestOutcome{Action: ActionSkipped, Record: existing}, nil
}

// score runs the LLM and writes the result into the record. Scoring failure
// leaves the placeholders in place; the launch is persisted regardless.
func (s *launchGatewayService) score(ctx context.Context, record *schema.LaunchRecord) {
	result := s.llmService.ScoreLaunch(ctx, record.Description, record.Launchpad)
	record.Summary = result.Summary
	record.Analysis = result.Analysis
	record.Rating = result.Rating
	if result.Rating != schema.RatingUnrated {
		now := time.Now()
		record.LLMAnalysisUpdatedAt = &now
	}
}

// invalidateCaches clears the redis-side list cache and, when a revalidate
// URL is configured, pings the frontend so it rebuilds its pages. Both are
// best effort.
func (s *launchGatewayService) invalidateCaches(ctx context.Context) {
	if err := s.signals.InvalidateLaunchCache(); err != nil {
		s.logger.Warn().Err(err).Msg("launch cache invalidation failed")
	}
	if s.revalidateURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revalidateURL, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("revalidate request build failed")
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.revalidateURL).Msg("revalidate ping failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn().Int("status", resp.StatusCode).Str("url", s.revalidateURL).Msg("revalidate ping rejected")
	}
}

// afterWrite fires the cache invalidation signals and, for new records, the
// chat notification.
func (s *launchGatewayService) afterWrite(ctx context.Context, record *schema.LaunchRecord, isNew bool) {
	s.invalidateCaches(ctx)
	if isNew {
		if err := s.notifier.NotifyLaunch(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("title", record.Title).Msg("launch notification failed")
		}
	}
}

func (s *launchGatewayService) Rescore(ctx context.Context, id uint64) (*schema.LaunchRecord, error) {
	record, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &shared.NotFoundError{Resource: "launch", ID: fmt.Sprintf("%d", id)}
	}

	score := s.llmService.ScoreLaunch(ctx, record.Description, record.Launchpad)
	if err := s.repo.UpdateLLMFields(record.ID, score.Summary, score.Analysis, score.Rating); err != nil {
		return nil, err
	}
	record.Summary = score.Summary
	record.Analysis = score.Analysis
	record.Rating = score.Rating
	s.afterWrite(ctx, record, false)
	return record, nil
}

// RefreshTokenStats re-reads the creator balance and holding percentage from
// chain and writes only the tokenomics fields.
func (s *launchGatewayService) RefreshTokenStats(ctx context.Context, id uint64) (*schema.LaunchRecord, error) {
	record, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &shared.NotFoundError{Resource: "launch", ID: fmt.Sprintf("%d", id)}
	}
	if record.TokenAddress == nil || record.CreatorAddress == nil {
		return nil, &shared.ValidationError{Field: "addresses", Reason: "record has no token or creator address to refresh from"}
	}

	client, err := s.chainClients.ForChain(record.Chain)
	if err != nil {
		return nil, err
	}

	var balance *big.Int
	err = shared.Retry(ctx, s.retryAttempts, s.retryDelay, func() error {
		balance, err = client.TokenBalance(ctx, *record.TokenAddress, *record.CreatorAddress)
		return err
	})
	if err != nil {
		return nil, err
	}
	var supply *big.Int
	err = shared.Retry(ctx, s.retryAttempts, s.retryDelay, func() error {
		supply, err = client.TotalSupply(ctx, *record.TokenAddress)
		return err
	})
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"creator_tokens_held": balance.String(),
		"total_token_supply":  supply.String(),
	}
	if pct := tokenomics.PercentageOf(balance, supply); pct != nil {
		updates["creator_token_holding_percentage"] = *pct
	}

	if err := s.repo.UpdateTokenStats(record.ID, updates); err != nil {
		return nil, err
	}
	s.invalidateCaches(ctx)

	held := balance.String()
	supplyStr := supply.String()
	record.CreatorTokensHeld = &held
	record.TotalTokenSupply = &supplyStr
	record.CreatorTokenHoldingPercentage = tokenomics.PercentageOf(balance, supply)
	return record, nil
}

func (s *launchGatewayService) Delete(title string, launchpad string) error {
	if err := s.repo.DeleteByNaturalKey(title, launchpad); err != nil {
		return err
	}
	s.invalidateCaches(context.Background())
	return nil
}
