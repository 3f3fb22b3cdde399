package service

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/module/launch/repository"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/launchlens/launch-lens/utils/config"
	"github.com/rs/zerolog"
)

// IngestionService runs the poll-normalize-upsert pipeline. RunPass is what
// the scheduler fires on its timer; ProcessOne is the on-demand debug path.
type IngestionService interface {
	// RunPass polls every enabled launchpad once and processes unseen items
	// sequentially. Item failures are contained; the pass always completes.
	RunPass(ctx context.Context) error
	// ProcessOne ingests a single item by external id, optionally deleting
	// the stored record first to force full reprocessing.
	ProcessOne(ctx context.Context, launchpadName string, externalID string, overwrite bool, purge bool) (*IngestOutcome, error)
}

type ingestionService struct {
	config       *koanf.Koanf
	logger       zerolog.Logger
	launchpadAPI LaunchpadAPIService
	normalizer   NormalizerService
	gateway      LaunchGatewayService
	repo         repository.LaunchRepository
	signals      LaunchSignalStore
	alerter      ErrorAlerter
	throttler    LaunchThrottle
}

func NewIngestionService(cfg *koanf.Koanf, logger zerolog.Logger, launchpadAPI LaunchpadAPIService, normalizer NormalizerService, gateway LaunchGatewayService, repo repository.LaunchRepository, signals LaunchSignalStore, alerter ErrorAlerter, throttler LaunchThrottle) IngestionService {
	return &ingestionService{
		config:       cfg,
		logger:       logger,
		launchpadAPI: launchpadAPI,
		normalizer:   normalizer,
		gateway:      gateway,
		repo:         repo,
		signals:      signals,
		alerter:      alerter,
		throttler:    throttler,
	}
}

func (s *ingestionService) RunPass(ctx context.Context) error {
	for _, launchpad := range s.launchpadAPI.Launchpads() {
		if err := s.runLaunchpadPass(ctx, launchpad); err != nil {
			s.logger.Error().Err(err).Str("launchpad", launchpad.Name).Msg("launchpad pass failed")
			s.alerter.HandleErrorWithThrottling("ingestion:"+launchpad.Name, err.Error())
		}
	}
	return nil
}

func (s *ingestionService) runLaunchpadPass(ctx context.Context, launchpad config.Launchpad) error {
	summaries, err := s.launchpadAPI.RecentLaunches(ctx, launchpad)
	if err != nil {
		return err
	}

	known, err := s.repo.GetKnownExternalIDs(launchpad.Name)
	if err != nil {
		return err
	}

	processed := 0
	for _, summary := range summaries {
		// Known ids are filtered before the expensive detail fetch.
		if _, ok := known[summary.ExternalID]; ok {
			continue
		}
		if seen, err := s.signals.IsExternalIDSeen(launchpad.Name, summary.ExternalID); err == nil && seen {
			continue
		}
		if s.throttler.IsLaunchThrottled(launchpad.Name, summary.ExternalID) {
			continue
		}

		if err := s.processSummary(ctx, launchpad, summary); err != nil {
			s.logger.Warn().Err(err).
				Str("launchpad", launchpad.Name).
				Str("external_id", summary.ExternalID).
				Msg("item processing failed")
			// A 429 from upstream throttles immediately instead of counting.
			s.throttler.LaunchThrottle(launchpad.Name, summary.ExternalID, shared.TransientStatus(err))
			continue
		}
		processed++
	}

	s.logger.Info().Str("launchpad", launchpad.Name).
		Int("listed", len(summaries)).
		Int("processed", processed).
		Msg("ingestion pass complete")
	return nil
}

func (s *ingestionService) processSummary(ctx context.Context, launchpad config.Launchpad, summary LaunchSummary) error {
	detail, err := s.launchpadAPI.LaunchDetail(ctx, launchpad, summary.ExternalID)
	if err != nil {
		if shared.IsNotFound(err) {
			// Gone upstream; remember the id so later passes stop asking.
			s.signals.MarkExternalIDSeen(launchpad.Name, summary.ExternalID)
			s.logger.Info().Str("external_id", summary.ExternalID).Msg("launch no longer exists upstream")
			return nil
		}
		return err
	}

	result, err := s.normalizer.Normalize(ctx, launchpad, summary, detail)
	if err != nil {
		return err
	}
	if result.Skipped {
		s.logger.Info().
			Str("launchpad", launchpad.Name).
			Str("external_id", summary.ExternalID).
			Str("reason", result.SkipReason).
			Msg("launch skipped")
		return nil
	}

	if _, err := s.gateway.Ingest(ctx, result.Record, IngestOptions{}); err != nil {
		return err
	}

	s.signals.MarkExternalIDSeen(launchpad.Name, summary.ExternalID)
	return nil
}

func (s *ingestionService) ProcessOne(ctx context.Context, launchpadName string, externalID string, overwrite bool, purge bool) (*IngestOutcome, error) {
	var launchpad *config.Launchpad
	for _, lp := range s.launchpadAPI.Launchpads() {
		if lp.Name == launchpadName {
			candidate := lp
			launchpad = &candidate
			break
		}
	}
	if launchpad == nil {
		return nil, &shared.ValidationError{Field: "launchpad", Reason: fmt.Sprintf("unknown launchpad %q", launchpadName)}
	}

	detail, err := s.launchpadAPI.LaunchDetail(ctx, *launchpad, externalID)
	if err != nil {
		return nil, err
	}

	summary := LaunchSummary{
		Launchpad:  launchpad.Name,
		ExternalID: externalID,
		Title:      extractTitle(detail),
		Raw:        detail,
	}

	result, err := s.normalizer.Normalize(ctx, *launchpad, summary, detail)
	if err != nil {
		return nil, err
	}
	if result.Skipped {
		return &IngestOutcome{Action: ActionSkipped}, nil
	}

	if purge {
		if err := s.gateway.Delete(result.Record.Title, launchpad.Name); err != nil {
			return nil, err
		}
		s.signals.ForgetExternalID(launchpad.Name, externalID)
	}

	outcome, err := s.gateway.Ingest(ctx, result.Record, IngestOptions{Overwrite: overwrite, ForceRescore: overwrite})
	if err != nil {
		return nil, err
	}
	s.signals.MarkExternalIDSeen(launchpad.Name, externalID)
	return outcome, nil
}
