package service_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/repository"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSignalStore keeps the lock/seen/invalidation state in maps so the
// decision table runs without a redis instance.
type fakeSignalStore struct {
	locks         map[string]bool
	seen          map[string]bool
	invalidations int
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{locks: map[string]bool{}, seen: map[string]bool{}}
}

func (s *fakeSignalStore) AcquireLock(lockKey string, ttl time.Duration) bool {
	if s.locks[lockKey] {
		return false
	}
	s.locks[lockKey] = true
	return true
}

func (s *fakeSignalStore) ReleaseLock(lockKey string) {
	delete(s.locks, lockKey)
}

func (s *fakeSignalStore) InvalidateLaunchCache() error {
	s.invalidations++
	return nil
}

func (s *fakeSignalStore) MarkExternalIDSeen(launchpad string, externalID string) error {
	s.seen[launchpad+":"+externalID] = true
	return nil
}

func (s *fakeSignalStore) IsExternalIDSeen(launchpad string, externalID string) (bool, error) {
	return s.seen[launchpad+":"+externalID], nil
}

func (s *fakeSignalStore) ForgetExternalID(launchpad string, externalID string) error {
	delete(s.seen, launchpad+":"+externalID)
	return nil
}

type fakeLaunchRepository struct {
	records       map[string]*schema.LaunchRecord
	upserts       int
	llmUpdates    int
	lastLLMFields [2]string
}

func newFakeLaunchRepository() *fakeLaunchRepository {
	return &fakeLaunchRepository{records: map[string]*schema.LaunchRecord{}}
}

func naturalKey(title, launchpad string) string {
	return launchpad + "/" + title
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (r *fakeLaunchRepository) GetByNaturalKey(title string, launchpad string) (*schema.LaunchRecord, error) {
	return r.records[naturalKey(title, launchpad)], nil
}

func (r *fakeLaunchRepository) GetByID(id uint64) (*schema.LaunchRecord, error) {
	for _, record := range r.records {
		if record.ID == id {
			return record, nil
		}
	}
	return nil, nil
}

func (r *fakeLaunchRepository) GetKnownExternalIDs(launchpad string) (map[string]struct{}, error) {
	ids := map[string]struct{}{}
	for _, record := range r.records {
		if record.Launchpad == launchpad && record.LaunchpadSpecificID != nil {
			ids[*record.LaunchpadSpecificID] = struct{}{}
		}
	}
	return ids, nil
}

func (r *fakeLaunchRepository) Upsert(record *schema.LaunchRecord) error {
	r.upserts++
	if record.ID == 0 {
		record.ID = uint64(len(r.records) + 1)
	}
	r.records[naturalKey(record.Title, record.Launchpad)] = record
	return nil
}

func (r *fakeLaunchRepository) UpdateLLMFields(id uint64, summary string, analysis string, rating int) error {
	r.llmUpdates++
	r.lastLLMFields = [2]string{summary, analysis}
	for _, record := range r.records {
		if record.ID == id {
			record.Summary = summary
			record.Analysis = analysis
			record.Rating = rating
		}
	}
	return nil
}

func (r *fakeLaunchRepository) UpdateTokenStats(id uint64, updates map[string]interface{}) error {
	return nil
}

func (r *fakeLaunchRepository) DeleteByNaturalKey(title string, launchpad string) error {
	delete(r.records, naturalKey(title, launchpad))
	return nil
}

func (r *fakeLaunchRepository) List(filter repository.LaunchFilter) ([]schema.LaunchRecord, int64, error) {
	return nil, 0, nil
}

func (r *fakeLaunchRepository) CheckLaunchExists(launchpad string, externalID string) (bool, error) {
	ids, _ := r.GetKnownExternalIDs(launchpad)
	_, ok := ids[externalID]
	return ok, nil
}

type fakeLLMService struct {
	calls int
	score service.LaunchScore
}

func (s *fakeLLMService) IsEnabled() bool { return true }

func (s *fakeLLMService) ScoreLaunch(ctx context.Context, description string, launchpad string) service.LaunchScore {
	s.calls++
	return s.score
}

type fakeNotifier struct {
	notified []string
}

func (n *fakeNotifier) IsEnabled() bool { return true }

func (n *fakeNotifier) NotifyLaunch(ctx context.Context, record *schema.LaunchRecord) error {
	n.notified = append(n.notified, record.Title)
	return nil
}

type gatewayFixture struct {
	gateway  service.LaunchGatewayService
	repo     *fakeLaunchRepository
	signals  *fakeSignalStore
	llm      *fakeLLMService
	notifier *fakeNotifier
}

func setupGatewayWithCfg(t *testing.T, cfg *koanf.Koanf) *gatewayFixture {
	repo := newFakeLaunchRepository()
	signals := newFakeSignalStore()
	llm := &fakeLLMService{score: service.LaunchScore{Summary: "a project", Analysis: "looks fine", Rating: 6}}
	notifier := &fakeNotifier{}
	gateway := service.NewLaunchGatewayService(cfg, zerolog.New(nil), repo, signals, llm, notifier, service.ChainClients{})
	return &gatewayFixture{gateway: gateway, repo: repo, signals: signals, llm: llm, notifier: notifier}
}

func setupGateway(t *testing.T) *gatewayFixture {
	return setupGatewayWithCfg(t, shared.SetupCfg())
}

func newLaunchRecord(title string) *schema.LaunchRecord {
	return &schema.LaunchRecord{
		Launchpad:   "virtuals",
		Chain:       schema.ChainBase,
		Status:      schema.StatusPreSale,
		Title:       title,
		Summary:     schema.LLMPlaceholder,
		Analysis:    schema.LLMPlaceholder,
		Rating:      schema.RatingUnrated,
		Description: "# " + title,
	}
}

func TestIngestInsertsAndNotifiesNewLaunch(t *testing.T) {
	f := setupGateway(t)

	outcome, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, service.ActionInserted, outcome.Action)
	assert.Equal(t, 1, f.repo.upserts)
	assert.Equal(t, 1, f.llm.calls)
	assert.Equal(t, "a project", outcome.Record.Summary)
	assert.Equal(t, 6, outcome.Record.Rating)
	assert.NotNil(t, outcome.Record.LLMAnalysisUpdatedAt)
	assert.Equal(t, []string{"Astra"}, f.notifier.notified)
	assert.Equal(t, 1, f.signals.invalidations)
}

func TestIngestFailsWhileNaturalKeyIsLocked(t *testing.T) {
	f := setupGateway(t)

	record := newLaunchRecord("Astra")
	other := newLaunchRecord("Astra")
	require.True(t, f.signals.AcquireLock("launch_upsert:virtuals:"+sha1Hex("Astra"), time.Minute))

	_, err := f.gateway.Ingest(context.Background(), record, service.IngestOptions{})
	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
	assert.Equal(t, 0, f.repo.upserts)

	f.signals.ReleaseLock("launch_upsert:virtuals:" + sha1Hex("Astra"))
	_, err = f.gateway.Ingest(context.Background(), other, service.IngestOptions{})
	require.NoError(t, err)
}

func TestIngestForceRescoreConfigRescoresScoredLaunch(t *testing.T) {
	cfg := shared.SetupCfg()
	require.NoError(t, cfg.Load(confmap.Provider(map[string]interface{}{"llm.force-rescore": true}, "."), nil))
	f := setupGatewayWithCfg(t, cfg)

	_, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, f.llm.calls)

	f.llm.score = service.LaunchScore{Summary: "revised", Analysis: "better", Rating: 8}
	outcome, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)

	// Already scored, but the config flag forces a fresh LLM pass.
	assert.Equal(t, service.ActionRescored, outcome.Action)
	assert.Equal(t, "revised", outcome.Record.Summary)
	assert.Equal(t, 2, f.llm.calls)
}

func TestWritesPingRevalidateEndpoint(t *testing.T) {
	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := shared.SetupCfg()
	require.NoError(t, cfg.Load(confmap.Provider(map[string]interface{}{"cache.revalidate-url": server.URL + "/revalidate"}, "."), nil))
	f := setupGatewayWithCfg(t, cfg)

	_, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), posts.Load())

	require.NoError(t, f.gateway.Delete("Astra", "virtuals"))
	assert.Equal(t, int32(2), posts.Load())
}

func TestIngestSkipsExistingScoredLaunch(t *testing.T) {
	f := setupGateway(t)

	_, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)

	outcome, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, service.ActionSkipped, outcome.Action)
	assert.Equal(t, 1, f.repo.upserts)
	assert.Equal(t, 1, f.llm.calls)
	// Only the first insert notifies.
	assert.Len(t, f.notifier.notified, 1)
}

func TestIngestRescoresExistingUnscoredLaunch(t *testing.T) {
	f := setupGateway(t)

	now := time.Now()
	existing := newLaunchRecord("Astra")
	existing.ID = 7
	existing.BasicInfoUpdatedAt = &now
	require.NoError(t, f.repo.Upsert(existing))

	outcome, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, service.ActionRescored, outcome.Action)
	assert.Equal(t, 1, f.repo.llmUpdates)
	assert.Equal(t, "a project", outcome.Record.Summary)
	// Rescoring updates LLM columns only, not the whole row.
	assert.Equal(t, 1, f.repo.upserts)
}

func TestIngestOverwritePreservesStoredScore(t *testing.T) {
	f := setupGateway(t)

	_, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, f.llm.calls)

	fresh := newLaunchRecord("Astra")
	fresh.Description = "# Astra updated"
	outcome, err := f.gateway.Ingest(context.Background(), fresh, service.IngestOptions{Overwrite: true})
	require.NoError(t, err)

	assert.Equal(t, service.ActionUpdated, outcome.Action)
	// The stored score carries over instead of being regressed to placeholders.
	assert.Equal(t, "a project", outcome.Record.Summary)
	assert.Equal(t, 6, outcome.Record.Rating)
	assert.Equal(t, 1, f.llm.calls)
	assert.Equal(t, 2, f.repo.upserts)
}

func TestIngestOverwriteForceRescore(t *testing.T) {
	f := setupGateway(t)

	_, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)

	f.llm.score = service.LaunchScore{Summary: "revised", Analysis: "better", Rating: 8}
	outcome, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{Overwrite: true, ForceRescore: true})
	require.NoError(t, err)

	assert.Equal(t, service.ActionUpdated, outcome.Action)
	assert.Equal(t, "revised", outcome.Record.Summary)
	assert.Equal(t, 8, outcome.Record.Rating)
	assert.Equal(t, 2, f.llm.calls)
}

func TestIngestDefaultsLaunchpadToManual(t *testing.T) {
	f := setupGateway(t)

	record := newLaunchRecord("Handpicked")
	record.Launchpad = ""
	outcome, err := f.gateway.Ingest(context.Background(), record, service.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, schema.LaunchpadManual, outcome.Record.Launchpad)
}

func TestIngestRejectsUntitledRecord(t *testing.T) {
	f := setupGateway(t)

	_, err := f.gateway.Ingest(context.Background(), &schema.LaunchRecord{Launchpad: "virtuals"}, service.IngestOptions{})
	require.Error(t, err)
}

func TestDeleteRemovesByNaturalKey(t *testing.T) {
	f := setupGateway(t)

	_, err := f.gateway.Ingest(context.Background(), newLaunchRecord("Astra"), service.IngestOptions{})
	require.NoError(t, err)

	require.NoError(t, f.gateway.Delete("Astra", "virtuals"))
	record, err := f.repo.GetByNaturalKey("Astra", "virtuals")
	require.NoError(t, err)
	assert.Nil(t, record)
}
