package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/launchlens/launch-lens/utils/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLaunchpadAPI struct {
	launchpads  []config.Launchpad
	summaries   []service.LaunchSummary
	details     map[string]map[string]interface{}
	detailCalls int
	missingIDs  map[string]bool
	listErr     error
	detailErr   error
}

func (a *fakeLaunchpadAPI) Launchpads() []config.Launchpad { return a.launchpads }

func (a *fakeLaunchpadAPI) RecentLaunches(ctx context.Context, launchpad config.Launchpad) ([]service.LaunchSummary, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.summaries, nil
}

func (a *fakeLaunchpadAPI) LaunchDetail(ctx context.Context, launchpad config.Launchpad, externalID string) (map[string]interface{}, error) {
	a.detailCalls++
	if a.missingIDs[externalID] {
		return nil, &shared.NotFoundError{Resource: "launch", ID: externalID}
	}
	if a.detailErr != nil {
		return nil, a.detailErr
	}
	detail, ok := a.details[externalID]
	if !ok {
		return nil, &shared.NotFoundError{Resource: "launch", ID: externalID}
	}
	return detail, nil
}

type fakeThrottle struct {
	throttled map[string]bool
	statuses  []string
}

func (f *fakeThrottle) IsLaunchThrottled(launchpad string, externalID string) bool {
	return f.throttled[launchpad+":"+externalID]
}

func (f *fakeThrottle) LaunchThrottle(launchpad string, externalID string, requestStatus string) bool {
	f.statuses = append(f.statuses, requestStatus)
	return false
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) HandleErrorWithThrottling(key string, errorMsg string) {
	f.alerts = append(f.alerts, key)
}

type fakeNormalizer struct{}

func (n *fakeNormalizer) Normalize(ctx context.Context, launchpad config.Launchpad, summary service.LaunchSummary, detail map[string]interface{}) (*service.NormalizeResult, error) {
	if skip, _ := detail["skip"].(bool); skip {
		return &service.NormalizeResult{Skipped: true, SkipReason: "sale sub-state not ingestable"}, nil
	}
	id := summary.ExternalID
	return &service.NormalizeResult{Record: &schema.LaunchRecord{
		LaunchpadSpecificID: &id,
		Launchpad:           launchpad.Name,
		Chain:               schema.ChainBase,
		Status:              schema.StatusPreSale,
		Title:               summary.Title,
		Summary:             schema.LLMPlaceholder,
		Analysis:            schema.LLMPlaceholder,
		Rating:              schema.RatingUnrated,
	}}, nil
}

type fakeGateway struct {
	ingested []string
	deleted  []string
	lastOpts service.IngestOptions
}

func (g *fakeGateway) Ingest(ctx context.Context, record *schema.LaunchRecord, opts service.IngestOptions) (*service.IngestOutcome, error) {
	g.ingested = append(g.ingested, record.Title)
	g.lastOpts = opts
	return &service.IngestOutcome{Action: service.ActionInserted, Record: record}, nil
}

func (g *fakeGateway) Rescore(ctx context.Context, id uint64) (*schema.LaunchRecord, error) {
	return nil, nil
}

func (g *fakeGateway) RefreshTokenStats(ctx context.Context, id uint64) (*schema.LaunchRecord, error) {
	return nil, nil
}

func (g *fakeGateway) Delete(title string, launchpad string) error {
	g.deleted = append(g.deleted, title)
	return nil
}

type ingestionFixture struct {
	ingestion service.IngestionService
	api       *fakeLaunchpadAPI
	gateway   *fakeGateway
	repo      *fakeLaunchRepository
	signals   *fakeSignalStore
	throttler *fakeThrottle
	alerter   *fakeAlerter
}

func setupIngestion(t *testing.T, api *fakeLaunchpadAPI) *ingestionFixture {
	cfg := shared.SetupCfg()
	logger := zerolog.New(nil)
	repo := newFakeLaunchRepository()
	gateway := &fakeGateway{}
	signals := newFakeSignalStore()
	throttler := &fakeThrottle{throttled: map[string]bool{}}
	alerter := &fakeAlerter{}
	ingestion := service.NewIngestionService(cfg, logger, api, &fakeNormalizer{}, gateway, repo, signals, alerter, throttler)
	return &ingestionFixture{ingestion: ingestion, api: api, gateway: gateway, repo: repo, signals: signals, throttler: throttler, alerter: alerter}
}

func testLaunchpads() []config.Launchpad {
	return []config.Launchpad{{Name: "virtuals", Chain: "base", Enabled: true}}
}

func TestRunPassIngestsUnseenItems(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		summaries: []service.LaunchSummary{
			{Launchpad: "virtuals", ExternalID: "1", Title: "Astra"},
			{Launchpad: "virtuals", ExternalID: "2", Title: "Borealis"},
		},
		details: map[string]map[string]interface{}{
			"1": {"name": "Astra"},
			"2": {"name": "Borealis"},
		},
	}
	f := setupIngestion(t, api)

	require.NoError(t, f.ingestion.RunPass(context.Background()))
	assert.Equal(t, []string{"Astra", "Borealis"}, f.gateway.ingested)
}

func TestRunPassSkipsKnownExternalIDs(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		summaries: []service.LaunchSummary{
			{Launchpad: "virtuals", ExternalID: "1", Title: "Astra"},
			{Launchpad: "virtuals", ExternalID: "2", Title: "Borealis"},
		},
		details: map[string]map[string]interface{}{
			"1": {"name": "Astra"},
			"2": {"name": "Borealis"},
		},
	}
	f := setupIngestion(t, api)

	known := "1"
	require.NoError(t, f.repo.Upsert(&schema.LaunchRecord{
		Launchpad:           "virtuals",
		Title:               "Astra",
		LaunchpadSpecificID: &known,
	}))

	require.NoError(t, f.ingestion.RunPass(context.Background()))
	// The known id never reaches the detail endpoint.
	assert.Equal(t, 1, f.api.detailCalls)
	assert.Equal(t, []string{"Borealis"}, f.gateway.ingested)
}

func TestRunPassToleratesVanishedItems(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		summaries: []service.LaunchSummary{
			{Launchpad: "virtuals", ExternalID: "1", Title: "Astra"},
			{Launchpad: "virtuals", ExternalID: "2", Title: "Borealis"},
		},
		details: map[string]map[string]interface{}{
			"2": {"name": "Borealis"},
		},
		missingIDs: map[string]bool{"1": true},
	}
	f := setupIngestion(t, api)

	require.NoError(t, f.ingestion.RunPass(context.Background()))
	assert.Equal(t, []string{"Borealis"}, f.gateway.ingested)

	// The vanished id is remembered so later passes stop asking for it.
	seen, err := f.signals.IsExternalIDSeen("virtuals", "1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunPassSkipsThrottledItems(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		summaries:  []service.LaunchSummary{{Launchpad: "virtuals", ExternalID: "1", Title: "Astra"}},
		details:    map[string]map[string]interface{}{"1": {"name": "Astra"}},
	}
	f := setupIngestion(t, api)
	f.throttler.throttled["virtuals:1"] = true

	require.NoError(t, f.ingestion.RunPass(context.Background()))
	assert.Equal(t, 0, f.api.detailCalls)
	assert.Empty(t, f.gateway.ingested)
}

func TestRunPassPropagatesUpstreamStatusToThrottle(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		summaries:  []service.LaunchSummary{{Launchpad: "virtuals", ExternalID: "1", Title: "Astra"}},
		detailErr:  &shared.TransientFetchError{Op: "launch detail", Status: 429, Err: fmt.Errorf("status code 429")},
	}
	f := setupIngestion(t, api)

	require.NoError(t, f.ingestion.RunPass(context.Background()))
	assert.Empty(t, f.gateway.ingested)
	// The rate limit status reaches the throttle so it can suppress
	// follow-up fetches immediately.
	assert.Equal(t, []string{"429"}, f.throttler.statuses)
}

func TestRunPassAlertsWhenListingFails(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		listErr:    fmt.Errorf("listing endpoint down"),
	}
	f := setupIngestion(t, api)

	require.NoError(t, f.ingestion.RunPass(context.Background()))
	assert.Equal(t, []string{"ingestion:virtuals"}, f.alerter.alerts)
}

func TestRunPassSkipsUningestibleStates(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		summaries:  []service.LaunchSummary{{Launchpad: "virtuals", ExternalID: "1", Title: "Astra"}},
		details:    map[string]map[string]interface{}{"1": {"name": "Astra", "skip": true}},
	}
	f := setupIngestion(t, api)

	require.NoError(t, f.ingestion.RunPass(context.Background()))
	assert.Empty(t, f.gateway.ingested)
}

func TestProcessOneUnknownLaunchpad(t *testing.T) {
	f := setupIngestion(t, &fakeLaunchpadAPI{launchpads: testLaunchpads()})

	_, err := f.ingestion.ProcessOne(context.Background(), "nosuch", "1", false, false)
	require.Error(t, err)
	var validationErr *shared.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestProcessOnePurgeDeletesBeforeIngest(t *testing.T) {
	api := &fakeLaunchpadAPI{
		launchpads: testLaunchpads(),
		details:    map[string]map[string]interface{}{"1": {"name": "Astra"}},
	}
	f := setupIngestion(t, api)

	outcome, err := f.ingestion.ProcessOne(context.Background(), "virtuals", "1", true, true)
	require.NoError(t, err)
	assert.Equal(t, service.ActionInserted, outcome.Action)
	assert.Equal(t, []string{"Astra"}, f.gateway.deleted)
	assert.Equal(t, []string{"Astra"}, f.gateway.ingested)
	assert.True(t, f.gateway.lastOpts.Overwrite)
	assert.True(t, f.gateway.lastOpts.ForceRescore)
}
