package service_test

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/launch/tokenomics"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/launchlens/launch-lens/utils/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChainClient struct {
	chain        schema.Chain
	totalSupply  *big.Int
	balance      *big.Int
	transfers    []tokenomics.Transfer
	rejectAddrs  bool
	nonContracts map[string]bool
}

func (c *stubChainClient) Chain() schema.Chain { return c.chain }

func (c *stubChainClient) CanonicalAddress(address string) (string, error) {
	if c.rejectAddrs {
		return "", fmt.Errorf("invalid address %s", address)
	}
	return strings.ToLower(address), nil
}

func (c *stubChainClient) IsContract(ctx context.Context, address string) (bool, error) {
	return !c.nonContracts[address], nil
}

func (c *stubChainClient) TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error) {
	if c.totalSupply == nil {
		return nil, fmt.Errorf("no supply")
	}
	return c.totalSupply, nil
}

func (c *stubChainClient) TokenBalance(ctx context.Context, tokenAddress string, owner string) (*big.Int, error) {
	if c.balance == nil {
		return nil, fmt.Errorf("no balance")
	}
	return c.balance, nil
}

func (c *stubChainClient) OutgoingTransfers(ctx context.Context, tokenAddress string, from string) ([]tokenomics.Transfer, error) {
	return c.transfers, nil
}

func (c *stubChainClient) Decimals() int { return 18 }

type stubContentFetcher struct {
	document string
}

func (f *stubContentFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	return f.document, nil
}

func (f *stubContentFetcher) FetchSite(ctx context.Context, siteURL string) (string, error) {
	return f.document, nil
}

func (f *stubContentFetcher) FetchAll(ctx context.Context, links map[string]string) string {
	return f.document
}

func setupNormalizer(client *stubChainClient) service.NormalizerService {
	clients := service.ChainClients{client.Chain(): client}
	return service.NewNormalizerService(
		shared.SetupCfg(),
		zerolog.New(nil),
		clients,
		&stubContentFetcher{},
		service.NewLinkGenerators(),
	)
}

func virtualsLaunchpad() config.Launchpad {
	return config.Launchpad{Name: "virtuals", Chain: "base", Enabled: true}
}

func TestNormalizePreSaleDerivesHoldingsFromTokenomics(t *testing.T) {
	client := &stubChainClient{chain: schema.ChainBase}
	normalizer := setupNormalizer(client)

	summary := service.LaunchSummary{Launchpad: "virtuals", ExternalID: "42", Title: "Astra"}
	detail := map[string]interface{}{
		"symbol":      "ASTR",
		"description": "An autonomous trading agent.",
		"tokenomics": []interface{}{
			map[string]interface{}{"name": "Developer allocation", "amount": float64(150000000)},
			map[string]interface{}{"name": "Public sale", "amount": float64(600000000)},
		},
	}

	result, err := normalizer.Normalize(context.Background(), virtualsLaunchpad(), summary, detail)
	require.NoError(t, err)
	require.False(t, result.Skipped)

	record := result.Record
	assert.Equal(t, "Astra", record.Title)
	assert.Equal(t, schema.StatusPreSale, record.Status)
	assert.Equal(t, schema.ChainBase, record.Chain)
	assert.Equal(t, "https://app.virtuals.io/virtuals/42", record.URL)

	// 150M of the fixed 1B mint, scaled to 18 decimals.
	require.NotNil(t, record.CreatorInitialTokensHeld)
	assert.Equal(t, "150000000"+strings.Repeat("0", 18), *record.CreatorInitialTokensHeld)
	require.NotNil(t, record.CreatorTokenHoldingPercentage)
	assert.Equal(t, "15.00", *record.CreatorTokenHoldingPercentage)
	require.NotNil(t, record.TokensForSale)
	assert.Equal(t, "600000000"+strings.Repeat("0", 18), *record.TokensForSale)
	require.NotNil(t, record.TotalTokenSupply)
	assert.Equal(t, "1000000000"+strings.Repeat("0", 18), *record.TotalTokenSupply)

	assert.Equal(t, schema.LLMPlaceholder, record.Summary)
	assert.Equal(t, schema.RatingUnrated, record.Rating)
	assert.Contains(t, record.Description, "# Astra")
	assert.Contains(t, record.Description, "An autonomous trading agent.")
	assert.Contains(t, record.Description, "1,000,000,000")
	require.NotNil(t, record.BasicInfoUpdatedAt)
	require.NotNil(t, record.TokenStatsUpdatedAt)
}

func TestNormalizeSkipsDisallowedSaleState(t *testing.T) {
	normalizer := setupNormalizer(&stubChainClient{chain: schema.ChainBase})

	detail := map[string]interface{}{
		"genesis": map[string]interface{}{"status": "FAILED"},
	}
	result, err := normalizer.Normalize(context.Background(), virtualsLaunchpad(), service.LaunchSummary{Title: "Astra"}, detail)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Contains(t, result.SkipReason, "FAILED")

	detail["genesis"] = map[string]interface{}{"status": "STARTED"}
	result, err = normalizer.Normalize(context.Background(), virtualsLaunchpad(), service.LaunchSummary{Title: "Astra"}, detail)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
}

func TestNormalizeAvailableTokenReadsChainState(t *testing.T) {
	supply := new(big.Int).Mul(big.NewInt(1_000_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	balance := new(big.Int).Div(supply, big.NewInt(4))
	burnAmount := new(big.Int).Div(supply, big.NewInt(10))
	poolAmount := new(big.Int).Div(supply, big.NewInt(2))

	client := &stubChainClient{
		chain:       schema.ChainBase,
		totalSupply: supply,
		balance:     balance,
		transfers: []tokenomics.Transfer{
			{From: "0xcreator", To: "0x0000000000000000000000000000000000000000", Amount: burnAmount},
			{From: "0xcreator", To: "0xpool0000000000000000000000000000000000aa", Amount: poolAmount},
		},
	}
	normalizer := setupNormalizer(client)

	summary := service.LaunchSummary{Launchpad: "virtuals", ExternalID: "42", Title: "Astra"}
	detail := map[string]interface{}{
		"status":         "AVAILABLE",
		"tokenAddress":   "0xToken000000000000000000000000000000000001",
		"creatorAddress": "0xCreator0000000000000000000000000000000002",
	}

	result, err := normalizer.Normalize(context.Background(), virtualsLaunchpad(), summary, detail)
	require.NoError(t, err)
	require.False(t, result.Skipped)

	record := result.Record
	assert.Equal(t, schema.StatusAvailable, record.Status)
	require.NotNil(t, record.TokenAddress)
	assert.Equal(t, "0xtoken000000000000000000000000000000000001", *record.TokenAddress)

	require.NotNil(t, record.CreatorTokensHeld)
	assert.Equal(t, balance.String(), *record.CreatorTokensHeld)
	require.NotNil(t, record.CreatorTokenHoldingPercentage)
	assert.Equal(t, "25.00", *record.CreatorTokenHoldingPercentage)

	assert.True(t, record.SentToZeroAddress)
	require.NotNil(t, record.MainSellingAddress)
	assert.Equal(t, "0xpool0000000000000000000000000000000000aa", *record.MainSellingAddress)
	require.NotNil(t, record.CreatorTokenMovementDetails)
	assert.Contains(t, *record.CreatorTokenMovementDetails, "burned 10.00%")

	assert.Contains(t, record.Description, "basescan.org/token/0xtoken000000000000000000000000000000000001#balances")
}

func TestNormalizeWalletTransferIsNotSaleVenue(t *testing.T) {
	supply := new(big.Int).Mul(big.NewInt(1_000_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	balance := new(big.Int).Div(supply, big.NewInt(2))
	walletAmount := new(big.Int).Div(supply, big.NewInt(2))

	wallet := "0xfriend00000000000000000000000000000000bb"
	client := &stubChainClient{
		chain:        schema.ChainBase,
		totalSupply:  supply,
		balance:      balance,
		transfers:    []tokenomics.Transfer{{From: "0xcreator", To: wallet, Amount: walletAmount}},
		nonContracts: map[string]bool{wallet: true},
	}
	normalizer := setupNormalizer(client)

	detail := map[string]interface{}{
		"status":         "AVAILABLE",
		"tokenAddress":   "0xToken000000000000000000000000000000000001",
		"creatorAddress": "0xCreator0000000000000000000000000000000002",
	}
	result, err := normalizer.Normalize(context.Background(), virtualsLaunchpad(), service.LaunchSummary{Launchpad: "virtuals", ExternalID: "42", Title: "Astra"}, detail)
	require.NoError(t, err)

	// Half the supply moved to a plain wallet: significant, but not a sale.
	assert.Nil(t, result.Record.MainSellingAddress)
	assert.False(t, result.Record.SentToZeroAddress)
}

func TestNormalizeRejectsUntitledItems(t *testing.T) {
	normalizer := setupNormalizer(&stubChainClient{chain: schema.ChainBase})

	_, err := normalizer.Normalize(context.Background(), virtualsLaunchpad(), service.LaunchSummary{}, map[string]interface{}{})
	require.Error(t, err)

	var validationErr *shared.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestNormalizeDropsUncanonicalizableAddresses(t *testing.T) {
	normalizer := setupNormalizer(&stubChainClient{chain: schema.ChainBase, rejectAddrs: true})

	detail := map[string]interface{}{
		"tokenAddress":   "not-an-address",
		"creatorAddress": "also-bad",
	}
	result, err := normalizer.Normalize(context.Background(), virtualsLaunchpad(), service.LaunchSummary{Title: "Astra"}, detail)
	require.NoError(t, err)

	record := result.Record
	assert.Nil(t, record.TokenAddress)
	assert.Nil(t, record.CreatorAddress)
	assert.Contains(t, record.Description, "Token not minted yet.")
}

func TestNormalizeUnknownChainFails(t *testing.T) {
	normalizer := setupNormalizer(&stubChainClient{chain: schema.ChainBase})

	launchpad := config.Launchpad{Name: "other", Chain: "solana"}
	_, err := normalizer.Normalize(context.Background(), launchpad, service.LaunchSummary{Title: "Astra"}, map[string]interface{}{})
	require.Error(t, err)
}
