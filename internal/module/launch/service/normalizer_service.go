package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/tokenomics"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/launchlens/launch-lens/utils/config"
	"github.com/rs/zerolog"
)

// Launchpads mint a fixed one billion tokens per launch. Used when the chain
// supply query is unavailable or the token is not minted yet.
const platformTotalSupplyTokens = 1_000_000_000

// genesisAllowedStates are the sale sub-states that may be ingested. Anything
// else is an unfinalized or cancelled sale and is skipped.
var genesisAllowedStates = map[string]bool{
	"STARTED": true,
	"ENDED":   true,
}

// NormalizeResult carries either a normalized record or a skip decision with
// its reason. Exactly one of Record and Skipped is meaningful.
type NormalizeResult struct {
	Record     *schema.LaunchRecord
	Skipped    bool
	SkipReason string
}

type NormalizerService interface {
	Normalize(ctx context.Context, launchpad config.Launchpad, summary LaunchSummary, detail map[string]interface{}) (*NormalizeResult, error)
}

type normalizerService struct {
	config         *koanf.Koanf
	logger         zerolog.Logger
	chainClients   ChainClients
	contentFetcher ContentFetcherService
	linkGenerators LinkGenerators
	retryAttempts  int
	retryDelay     time.Duration
}

func NewNormalizerService(cfg *koanf.Koanf, logger zerolog.Logger, chainClients ChainClients, contentFetcher ContentFetcherService, linkGenerators LinkGenerators) NormalizerService {
	return &normalizerService{
		config:         cfg,
		logger:         logger,
		chainClients:   chainClients,
		contentFetcher: contentFetcher,
		linkGenerators: linkGenerators,
		retryAttempts:  cfg.Int("fetch.retry-attempts"),
		retryDelay:     cfg.Duration("fetch.retry-base-delay"),
	}
}

func (s *normalizerService) Normalize(ctx context.Context, launchpad config.Launchpad, summary LaunchSummary, detail map[string]interface{}) (*NormalizeResult, error) {
	title := summary.Title
	if title == "" {
		title = extractTitle(detail)
	}
	if title == "" {
		return nil, &shared.ValidationError{Field: "title", Reason: "launch item has no usable title"}
	}

	if reason, skip := skipReason(detail); skip {
		return &NormalizeResult{Skipped: true, SkipReason: reason}, nil
	}

	chain := schema.Chain(launchpad.Chain)
	if c := getString(detail, "chain", "network"); c != nil {
		chain = mapChainTag(*c, chain)
	}
	status := mapStatus(detail)

	client, err := s.chainClients.ForChain(chain)
	if err != nil {
		return nil, err
	}
	generator := s.linkGenerators.ForLaunchpad(launchpad.Name, chain)

	tokenAddress := s.canonicalAddress(client, getString(detail, "tokenAddress", "contractAddress", "preTokenAddress", "mint", "address"))
	creatorAddress := s.canonicalAddress(client, extractCreatorAddress(detail))

	record := &schema.LaunchRecord{
		LaunchpadSpecificID: &summary.ExternalID,
		Launchpad:           launchpad.Name,
		Chain:               chain,
		Status:              status,
		Title:               title,
		Summary:             schema.LLMPlaceholder,
		Analysis:            schema.LLMPlaceholder,
		Rating:              schema.RatingUnrated,
		CreatorAddress:      creatorAddress,
		TokenAddress:        tokenAddress,
		ImageURL:            extractImageURL(detail),
		LaunchedAt:          extractLaunchedAt(detail),
	}

	if url := generator.LaunchURL(summary.ExternalID); url != "" {
		record.URL = url
	} else if u := getString(detail, "url", "link"); u != nil {
		record.URL = *u
	}

	supply := s.resolveTotalSupply(ctx, client, status, tokenAddress)
	if supply != nil {
		v := supply.String()
		record.TotalTokenSupply = &v
	}

	s.computeHoldings(ctx, client, record, detail, status, supply, tokenAddress, creatorAddress)
	s.classifyMovements(ctx, client, record, status, supply, tokenAddress, creatorAddress)

	record.Description = s.assembleDescription(ctx, launchpad, generator, summary, detail, record, client.Decimals())

	if rawBytes, err := json.Marshal(detail); err == nil {
		record.RawPayload = schema.JSONText(rawBytes)
	}

	now := time.Now()
	record.BasicInfoUpdatedAt = &now
	if record.CreatorTokensHeld != nil || record.CreatorInitialTokensHeld != nil {
		record.TokenStatsUpdatedAt = &now
	}

	return &NormalizeResult{Record: record}, nil
}

// skipReason applies the sale sub-state allow-list. Items without a genesis
// sub-object are never skipped on this rule.
func skipReason(detail map[string]interface{}) (string, bool) {
	genesis, ok := detail["genesis"].(map[string]interface{})
	if !ok {
		return "", false
	}
	state, ok := genesis["status"].(string)
	if !ok {
		return "", false
	}
	if !genesisAllowedStates[strings.ToUpper(state)] {
		return fmt.Sprintf("sale sub-state %q is not ingestable", state), true
	}
	return "", false
}

func mapStatus(detail map[string]interface{}) schema.LaunchStatus {
	status, _ := detail["status"].(string)
	switch strings.ToUpper(status) {
	case "AVAILABLE":
		return schema.StatusAvailable
	case "GENESIS", "SALE":
		return schema.StatusSale
	default:
		return schema.StatusPreSale
	}
}

func mapChainTag(tag string, fallback schema.Chain) schema.Chain {
	switch strings.ToUpper(tag) {
	case "SOLANA", "SVM":
		return schema.ChainSolana
	case "BASE", "EVM", "ETHEREUM":
		return schema.ChainBase
	default:
		return fallback
	}
}

func (s *normalizerService) canonicalAddress(client ChainClient, address *string) *string {
	if address == nil || *address == "" {
		return nil
	}
	canonical, err := client.CanonicalAddress(*address)
	if err != nil {
		s.logger.Warn().Err(err).Str("address", *address).Msg("dropping uncanonicalizable address")
		return nil
	}
	return &canonical
}

// resolveTotalSupply prefers the on-chain figure for live tokens and falls
// back to the platform's fixed mint for everything else.
func (s *normalizerService) resolveTotalSupply(ctx context.Context, client ChainClient, status schema.LaunchStatus, tokenAddress *string) *big.Int {
	if status == schema.StatusAvailable && tokenAddress != nil {
		var supply *big.Int
		err := shared.Retry(ctx, s.retryAttempts, s.retryDelay, func() error {
			var err error
			supply, err = client.TotalSupply(ctx, *tokenAddress)
			return err
		})
		if err == nil && supply.Sign() > 0 {
			return supply
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("token", *tokenAddress).Msg("total supply query failed, using platform constant")
		}
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(client.Decimals())), nil)
	return new(big.Int).Mul(big.NewInt(platformTotalSupplyTokens), scale)
}

// computeHoldings fills the creator holding fields. Live tokens are read from
// chain; pre-sale items are derived from the platform's tokenomics breakdown.
// Any chain failure degrades the fields to nil.
func (s *normalizerService) computeHoldings(ctx context.Context, client ChainClient, record *schema.LaunchRecord, detail map[string]interface{}, status schema.LaunchStatus, supply *big.Int, tokenAddress, creatorAddress *string) {
	var held *big.Int

	if status == schema.StatusAvailable {
		if tokenAddress == nil || creatorAddress == nil {
			return
		}
		var balance *big.Int
		err := shared.Retry(ctx, s.retryAttempts, s.retryDelay, func() error {
			var err error
			balance, err = client.TokenBalance(ctx, *tokenAddress, *creatorAddress)
			return err
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("token", *tokenAddress).Msg("creator balance query failed, leaving holdings unset")
			return
		}
		held = balance
		v := balance.String()
		record.CreatorTokensHeld = &v
	} else {
		allocation := sumTokenomicsAllocation(detail, devAllocationLabels)
		if allocation == nil {
			return
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(client.Decimals())), nil)
		held = new(big.Int).Mul(allocation, scale)
		v := held.String()
		record.CreatorInitialTokensHeld = &v

		if sale := sumTokenomicsAllocation(detail, saleAllocationLabels); sale != nil {
			saleRaw := new(big.Int).Mul(sale, scale)
			sv := saleRaw.String()
			record.TokensForSale = &sv
		}
	}

	record.CreatorTokenHoldingPercentage = tokenomics.PercentageOf(held, supply)
}

var devAllocationLabels = []string{"dev", "team", "creator", "founder"}
var saleAllocationLabels = []string{"public", "sale", "liquidity"}

// sumTokenomicsAllocation sums whole-token amounts of breakdown entries whose
// label matches any of the given fragments. Returns nil when nothing matched.
func sumTokenomicsAllocation(detail map[string]interface{}, labels []string) *big.Int {
	entries, ok := detail["tokenomics"].([]interface{})
	if !ok {
		return nil
	}

	total := new(big.Int)
	matched := false
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name := strings.ToLower(firstString(m, "name", "label", "description"))
		found := false
		for _, label := range labels {
			if strings.Contains(name, label) {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		switch amount := m["amount"].(type) {
		case float64:
			total.Add(total, big.NewInt(int64(amount)))
			matched = true
		case string:
			if v, ok := new(big.Int).SetString(amount, 10); ok {
				total.Add(total, v)
				matched = true
			}
		}
	}
	if !matched {
		return nil
	}
	return total
}

// classifyMovements inspects the creator's outgoing transfers of a live token
// and records the burn/lock/sale breakdown. Chain failures degrade to unset.
func (s *normalizerService) classifyMovements(ctx context.Context, client ChainClient, record *schema.LaunchRecord, status schema.LaunchStatus, supply *big.Int, tokenAddress, creatorAddress *string) {
	if status != schema.StatusAvailable || tokenAddress == nil || creatorAddress == nil {
		return
	}

	var transfers []tokenomics.Transfer
	err := shared.Retry(ctx, s.retryAttempts, s.retryDelay, func() error {
		var err error
		transfers, err = client.OutgoingTransfers(ctx, *tokenAddress, *creatorAddress)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("token", *tokenAddress).Msg("transfer history query failed, skipping movement classification")
		return
	}
	if len(transfers) == 0 {
		return
	}

	var balance *big.Int
	if record.CreatorTokensHeld != nil {
		balance, _ = new(big.Int).SetString(*record.CreatorTokensHeld, 10)
	}
	// Sale venues are deployed contracts; a recipient that fails the code
	// check is treated as a plain wallet.
	isContract := func(address string) bool {
		deployed, err := client.IsContract(ctx, address)
		if err != nil {
			s.logger.Warn().Err(err).Str("address", address).Msg("contract check failed, treating recipient as wallet")
			return false
		}
		return deployed
	}

	breakdown := tokenomics.ClassifyTransfers(transfers, supply, balance, s.config.Float64("chain.sale-cutoff-percent"), isContract)
	record.SentToZeroAddress = breakdown.SentToZero
	record.MainSellingAddress = breakdown.MainSaleAddress

	details := describeBreakdown(breakdown)
	if details != "" {
		record.CreatorTokenMovementDetails = &details
	}
}

func describeBreakdown(b tokenomics.Breakdown) string {
	var parts []string
	if b.BurnedPercent != nil && *b.BurnedPercent != "0.00" {
		parts = append(parts, fmt.Sprintf("burned %s%% of supply", *b.BurnedPercent))
	}
	if b.LockedPercent != nil && *b.LockedPercent != "0.00" {
		line := fmt.Sprintf("locked %s%% of supply", *b.LockedPercent)
		if b.LockerName != nil {
			line += " via " + *b.LockerName
		}
		parts = append(parts, line)
	}
	if b.SalePercent != nil && *b.SalePercent != "0.00" {
		line := fmt.Sprintf("moved %s%% of supply to sale venues", *b.SalePercent)
		if b.MainSaleAddress != nil {
			line += " (main: " + *b.MainSaleAddress + ")"
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "; ")
}

// assembleDescription builds the full multi-section document persisted with
// the record. Regenerated wholesale on every ingestion.
func (s *normalizerService) assembleDescription(ctx context.Context, launchpad config.Launchpad, generator LinkGenerator, summary LaunchSummary, detail map[string]interface{}, record *schema.LaunchRecord, decimals int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s\n", record.Title))
	if symbol := getString(detail, "symbol", "ticker"); symbol != nil {
		b.WriteString(fmt.Sprintf("Symbol: %s\n", *symbol))
	}
	b.WriteString(fmt.Sprintf("Platform: %s\n", launchpad.Name))
	if record.URL != "" {
		b.WriteString(fmt.Sprintf("Launch page: %s\n", record.URL))
	}
	if record.LaunchedAt != nil {
		b.WriteString(fmt.Sprintf("Launched at: %s\n", record.LaunchedAt.UTC().Format(time.RFC3339)))
	}

	b.WriteString("\n## Token\n")
	if record.TokenAddress != nil {
		b.WriteString(fmt.Sprintf("Address: %s\n", *record.TokenAddress))
		b.WriteString(fmt.Sprintf("Holders: %s\n", generator.TokenHoldersURL(*record.TokenAddress)))
	} else {
		b.WriteString("Token not minted yet.\n")
	}
	if record.TotalTokenSupply != nil {
		if supply, ok := new(big.Int).SetString(*record.TotalTokenSupply, 10); ok {
			b.WriteString(fmt.Sprintf("Total supply: %s\n", tokenomics.FormatLargeAmount(supply, decimals)))
		}
	}
	if record.MainSellingAddress != nil {
		b.WriteString(fmt.Sprintf("Main liquidity address: %s\n", *record.MainSellingAddress))
	}

	if record.CreatorTokenHoldingPercentage != nil {
		heldRaw := record.CreatorTokensHeld
		if heldRaw == nil {
			heldRaw = record.CreatorInitialTokensHeld
		}
		if heldRaw != nil {
			if held, ok := new(big.Int).SetString(*heldRaw, 10); ok {
				b.WriteString(fmt.Sprintf("\nCreator holds %s tokens (%s%% of supply)\n", tokenomics.FormatLargeAmount(held, decimals), *record.CreatorTokenHoldingPercentage))
			}
		}
	}
	if record.CreatorTokenMovementDetails != nil {
		b.WriteString(fmt.Sprintf("Creator token movements: %s\n", *record.CreatorTokenMovementDetails))
	}

	if record.CreatorAddress != nil {
		b.WriteString("\n## Creator\n")
		b.WriteString(fmt.Sprintf("Address: %s\n", *record.CreatorAddress))
		for label, url := range generator.CreatorLinks(*record.CreatorAddress) {
			b.WriteString(fmt.Sprintf("%s: %s\n", label, url))
		}
	}

	if desc := getString(detail, "description", "overview", "bio"); desc != nil && *desc != "" {
		b.WriteString("\n## Platform description\n")
		b.WriteString(*desc)
		b.WriteString("\n")
	}

	links := generator.ContentLinks(summary.ExternalID, extractWebsiteURL(detail))
	if extra := s.contentFetcher.FetchAll(ctx, links); extra != "" {
		b.WriteString("\n## Additional information\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}

	if rawBytes, err := json.Marshal(detail); err == nil {
		b.WriteString("\n## Raw payload\n")
		b.WriteString(shared.PrettyJSON(rawBytes))
		b.WriteString("\n")
	}

	return b.String()
}

func getString(m map[string]interface{}, keys ...string) *string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return &v
		}
	}
	return nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	if v := getString(m, keys...); v != nil {
		return *v
	}
	return ""
}

func extractCreatorAddress(detail map[string]interface{}) *string {
	if creator, ok := detail["creator"].(map[string]interface{}); ok {
		if addr := getString(creator, "address", "walletAddress", "wallet"); addr != nil {
			return addr
		}
	}
	return getString(detail, "creatorAddress", "walletAddress", "deployer")
}

func extractImageURL(detail map[string]interface{}) *string {
	if image, ok := detail["image"].(map[string]interface{}); ok {
		if url := getString(image, "url"); url != nil {
			return url
		}
	}
	return getString(detail, "image", "imageUrl", "logo")
}

func extractWebsiteURL(detail map[string]interface{}) string {
	if socials, ok := detail["socials"].(map[string]interface{}); ok {
		if verified, ok := socials["VERIFIED_LINKS"].(map[string]interface{}); ok {
			if url := getString(verified, "WEBSITE"); url != nil {
				return *url
			}
		}
		if url := getString(socials, "website", "WEBSITE"); url != nil {
			return *url
		}
	}
	return firstString(detail, "website", "websiteUrl")
}

func extractLaunchedAt(detail map[string]interface{}) *time.Time {
	for _, key := range []string{"launchedAt", "startsAt", "createdAt"} {
		raw, ok := detail[key].(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return &ts
		}
	}
	return nil
}
