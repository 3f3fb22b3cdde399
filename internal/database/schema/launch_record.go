package schema

import "time"

// Chain is the closed set of token networks a launch can live on.
type Chain string

const (
	ChainBase   Chain = "base"
	ChainSolana Chain = "solana"
)

// LaunchStatus is the normalized lifecycle stage of a launch. Platform tags
// (e.g. GENESIS/UNDERGRAD/AVAILABLE) are mapped onto these values once,
// by the normalizer.
type LaunchStatus string

const (
	StatusPreSale   LaunchStatus = "pre_sale"
	StatusSale      LaunchStatus = "sale"
	StatusAvailable LaunchStatus = "available"
)

const (
	// LaunchpadManual marks records added by hand rather than by a listener.
	LaunchpadManual = "manual"
	// LLMPlaceholder is the sentinel for summary/analysis before scoring.
	LLMPlaceholder = "-"
	// RatingUnrated means scoring has not happened yet or failed.
	RatingUnrated = -1
)

type LaunchRecord struct {
	LaunchpadSpecificID *string      `gorm:"type:varchar(255);index" json:"launchpad_specific_id"`                                 // external API id, nil for manual records
	Launchpad           string       `gorm:"type:varchar(255);notNull;default:'manual';index;uniqueIndex:idx_title_launchpad" json:"launchpad"` // originating platform
	Chain               Chain        `gorm:"type:varchar(64);notNull;index" json:"chain"`
	Status              LaunchStatus `gorm:"type:varchar(64);notNull;index" json:"status"`
	Title               string       `gorm:"type:varchar(512);notNull;index;uniqueIndex:idx_title_launchpad" json:"title"`
	URL                 string       `gorm:"type:varchar(1024)" json:"url"`
	Description         string       `gorm:"type:text" json:"description"` // regenerated wholesale on each (re)ingestion
	ImageURL            *string      `gorm:"type:varchar(1024)" json:"image_url"`

	Summary  string `gorm:"type:text;notNull;default:'-'" json:"summary"`
	Analysis string `gorm:"type:text;notNull;default:'-'" json:"analysis"`
	Rating   int    `gorm:"notNull;default:-1;index;check:rating >= -1 AND rating <= 10" json:"rating"`

	CreatorAddress *string `gorm:"type:varchar(255);index" json:"creator_address"`
	TokenAddress   *string `gorm:"type:varchar(255);index" json:"token_address"`

	// Token amounts are raw base-unit integers stored as decimal strings so
	// no precision is lost on 18-decimal supplies.
	CreatorTokensHeld              *string `gorm:"type:varchar(255)" json:"creator_tokens_held"`
	CreatorInitialTokensHeld       *string `gorm:"type:varchar(255)" json:"creator_initial_tokens_held"`
	TokensForSale                  *string `gorm:"type:varchar(255)" json:"tokens_for_sale"`
	TotalTokenSupply               *string `gorm:"type:varchar(255)" json:"total_token_supply"`
	CreatorTokenHoldingPercentage  *string `gorm:"type:varchar(32)" json:"creator_token_holding_percentage"` // 2 decimal places
	CreatorTokenMovementDetails    *string `gorm:"type:text" json:"creator_token_movement_details"`
	MainSellingAddress             *string `gorm:"type:varchar(255)" json:"main_selling_address"`
	SentToZeroAddress              bool    `gorm:"notNull;default:false" json:"sent_to_zero_address"`

	RawPayload JSONText `gorm:"type:json" json:"raw_payload"` // verbatim external payload, for audit

	LaunchedAt           *time.Time `json:"launched_at"`
	BasicInfoUpdatedAt   *time.Time `json:"basic_info_updated_at"`
	TokenStatsUpdatedAt  *time.Time `json:"token_stats_updated_at"`
	LLMAnalysisUpdatedAt *time.Time `json:"llm_analysis_updated_at"`

	Base
}

// IsScored reports whether the record carries real LLM output rather than
// the placeholder sentinels.
func (r *LaunchRecord) IsScored() bool {
	return r.Summary != LLMPlaceholder && r.Analysis != LLMPlaceholder && r.Rating != RatingUnrated
}
