package service

import (
	"fmt"

	"github.com/launchlens/launch-lens/internal/database/schema"
)

// LinkGenerator builds the chain- and platform-specific links that go into a
// launch description. Each launchpad can register its own generator; the
// chain-family defaults cover everything else.
type LinkGenerator interface {
	// LaunchURL is the canonical public page for the launch.
	LaunchURL(externalID string) string
	// TokenHoldersURL links to the block explorer's holder list.
	TokenHoldersURL(tokenAddress string) string
	// CreatorLinks maps viewer labels to URLs for the creator wallet.
	CreatorLinks(creatorAddress string) map[string]string
	// ContentLinks maps section labels to URLs worth fetching for extra
	// context about the launch.
	ContentLinks(externalID string, websiteURL string) map[string]string
}

type LinkGenerators map[string]LinkGenerator

func NewLinkGenerators() LinkGenerators {
	return LinkGenerators{
		"virtuals": &virtualsLinkGenerator{},
	}
}

// ForLaunchpad picks the launchpad-specific generator, falling back to the
// chain-family default.
func (g LinkGenerators) ForLaunchpad(launchpad string, chain schema.Chain) LinkGenerator {
	if gen, ok := g[launchpad]; ok {
		return gen
	}
	if chain == schema.ChainSolana {
		return &solanaLinkGenerator{}
	}
	return &baseLinkGenerator{}
}

type baseLinkGenerator struct{}

func (g *baseLinkGenerator) LaunchURL(externalID string) string {
	return ""
}

func (g *baseLinkGenerator) TokenHoldersURL(tokenAddress string) string {
	return fmt.Sprintf("https://basescan.org/token/%s#balances", tokenAddress)
}

func (g *baseLinkGenerator) CreatorLinks(creatorAddress string) map[string]string {
	return map[string]string{
		"Basescan": fmt.Sprintf("https://basescan.org/address/%s", creatorAddress),
		"DeBank":   fmt.Sprintf("https://debank.com/profile/%s", creatorAddress),
		"Zerion":   fmt.Sprintf("https://app.zerion.io/%s/overview", creatorAddress),
	}
}

func (g *baseLinkGenerator) ContentLinks(externalID string, websiteURL string) map[string]string {
	links := map[string]string{}
	if websiteURL != "" {
		links["Project website"] = websiteURL
	}
	return links
}

type solanaLinkGenerator struct{}

func (g *solanaLinkGenerator) LaunchURL(externalID string) string {
	return ""
}

func (g *solanaLinkGenerator) TokenHoldersURL(tokenAddress string) string {
	return fmt.Sprintf("https://solscan.io/token/%s#holders", tokenAddress)
}

func (g *solanaLinkGenerator) CreatorLinks(creatorAddress string) map[string]string {
	return map[string]string{
		"Solscan":  fmt.Sprintf("https://solscan.io/account/%s", creatorAddress),
		"SolanaFM": fmt.Sprintf("https://solana.fm/address/%s", creatorAddress),
		"Step":     fmt.Sprintf("https://app.step.finance/en/dashboard?watching=%s", creatorAddress),
	}
}

func (g *solanaLinkGenerator) ContentLinks(externalID string, websiteURL string) map[string]string {
	links := map[string]string{}
	if websiteURL != "" {
		links["Project website"] = websiteURL
	}
	return links
}

// virtualsLinkGenerator extends the Base defaults with the Virtuals app pages.
type virtualsLinkGenerator struct {
	baseLinkGenerator
}

func (g *virtualsLinkGenerator) LaunchURL(externalID string) string {
	return fmt.Sprintf("https://app.virtuals.io/virtuals/%s", externalID)
}

func (g *virtualsLinkGenerator) ContentLinks(externalID string, websiteURL string) map[string]string {
	links := g.baseLinkGenerator.ContentLinks(externalID, websiteURL)
	links["Virtuals profile"] = g.LaunchURL(externalID)
	return links
}
