package tokenomics

import (
	"math/big"
	"strconv"

	"github.com/launchlens/launch-lens/internal/module/shared"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Transfer is a single token movement out of the creator wallet.
type Transfer struct {
	From   string
	To     string
	Amount *big.Int
}

// Breakdown summarizes where the creator allocation went.
type Breakdown struct {
	BurnedPercent      *string
	LockedPercent      *string
	SalePercent        *string
	CreatorHoldPercent *string
	SentToZero         bool
	MainSaleAddress    *string
	LockerName         *string
}

var printer = message.NewPrinter(language.English)

// PercentageOf returns n as a percentage of d with two decimal places.
// Division is done in basis points so precision does not depend on the
// magnitude of the operands. Returns nil when d is zero or negative.
func PercentageOf(n, d *big.Int) *string {
	if n == nil || d == nil || d.Sign() <= 0 {
		return nil
	}

	bps := new(big.Int).Mul(n, big.NewInt(10000))
	bps.Quo(bps, d)

	whole := new(big.Int).Quo(bps, big.NewInt(100))
	frac := new(big.Int).Mod(bps, big.NewInt(100))

	s := whole.String() + "." + pad2(frac.Int64())
	return &s
}

func pad2(v int64) string {
	if v < 0 {
		v = -v
	}
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

// FormatLargeAmount renders a raw on-chain amount as a grouped whole-token
// string, e.g. 1,000,000,000. Fractional token dust is truncated.
func FormatLargeAmount(raw *big.Int, decimals int) string {
	if raw == nil || raw.Sign() == 0 {
		return "0"
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int).Quo(raw, scale)

	if whole.IsInt64() {
		return printer.Sprintf("%d", whole.Int64())
	}
	return groupDigits(whole.String())
}

func groupDigits(s string) string {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	n := len(s)
	if n <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var out []byte
	head := n % 3
	if head > 0 {
		out = append(out, s[:head]...)
	}
	for i := head; i < n; i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// ClassifyTransfers buckets the creator's outgoing transfers into burned,
// locked and sold-on-sale-contract portions of the total supply. A transfer to
// an unknown recipient counts as sale flow when it is significant (above the
// cutoff fraction of what the holder held before moving anything) and the
// recipient is a deployed contract; the largest such recipient becomes the
// main sale address. A nil isContract treats every significant unknown
// recipient as a contract.
func ClassifyTransfers(transfers []Transfer, totalSupply, holderBalance *big.Int, saleCutoffPercent float64, isContract func(address string) bool) Breakdown {
	var breakdown Breakdown
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return breakdown
	}

	burned := new(big.Int)
	locked := new(big.Int)
	sold := new(big.Int)
	moved := new(big.Int)

	unknownRecipients := make(map[string]*big.Int)

	for _, tr := range transfers {
		if tr.Amount == nil || tr.Amount.Sign() <= 0 {
			continue
		}
		moved.Add(moved, tr.Amount)

		if shared.IsBurnAddress(tr.To) {
			burned.Add(burned, tr.Amount)
			breakdown.SentToZero = true
			continue
		}
		if name, ok := shared.GetLockerName(tr.To); ok {
			locked.Add(locked, tr.Amount)
			if breakdown.LockerName == nil {
				breakdown.LockerName = &name
			}
			continue
		}
		if _, ok := shared.GetSaleVenue(tr.To); ok {
			sold.Add(sold, tr.Amount)
			continue
		}

		if prev, ok := unknownRecipients[tr.To]; ok {
			prev.Add(prev, tr.Amount)
		} else {
			unknownRecipients[tr.To] = new(big.Int).Set(tr.Amount)
		}
	}

	// The significance cutoff is a fraction of the holder's balance before any
	// of these movements: current balance plus everything moved out.
	base := new(big.Int).Set(moved)
	if holderBalance != nil && holderBalance.Sign() > 0 {
		base.Add(base, holderBalance)
	}
	if base.Sign() <= 0 {
		base = totalSupply
	}
	cutoff := new(big.Int).Mul(base, big.NewInt(int64(saleCutoffPercent*100)))
	cutoff.Quo(cutoff, big.NewInt(10000))

	var mainSaleAddr string
	var mainSaleAmount *big.Int
	for addr, amount := range unknownRecipients {
		if amount.Cmp(cutoff) < 0 {
			continue
		}
		if isContract != nil && !isContract(addr) {
			// Wallet-to-wallet moves are not sale flow.
			continue
		}
		sold.Add(sold, amount)
		if mainSaleAmount == nil || amount.Cmp(mainSaleAmount) > 0 {
			mainSaleAmount = amount
			mainSaleAddr = addr
		}
	}
	if mainSaleAmount != nil {
		breakdown.MainSaleAddress = &mainSaleAddr
	}

	breakdown.BurnedPercent = PercentageOf(burned, totalSupply)
	breakdown.LockedPercent = PercentageOf(locked, totalSupply)
	breakdown.SalePercent = PercentageOf(sold, totalSupply)

	held := new(big.Int).Sub(totalSupply, moved)
	if held.Sign() < 0 {
		held.SetInt64(0)
	}
	breakdown.CreatorHoldPercent = PercentageOf(held, totalSupply)

	return breakdown
}
