package service

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/tokenomics"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
)

const solanaTokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

const solanaTokenDecimals = 9

type solanaChainClient struct {
	rpcURL   string
	client   *http.Client
	sigLimit int
	logger   zerolog.Logger
}

func NewSolanaChainClient(rpcURL string, cfg *koanf.Koanf, logger zerolog.Logger) ChainClient {
	sigLimit := cfg.Int("chain.solana.signature-limit")
	if sigLimit <= 0 {
		sigLimit = 100
	}
	return &solanaChainClient{
		rpcURL:   rpcURL,
		client:   &http.Client{Timeout: 20 * time.Second},
		sigLimit: sigLimit,
		logger:   logger,
	}
}

func (c *solanaChainClient) Chain() schema.Chain {
	return schema.ChainSolana
}

func (c *solanaChainClient) Decimals() int {
	return solanaTokenDecimals
}

// CanonicalAddress checks the address decodes to a 32-byte public key.
// Solana addresses are case sensitive, so the input is returned as-is.
func (c *solanaChainClient) CanonicalAddress(address string) (string, error) {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != 32 {
		return "", &shared.ValidationError{Field: "address", Reason: "not a valid base58 public key: " + address}
	}
	return address, nil
}

// IsContract reports whether the address is an SPL token mint.
func (c *solanaChainClient) IsContract(ctx context.Context, address string) (bool, error) {
	result, err := rpcCall(ctx, c.client, c.rpcURL, "getAccountInfo", []interface{}{
		address,
		map[string]interface{}{"encoding": "jsonParsed"},
	})
	if err != nil {
		return false, &shared.ChainQueryError{Chain: string(schema.ChainSolana), Method: "getAccountInfo", Err: err}
	}

	var parsed struct {
		Value *struct {
			Owner      string `json:"owner"`
			Executable bool   `json:"executable"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return false, &shared.DataShapeError{Op: "getAccountInfo", Snippet: shared.Snippet(result)}
	}
	if parsed.Value == nil {
		return false, nil
	}
	return parsed.Value.Owner == solanaTokenProgram || parsed.Value.Executable, nil
}

func (c *solanaChainClient) TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error) {
	result, err := rpcCall(ctx, c.client, c.rpcURL, "getTokenSupply", []interface{}{tokenAddress})
	if err != nil {
		return nil, &shared.ChainQueryError{Chain: string(schema.ChainSolana), Method: "getTokenSupply", Err: err}
	}

	var parsed struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, &shared.DataShapeError{Op: "getTokenSupply", Snippet: shared.Snippet(result)}
	}
	supply, ok := new(big.Int).SetString(parsed.Value.Amount, 10)
	if !ok {
		return nil, &shared.DataShapeError{Op: "getTokenSupply", Snippet: shared.Snippet(result)}
	}
	return supply, nil
}

func (c *solanaChainClient) TokenBalance(ctx context.Context, tokenAddress string, owner string) (*big.Int, error) {
	result, err := rpcCall(ctx, c.client, c.rpcURL, "getTokenAccountsByOwner", []interface{}{
		owner,
		map[string]interface{}{"mint": tokenAddress},
		map[string]interface{}{"encoding": "jsonParsed"},
	})
	if err != nil {
		return nil, &shared.ChainQueryError{Chain: string(schema.ChainSolana), Method: "getTokenAccountsByOwner", Err: err}
	}

	var parsed struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, &shared.DataShapeError{Op: "getTokenAccountsByOwner", Snippet: shared.Snippet(result)}
	}

	total := new(big.Int)
	for _, acc := range parsed.Value {
		amount, ok := new(big.Int).SetString(acc.Account.Data.Parsed.Info.TokenAmount.Amount, 10)
		if !ok {
			continue
		}
		total.Add(total, amount)
	}
	return total, nil
}

type solTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

// OutgoingTransfers walks the creator's recent transactions and derives token
// movements from pre/post token balance diffs for the mint. Recipients whose
// balance grew are credited with the creator's drop, proportionally per tx.
func (c *solanaChainClient) OutgoingTransfers(ctx context.Context, tokenAddress string, from string) ([]tokenomics.Transfer, error) {
	result, err := rpcCall(ctx, c.client, c.rpcURL, "getSignaturesForAddress", []interface{}{
		from,
		map[string]interface{}{"limit": c.sigLimit},
	})
	if err != nil {
		return nil, &shared.ChainQueryError{Chain: string(schema.ChainSolana), Method: "getSignaturesForAddress", Err: err}
	}

	var sigs []struct {
		Signature string      `json:"signature"`
		Err       interface{} `json:"err"`
	}
	if err := json.Unmarshal(result, &sigs); err != nil {
		return nil, &shared.DataShapeError{Op: "getSignaturesForAddress", Snippet: shared.Snippet(result)}
	}

	var transfers []tokenomics.Transfer
	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}

		txResult, err := rpcCall(ctx, c.client, c.rpcURL, "getTransaction", []interface{}{
			sig.Signature,
			map[string]interface{}{
				"encoding":                       "jsonParsed",
				"maxSupportedTransactionVersion": 0,
			},
		})
		if err != nil {
			c.logger.Debug().Err(err).Str("signature", sig.Signature).Msg("getTransaction failed, skipping")
			continue
		}

		var parsed struct {
			Meta *struct {
				Err               interface{}       `json:"err"`
				PreTokenBalances  []solTokenBalance `json:"preTokenBalances"`
				PostTokenBalances []solTokenBalance `json:"postTokenBalances"`
			} `json:"meta"`
		}
		if json.Unmarshal(txResult, &parsed) != nil || parsed.Meta == nil || parsed.Meta.Err != nil {
			continue
		}

		transfers = append(transfers, diffTokenBalances(parsed.Meta.PreTokenBalances, parsed.Meta.PostTokenBalances, tokenAddress, from)...)
	}
	return transfers, nil
}

// diffTokenBalances turns balance diffs of one transaction into transfers from
// the creator to each recipient whose balance grew.
func diffTokenBalances(pre, post []solTokenBalance, mint string, creator string) []tokenomics.Transfer {
	preByOwner := make(map[string]*big.Int)
	for _, b := range pre {
		if b.Mint != mint {
			continue
		}
		if amount, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10); ok {
			preByOwner[b.Owner] = amount
		}
	}

	creatorDrop := new(big.Int)
	if preAmt, ok := preByOwner[creator]; ok {
		postAmt := new(big.Int)
		for _, b := range post {
			if b.Mint == mint && b.Owner == creator {
				if amount, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10); ok {
					postAmt = amount
				}
			}
		}
		creatorDrop.Sub(preAmt, postAmt)
	}
	if creatorDrop.Sign() <= 0 {
		return nil
	}

	var transfers []tokenomics.Transfer
	for _, b := range post {
		if b.Mint != mint || b.Owner == creator {
			continue
		}
		postAmt, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10)
		if !ok {
			continue
		}
		preAmt := new(big.Int)
		if v, exists := preByOwner[b.Owner]; exists {
			preAmt = v
		}
		gain := new(big.Int).Sub(postAmt, preAmt)
		if gain.Sign() <= 0 {
			continue
		}
		transfers = append(transfers, tokenomics.Transfer{From: creator, To: b.Owner, Amount: gain})
	}
	return transfers
}
