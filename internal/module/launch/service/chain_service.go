package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/tokenomics"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
)

// ChainClient reads token state from one chain. Implementations exist for
// EVM nodes and for Solana; both speak plain JSON-RPC so any provider works.
type ChainClient interface {
	Chain() schema.Chain
	// CanonicalAddress validates and normalizes an address for storage.
	CanonicalAddress(address string) (string, error)
	IsContract(ctx context.Context, address string) (bool, error)
	TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error)
	TokenBalance(ctx context.Context, tokenAddress string, owner string) (*big.Int, error)
	// OutgoingTransfers lists token movements sent by the creator wallet.
	OutgoingTransfers(ctx context.Context, tokenAddress string, from string) ([]tokenomics.Transfer, error)
	Decimals() int
}

type ChainClients map[schema.Chain]ChainClient

func NewChainClients(cfg *koanf.Koanf, logger zerolog.Logger) ChainClients {
	clients := ChainClients{}

	if url := cfg.String("chain.base.endpoints.0.url"); url != "" {
		clients[schema.ChainBase] = NewEvmChainClient(schema.ChainBase, url, cfg, logger)
	}
	if url := cfg.String("chain.solana.endpoints.0.url"); url != "" {
		clients[schema.ChainSolana] = NewSolanaChainClient(url, cfg, logger)
	}

	return clients
}

func (c ChainClients) ForChain(chain schema.Chain) (ChainClient, error) {
	client, ok := c[chain]
	if !ok {
		return nil, &shared.ValidationError{Field: "chain", Reason: fmt.Sprintf("no client configured for chain %s", chain)}
	}
	return client, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcCall performs one JSON-RPC call against the given node.
func rpcCall(ctx context.Context, client *http.Client, rpcURL, method string, params []interface{}) (json.RawMessage, error) {
	reqBody, _ := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &shared.TransientFetchError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &shared.TransientFetchError{Op: method, Err: err}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, &shared.DataShapeError{Op: method, Snippet: shared.Snippet(body)}
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
