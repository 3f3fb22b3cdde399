package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/launchlens/launch-lens/internal/module/launch/tokenomics"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
)

// ERC-20 Transfer event topic: keccak256("Transfer(address,address,uint256)")
const erc20TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// ERC-20 function selectors.
const (
	selectorTotalSupply = "0x18160ddd"
	selectorBalanceOf   = "0x70a08231"
)

const evmTokenDecimals = 18

type evmChainClient struct {
	chain    schema.Chain
	rpcURL   string
	client   *http.Client
	lookback int64
	logger   zerolog.Logger
}

func NewEvmChainClient(chain schema.Chain, rpcURL string, cfg *koanf.Koanf, logger zerolog.Logger) ChainClient {
	return &evmChainClient{
		chain:    chain,
		rpcURL:   rpcURL,
		client:   &http.Client{Timeout: 15 * time.Second},
		lookback: cfg.Int64("chain.transfer-lookback"),
		logger:   logger,
	}
}

func (c *evmChainClient) Chain() schema.Chain {
	return c.chain
}

func (c *evmChainClient) Decimals() int {
	return evmTokenDecimals
}

// CanonicalAddress returns the EIP-55 checksum form of the address.
func (c *evmChainClient) CanonicalAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", &shared.ValidationError{Field: "address", Reason: "not a valid hex address: " + address}
	}
	return common.HexToAddress(address).Hex(), nil
}

func (c *evmChainClient) IsContract(ctx context.Context, address string) (bool, error) {
	result, err := rpcCall(ctx, c.client, c.rpcURL, "eth_getCode", []interface{}{address, "latest"})
	if err != nil {
		return false, &shared.ChainQueryError{Chain: string(c.chain), Method: "eth_getCode", Err: err}
	}
	var code string
	json.Unmarshal(result, &code)
	return code != "0x" && code != "0x0" && len(code) > 4, nil
}

func (c *evmChainClient) TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error) {
	return c.callUint256(ctx, tokenAddress, selectorTotalSupply)
}

func (c *evmChainClient) TokenBalance(ctx context.Context, tokenAddress string, owner string) (*big.Int, error) {
	data := selectorBalanceOf + padAddress(owner)
	return c.callUint256(ctx, tokenAddress, data)
}

func (c *evmChainClient) callUint256(ctx context.Context, to string, data string) (*big.Int, error) {
	result, err := rpcCall(ctx, c.client, c.rpcURL, "eth_call", []interface{}{
		map[string]string{"to": to, "data": data},
		"latest",
	})
	if err != nil {
		return nil, &shared.ChainQueryError{Chain: string(c.chain), Method: "eth_call", Err: err}
	}

	var hexData string
	json.Unmarshal(result, &hexData)
	hexData = strings.TrimPrefix(hexData, "0x")
	if hexData == "" {
		// A not-yet-deployed token answers eth_call with empty data.
		return new(big.Int), nil
	}
	value := new(big.Int)
	if _, ok := value.SetString(hexData, 16); !ok {
		return nil, &shared.DataShapeError{Op: "eth_call", Snippet: shared.Snippet(result)}
	}
	return value, nil
}

type evmLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
}

// OutgoingTransfers reads Transfer logs of the token where the creator is the
// sender, over the configured recent block window.
func (c *evmChainClient) OutgoingTransfers(ctx context.Context, tokenAddress string, from string) ([]tokenomics.Transfer, error) {
	currentBlock, err := c.blockNumber(ctx)
	if err != nil {
		return nil, err
	}
	fromBlock := currentBlock - c.lookback
	if fromBlock < 0 {
		fromBlock = 0
	}

	filter := map[string]interface{}{
		"fromBlock": fmt.Sprintf("0x%x", fromBlock),
		"toBlock":   "latest",
		"address":   tokenAddress,
		"topics":    []interface{}{erc20TransferTopic, "0x" + padAddress(from)},
	}
	result, err := rpcCall(ctx, c.client, c.rpcURL, "eth_getLogs", []interface{}{filter})
	if err != nil {
		return nil, &shared.ChainQueryError{Chain: string(c.chain), Method: "eth_getLogs", Err: err}
	}

	var logs []evmLog
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, &shared.DataShapeError{Op: "eth_getLogs", Snippet: shared.Snippet(result)}
	}

	var transfers []tokenomics.Transfer
	for _, l := range logs {
		sender, to, amount, ok := parseTransferLog(l)
		if !ok || amount.Sign() == 0 {
			continue
		}
		transfers = append(transfers, tokenomics.Transfer{From: sender, To: to, Amount: amount})
	}
	return transfers, nil
}

func (c *evmChainClient) blockNumber(ctx context.Context) (int64, error) {
	result, err := rpcCall(ctx, c.client, c.rpcURL, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, &shared.ChainQueryError{Chain: string(c.chain), Method: "eth_blockNumber", Err: err}
	}
	var hexBlock string
	json.Unmarshal(result, &hexBlock)
	block := new(big.Int)
	block.SetString(strings.TrimPrefix(hexBlock, "0x"), 16)
	return block.Int64(), nil
}

// parseTransferLog extracts from, to, amount from a Transfer log entry.
func parseTransferLog(l evmLog) (from, to string, amount *big.Int, ok bool) {
	if len(l.Topics) < 3 || len(l.Data) < 66 {
		return "", "", nil, false
	}
	from = "0x" + l.Topics[1][26:]
	to = "0x" + l.Topics[2][26:]
	amount = new(big.Int)
	dataBytes, err := hex.DecodeString(strings.TrimPrefix(l.Data, "0x"))
	if err != nil || len(dataBytes) < 32 {
		return "", "", nil, false
	}
	amount.SetBytes(dataBytes[:32])
	return from, to, amount, true
}

// padAddress left-pads a hex address to 32 bytes for topic filters and
// eth_call arguments. The 0x prefix is stripped.
func padAddress(address string) string {
	addr := strings.ToLower(strings.TrimPrefix(address, "0x"))
	return "000000000000000000000000" + addr
}
