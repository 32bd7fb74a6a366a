package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chain-sentinel/internal/schema"
)

// EVMFetcher fetches the latest block from an EVM JSON-RPC endpoint and
// normalizes its transactions. One fetcher serves one chain; EVM chains share
// this implementation as a chain family.
type EVMFetcher struct {
	chain  ChainConfig
	client *http.Client
}

// NewEVMFetcher creates a fetcher for one EVM chain.
func NewEVMFetcher(chain ChainConfig) *EVMFetcher {
	return &EVMFetcher{
		chain:  chain,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// LatestBlock fetches the chain head with full transaction objects.
func (f *EVMFetcher) LatestBlock(ctx context.Context) (*schema.Block, error) {
	result, err := f.rpcCall(ctx, "eth_getBlockByNumber", []interface{}{"latest", true})
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, fmt.Errorf("chain %s reported no latest block", f.chain.Name)
	}

	var block evmBlock
	if err := json.Unmarshal(result, &block); err != nil {
		return nil, fmt.Errorf("malformed block from %s: %w", f.chain.Name, err)
	}

	return f.normalizeBlock(&block)
}

// --- JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (f *EVMFetcher) rpcCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", f.chain.RPCURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		return nil, err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

type evmBlock struct {
	Number       string           `json:"number"`
	Hash         string           `json:"hash"`
	Timestamp    string           `json:"timestamp"`
	Transactions []evmTransaction `json:"transactions"`
}

type evmTransaction struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// --- Normalization ---

func (f *EVMFetcher) normalizeBlock(block *evmBlock) (*schema.Block, error) {
	blockNum, err := parseHexUint64(block.Number)
	if err != nil {
		return nil, fmt.Errorf("malformed block number %q: %w", block.Number, err)
	}

	blockTime, _ := parseHexUint64(block.Timestamp)
	ts := time.Unix(int64(blockTime), 0).UTC()

	normalized := &schema.Block{
		Number:       blockNum,
		Hash:         block.Hash,
		Timestamp:    ts,
		Transactions: make([]schema.Transaction, 0, len(block.Transactions)),
	}

	for _, tx := range block.Transactions {
		normalized.Transactions = append(normalized.Transactions, f.normalizeTx(&tx, ts))
	}

	return normalized, nil
}

func (f *EVMFetcher) normalizeTx(tx *evmTransaction, blockTime time.Time) schema.Transaction {
	ts := blockTime
	return schema.Transaction{
		Hash:       tx.Hash,
		From:       strings.ToLower(tx.From),
		To:         strings.ToLower(tx.To),
		Value:      weiToNative(tx.Value),
		Blockchain: f.chain.Name,
		Timestamp:  &ts,
	}
}

// weiToNative converts a hex wei amount to the chain's native unit. A missing
// or unparsable amount yields nil, which downstream value conditions treat as
// not-matching.
func weiToNative(hexWei string) *float64 {
	s := strings.TrimPrefix(hexWei, "0x")
	if s == "" {
		return nil
	}
	wei := new(big.Int)
	if _, ok := wei.SetString(s, 16); !ok {
		return nil
	}
	native, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return &native
}

func parseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}
