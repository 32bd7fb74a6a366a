// Package monitor runs one independently-paced polling loop per configured
// blockchain, normalizing the newest block's transactions and feeding them to
// the alert dispatcher.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chain-sentinel/internal/schema"
)

// BlockFetcher fetches the latest block and its transactions from one chain.
// Implemented per chain family; the EVM JSON-RPC implementation lives in this
// package.
type BlockFetcher interface {
	LatestBlock(ctx context.Context) (*schema.Block, error)
}

// Evaluator is the dispatcher's evaluation entry point.
type Evaluator interface {
	Evaluate(ctx context.Context, tx *schema.Transaction, detectedPatterns []string) []*schema.FiredAlert
}

// PatternDetector supplies behavioral pattern names for a transaction.
// Optional external collaborator; a nil detector means no patterns.
type PatternDetector interface {
	Detect(ctx context.Context, tx *schema.Transaction) []string
}

// ChainConfig defines a single chain to monitor.
type ChainConfig struct {
	Name          string        `yaml:"name"`     // e.g. "ethereum", "polygon"
	ChainID       int64         `yaml:"chain_id"` // e.g. 1, 137
	RPCURL        string        `yaml:"rpc_url"`
	BlockTime     time.Duration `yaml:"block_time"` // poll cadence, chain's native block time
	MaxTxsPerPoll int           `yaml:"max_txs_per_poll"`
	Enabled       bool          `yaml:"enabled"`
}

// Config holds monitor settings.
type Config struct {
	Chains        []ChainConfig `yaml:"chains"`
	MaxTxsPerPoll int           `yaml:"max_txs_per_poll"` // default per-chain cap
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		MaxTxsPerPoll: 500,
	}
}

// Monitor owns the per-chain polling goroutines.
//
// No durable "last processed block" is kept: a restart re-evaluates whatever
// head the RPC endpoint currently reports, which can both skip intermediate
// blocks and re-fire alerts for a block evaluated just before shutdown.
// Within one process lifetime an in-memory head number avoids re-evaluating
// an unchanged block.
type Monitor struct {
	config    Config
	chains    []*chainState
	evaluator Evaluator
	patterns  PatternDetector
	validator *schema.Validator
	logger    *slog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

type chainState struct {
	config    ChainConfig
	fetcher   BlockFetcher
	lastBlock uint64
	seenHead  bool
}

// New creates a Monitor. Fetchers are keyed by chain name; chains without a
// fetcher are skipped with a warning at Start.
func New(cfg Config, fetchers map[string]BlockFetcher, evaluator Evaluator, patterns PatternDetector, validator *schema.Validator, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = schema.NewValidator()
	}

	chains := make([]*chainState, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if !c.Enabled {
			continue
		}
		fetcher, ok := fetchers[c.Name]
		if !ok {
			logger.Warn("no block fetcher for chain, skipping", "chain", c.Name)
			continue
		}
		if c.MaxTxsPerPoll <= 0 {
			c.MaxTxsPerPoll = cfg.MaxTxsPerPoll
		}
		if c.MaxTxsPerPoll <= 0 {
			c.MaxTxsPerPoll = DefaultConfig().MaxTxsPerPoll
		}
		chains = append(chains, &chainState{config: c, fetcher: fetcher})
	}

	return &Monitor{
		config:    cfg,
		chains:    chains,
		evaluator: evaluator,
		patterns:  patterns,
		validator: validator,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins polling all configured chains.
func (m *Monitor) Start(ctx context.Context) {
	for _, chain := range m.chains {
		m.wg.Add(1)
		go m.pollChain(ctx, chain)
	}
	m.logger.Info("chain monitor started", "chains", len(m.chains))
}

// Stop halts all polling goroutines and waits for them to exit. Loops finish
// their current cycle; no mid-cycle interruption is required.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("chain monitor stopped")
}

func (m *Monitor) pollChain(ctx context.Context, chain *chainState) {
	defer m.wg.Done()

	interval := chain.config.BlockTime
	if interval <= 0 {
		interval = 12 * time.Second // ~1 Ethereum block
	}

	m.logger.Info("chain polling started",
		"chain", chain.config.Name,
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll(ctx, chain)
		}
	}
}

// poll runs one cycle for one chain. Every error class is logged and the loop
// proceeds to its next tick: a flaky RPC endpoint degrades alert latency, not
// pipeline availability.
func (m *Monitor) poll(ctx context.Context, chain *chainState) {
	block, err := chain.fetcher.LatestBlock(ctx)
	if err != nil {
		m.logger.Warn("failed to fetch latest block",
			"chain", chain.config.Name,
			"error", err,
		)
		return
	}

	if chain.seenHead && block.Number <= chain.lastBlock {
		return
	}
	chain.lastBlock = block.Number
	chain.seenHead = true

	txs := block.Transactions
	if limit := chain.config.MaxTxsPerPoll; len(txs) > limit {
		m.logger.Warn("transaction cap applied",
			"chain", chain.config.Name,
			"block", block.Number,
			"total", len(txs),
			"cap", limit,
		)
		txs = txs[:limit]
	}

	evaluated := 0
	for i := range txs {
		tx := &txs[i]
		if err := m.validator.Validate(tx); err != nil {
			m.logger.Warn("skipping invalid transaction",
				"chain", chain.config.Name,
				"tx_hash", tx.Hash,
				"error", err,
			)
			continue
		}

		var detected []string
		if m.patterns != nil {
			detected = m.patterns.Detect(ctx, tx)
		}

		m.evaluator.Evaluate(ctx, tx, detected)
		evaluated++
	}

	m.logger.Debug("poll complete",
		"chain", chain.config.Name,
		"block", block.Number,
		"transactions", evaluated,
	)
}
