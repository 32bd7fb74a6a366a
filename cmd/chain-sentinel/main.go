// chain-sentinel is the alert pipeline daemon: it polls configured
// blockchains, evaluates transactions against the rule store, and fans fired
// alerts out to storage, the broadcast channel, the alert feed, and connected
// dashboard clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chain-sentinel/internal/alertstore"
	"chain-sentinel/internal/archive"
	"chain-sentinel/internal/auth"
	"chain-sentinel/internal/broadcast"
	"chain-sentinel/internal/config"
	"chain-sentinel/internal/dispatch"
	"chain-sentinel/internal/feed"
	"chain-sentinel/internal/gateway"
	"chain-sentinel/internal/monitor"
	"chain-sentinel/internal/rules"
	"chain-sentinel/internal/schema"
)

func main() {
	hashToken := flag.String("hash-token", "", "print the bcrypt hash for a gateway token and exit")
	flag.Parse()

	if *hashToken != "" {
		hash, err := auth.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chain-sentinel:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting chain-sentinel")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rule store (PostgreSQL, shared with the external CRUD layer).
	db, err := rules.OpenPostgres(cfg.Rules)
	if err != nil {
		return err
	}
	defer db.Close()
	ruleStore := rules.NewPostgresStore(db, logger)
	logger.Info("rule store connected")

	// Alert store: ClickHouse when enabled, in-memory otherwise.
	var alerts alertstore.Store
	if cfg.Storage.Enabled {
		client, err := alertstore.NewClickHouseClient(alertstore.ClickHouseConfig(cfg.Storage.ClickHouse))
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		defer client.Close()

		store := alertstore.NewClickHouseStore(client)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate alert store: %w", err)
		}
		alerts = store
		logger.Info("alert store connected", "hosts", cfg.Storage.ClickHouse.Hosts)
	} else {
		alerts = alertstore.NewMemoryStore()
		logger.Warn("clickhouse storage disabled, alerts are held in memory only")
	}

	// Broadcast channel (Redis pub/sub).
	bcast, err := broadcast.NewRedis(cfg.Broadcast)
	if err != nil {
		return err
	}
	defer bcast.Close()
	logger.Info("broadcast channel connected", "channel", cfg.Broadcast.Channel)

	// Optional Kafka alert feed.
	var feedProducer dispatch.FeedProducer
	if cfg.Feed.Enabled {
		producer, err := feed.NewProducer(cfg.Feed, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		feedProducer = producer
	}

	dispatcher := dispatch.New(ruleStore, alerts, bcast, feedProducer, logger)

	// WebSocket gateway.
	var verifier auth.Verifier
	if cfg.Auth.Enabled {
		verifier, err = auth.NewStaticVerifier(cfg.Auth)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("gateway authentication disabled")
		verifier = auth.AllowAll{}
	}

	gw := gateway.New(cfg.Gateway, verifier, bcast, logger)
	gw.Start()

	// Per-chain monitors.
	fetchers := make(map[string]monitor.BlockFetcher, len(cfg.Monitor.Chains))
	for _, chain := range cfg.Monitor.Chains {
		if chain.Enabled {
			fetchers[chain.Name] = monitor.NewEVMFetcher(chain)
		}
	}

	validatorCfg := schema.DefaultValidatorConfig()
	if cfg.Validation.MaxTxAge > 0 {
		validatorCfg.MaxAge = cfg.Validation.MaxTxAge
	}
	if cfg.Validation.MaxFuture > 0 {
		validatorCfg.MaxFuture = cfg.Validation.MaxFuture
	}
	validator := schema.NewValidatorWithConfig(validatorCfg)

	mon := monitor.New(cfg.Monitor, fetchers, dispatcher, nil, validator, logger)
	mon.Start(ctx)

	// Optional S3 archival of aged alerts.
	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		uploader, err := archive.NewS3Uploader(ctx, cfg.Archive.S3, logger)
		if err != nil {
			return err
		}
		archiver = archive.New(cfg.Archive, alerts, uploader, logger)
		archiver.Start(ctx)
	}

	logger.Info("chain-sentinel started",
		"chains", len(fetchers),
		"gateway", cfg.Gateway.ListenAddr,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	// Stop producing before tearing down the outbound legs.
	mon.Stop()
	if archiver != nil {
		archiver.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown incomplete", "error", err)
	}

	logger.Info("chain-sentinel stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
