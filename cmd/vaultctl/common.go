package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vaultctl/internal/chain"
	"vaultctl/internal/config"
	"vaultctl/internal/registry"
	"vaultctl/internal/storage"
	"vaultctl/internal/storage/postgres"
	"vaultctl/internal/telemetry"
)

func addChainFlags(fs *pflag.FlagSet) {
	fs.String("rpc", "", "JSON-RPC URL")
	fs.String("chain-id", "", "chain id used for content keys, defaults to the RPC chain id")
	fs.Uint64("confirmations", 1, "confirmations required per transaction")
	fs.Duration("confirm-timeout", 5*time.Minute, "maximum wait for a transaction to confirm")
	fs.Duration("poll-interval", 2*time.Second, "receipt polling interval")
	fs.Uint64("read-retries", 3, "retries for transient read failures")
	fs.Uint64("max-fee-gwei", 0, "refuse to send when max fee exceeds this many gwei, 0 disables")
	fs.String("roles", "", "role signer keys (comma-separated role=hexkey)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("metrics", false, "export reconcile metrics as JSON to stderr")
	fs.Duration("metrics-interval", 15*time.Second, "metrics export interval")
}

func addRegistryFlags(fs *pflag.FlagSet) {
	fs.String("registry-backend", "file", "name registry backend (file, sqlite, postgres, memory)")
	fs.String("registry-path", "./data/registry.json", "registry file or sqlite database path")
	fs.String("pg-dsn", "", "Postgres DSN for the registry and action ledger")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func dialChain(ctx context.Context, cfg config.ChainConfig) (*chain.Client, error) {
	opts := chain.Options{
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.PollInterval,
		ReadRetries:    cfg.ReadRetries,
	}
	if cfg.MaxFeeGwei > 0 {
		opts.MaxFeeCap = chain.GweiToWei(cfg.MaxFeeGwei)
	}
	client, err := chain.NewClient(ctx, cfg.RPCURL, opts)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	return client, nil
}

// resolveChainID prefers the configured id over the one reported by the node.
func resolveChainID(ctx context.Context, client *chain.Client, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("read chain id: %w", err)
	}
	return id.String(), nil
}

func openStore(ctx context.Context, cfg config.RegistryConfig) (*postgres.Store, error) {
	if cfg.PGDSN == "" {
		if cfg.Backend == "postgres" {
			return nil, fmt.Errorf("pg-dsn is required for the postgres registry")
		}
		return nil, nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func openRegistry(ctx context.Context, cfg config.RegistryConfig, store *postgres.Store) (registry.Registry, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "", "file":
		return registry.NewFileRegistry(cfg.Path), noop, nil
	case "sqlite":
		reg, err := registry.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return reg, func() { _ = reg.Close() }, nil
	case "postgres":
		if store == nil {
			return nil, noop, fmt.Errorf("pg-dsn is required for the postgres registry")
		}
		return &registry.DBRegistry{Store: store}, noop, nil
	case "memory":
		return registry.NewMemory(nil), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}

// newTelemetry returns nil when metrics are disabled; a nil provider hands
// out the global no-op meter.
func newTelemetry(cfg config.ChainConfig) (*telemetry.Provider, error) {
	if !cfg.Metrics {
		return nil, nil
	}
	return telemetry.NewStdout(os.Stderr, cfg.MetricsInterval)
}

func shutdownTelemetry(p *telemetry.Provider, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("flush metrics", zap.Error(err))
	}
}

func newLedger(path string, store *postgres.Store) storage.Multi {
	ledger := storage.Multi{storage.NewJsonlStorage(path)}
	if store != nil {
		ledger = append(ledger, &storage.DBStorage{Store: store})
	}
	return ledger
}
