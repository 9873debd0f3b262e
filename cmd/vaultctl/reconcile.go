package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultctl/internal/config"
	"vaultctl/internal/manifest"
	"vaultctl/internal/reconcile"
	"vaultctl/internal/roles"
	"vaultctl/internal/schedule"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Drive deployed contracts to the state described by a manifest",
		RunE:  runReconcile,
	}

	addChainFlags(cmd.Flags())
	addRegistryFlags(cmd.Flags())
	cmd.Flags().String("manifest", "", "desired state manifest (TOML)")
	cmd.Flags().Int("concurrency", 4, "units reconciled in parallel within a layer")
	cmd.Flags().Int("max-steps", 4, "mutations allowed per unit before giving up")
	cmd.Flags().Bool("dry-run", false, "report planned mutations without sending")
	cmd.Flags().String("actions-out", "./data/actions.jsonl", "action ledger JSONL path")
	cmd.Flags().Bool("check-roles", true, "verify role signers against the roles registry")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Chain.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	file, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := dialChain(ctx, cfg.Chain)
	if err != nil {
		return err
	}
	defer client.Close()

	chainID, err := resolveChainID(ctx, client, cfg.Chain.ChainID)
	if err != nil {
		return err
	}
	plan, err := file.Build(chainID)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	reg, closeRegistry, err := openRegistry(ctx, cfg.Registry, store)
	if err != nil {
		return err
	}
	defer closeRegistry()

	ledger := newLedger(cfg.ActionsOut, store)

	metrics, err := newTelemetry(cfg.Chain)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(metrics, logger)

	var resolver *roles.Resolver
	if !cfg.DryRun {
		resolver, err = roles.NewResolver(cfg.Chain.Roles)
		if err != nil {
			return err
		}
		if cfg.CheckRoles && plan.RolesRegistry != "" {
			addr, err := plan.RolesRegistry.Resolve(ctx, reg)
			if err != nil {
				return fmt.Errorf("resolve roles registry: %w", err)
			}
			if err := resolver.CheckOnChain(ctx, client, addr); err != nil {
				return err
			}
		}
	}

	reconciler := reconcile.New(client, resolver, reconcile.Config{
		Confirmations: cfg.Chain.Confirmations,
		MaxSteps:      cfg.MaxSteps,
		DryRun:        cfg.DryRun,
	},
		reconcile.WithLogger(logger),
		reconcile.WithRegistry(reg),
		reconcile.WithLedger(ledger),
		reconcile.WithMeter(metrics.Meter(reconcile.MeterName)),
	)

	logger.Info("reconcile start",
		zap.String("rpc", cfg.Chain.RPCURL),
		zap.String("chain_id", plan.ChainID),
		zap.String("manifest", cfg.Manifest),
		zap.Int("units", len(plan.Units)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("registry", cfg.Registry.Backend),
		zap.String("actions_out", cfg.ActionsOut),
	)

	var mu sync.Mutex
	outcomes := make(map[string]reconcile.Outcome, len(plan.Units))
	scheduler := &schedule.Scheduler{Concurrency: cfg.Concurrency, Logger: logger}
	report, err := scheduler.Run(ctx, plan.Nodes, func(ctx context.Context, id string) error {
		unit, ok := plan.Unit(id)
		if !ok {
			return fmt.Errorf("unknown unit %s", id)
		}
		out, err := reconciler.Reconcile(ctx, unit)
		mu.Lock()
		outcomes[id] = out
		mu.Unlock()
		return err
	})
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report, outcomes)
	if report.Failed() {
		return fmt.Errorf("reconcile incomplete")
	}
	return nil
}

func printReport(w io.Writer, report schedule.Report, outcomes map[string]reconcile.Outcome) {
	for _, res := range report.Results {
		out := outcomes[res.ID]
		switch res.Status {
		case schedule.Succeeded:
			line := fmt.Sprintf("%-24s %-10s %s", res.ID, out.Status, out.Diff.Current)
			if out.Status == reconcile.StatusPlanned && out.Diff.Mutation != nil {
				line = fmt.Sprintf("%-24s %-10s %s as %s", res.ID, out.Status, out.Diff.Mutation, out.Diff.Mutation.Role)
			}
			fmt.Fprintln(w, line)
			for _, a := range out.Actions {
				fmt.Fprintf(w, "  %s %s(%s) tx=%s block=%d\n", a.Status, a.Method, a.Args, a.TxHash, a.BlockNumber)
			}
		case schedule.Failed:
			fmt.Fprintf(w, "%-24s %-10s %v\n", res.ID, res.Status, res.Err)
		case schedule.Skipped:
			fmt.Fprintf(w, "%-24s %-10s blocked by %s\n", res.ID, res.Status, res.BlockedBy)
		}
	}
}
