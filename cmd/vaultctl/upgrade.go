package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultctl/internal/chain"
	"vaultctl/internal/config"
	"vaultctl/internal/reconcile"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/storage"
	"vaultctl/internal/telemetry"
	"vaultctl/internal/upgrade"
)

func newUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Inspect and drive two-step proxy upgrades",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show current and pending implementation of a proxy",
		RunE:  runUpgradeStatus,
	}
	proposeCmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a new implementation as the operator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpgradeStep(cmd, false)
		},
	}
	acceptCmd := &cobra.Command{
		Use:   "accept",
		Short: "Accept the pending implementation as governance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpgradeStep(cmd, true)
		},
	}

	for _, sub := range []*cobra.Command{statusCmd, proposeCmd, acceptCmd} {
		addChainFlags(sub.Flags())
		addRegistryFlags(sub.Flags())
		sub.Flags().String("proxy", "", "proxy address or @name")
		sub.Flags().String("implementation", "", "implementation address or @name")
		cmd.AddCommand(sub)
	}
	for _, sub := range []*cobra.Command{proposeCmd, acceptCmd} {
		sub.Flags().String("actions-out", "./data/actions.jsonl", "action ledger JSONL path")
	}
	acceptCmd.Flags().String("record-as", "", "registry name to record the accepted implementation under")

	return cmd
}

type upgradeSession struct {
	cfg     config.UpgradeConfig
	logger  *zap.Logger
	client  *chain.Client
	reg     registry.Registry
	ledger  storage.Multi
	metrics *telemetry.Provider
	proxy   registry.Ref
	impl    registry.Ref
	close   func()
}

func openUpgradeSession(ctx context.Context, cmd *cobra.Command, needImpl bool) (*upgradeSession, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadUpgrade(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if needImpl && cfg.Implementation == "" {
		return nil, fmt.Errorf("implementation is required")
	}

	s := &upgradeSession{cfg: cfg}
	closers := []func(){}
	s.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	s.logger, err = newLogger(cfg.Chain.LogLevel)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() { _ = s.logger.Sync() })

	s.proxy, err = registry.ParseRef("proxy", cfg.Proxy)
	if err != nil {
		s.close()
		return nil, err
	}
	if cfg.Implementation != "" {
		s.impl, err = registry.ParseRef("implementation", cfg.Implementation)
		if err != nil {
			s.close()
			return nil, err
		}
	}

	s.client, err = dialChain(ctx, cfg.Chain)
	if err != nil {
		s.close()
		return nil, err
	}
	closers = append(closers, s.client.Close)

	store, err := openStore(ctx, cfg.Registry)
	if err != nil {
		s.close()
		return nil, err
	}
	if store != nil {
		closers = append(closers, store.Close)
	}
	reg, closeRegistry, err := openRegistry(ctx, cfg.Registry, store)
	if err != nil {
		s.close()
		return nil, err
	}
	closers = append(closers, closeRegistry)
	s.reg = reg
	s.ledger = newLedger(cfg.ActionsOut, store)

	s.metrics, err = newTelemetry(cfg.Chain)
	if err != nil {
		s.close()
		return nil, err
	}
	closers = append(closers, func() { shutdownTelemetry(s.metrics, s.logger) })
	return s, nil
}

func (s *upgradeSession) reconciler(backend chain.Backend, resolver *roles.Resolver) *reconcile.Reconciler {
	return reconcile.New(backend, resolver, reconcile.Config{Confirmations: s.cfg.Chain.Confirmations},
		reconcile.WithLogger(s.logger),
		reconcile.WithRegistry(s.reg),
		reconcile.WithLedger(s.ledger),
		reconcile.WithMeter(s.metrics.Meter(reconcile.MeterName)),
	)
}

func runUpgradeStatus(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openUpgradeSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.close()

	proxy, err := s.proxy.Resolve(ctx, s.reg)
	if err != nil {
		return err
	}
	rec, err := upgrade.Observe(ctx, s.client, proxy)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "proxy:   %s\n", rec.Proxy.Hex())
	fmt.Fprintf(w, "current: %s\n", rec.Current.Hex())
	fmt.Fprintf(w, "pending: %s\n", rec.Pending.Hex())
	if s.impl == "" {
		return nil
	}

	desired, err := s.impl.Resolve(ctx, s.reg)
	if err != nil {
		return err
	}
	step, err := upgrade.Plan(rec, desired, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "state:   %s\n", upgrade.StateOf(rec, desired))
	fmt.Fprintf(w, "next:    %s", step.Action)
	if step.Action != upgrade.None {
		fmt.Fprintf(w, " as %s", step.Role)
	}
	fmt.Fprintln(w)
	return nil
}

// runUpgradeStep proposes, or with accept set, accepts the desired
// implementation. Accept refuses to run when nothing has been proposed.
func runUpgradeStep(cmd *cobra.Command, accept bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openUpgradeSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.close()

	if accept {
		proxy, err := s.proxy.Resolve(ctx, s.reg)
		if err != nil {
			return err
		}
		desired, err := s.impl.Resolve(ctx, s.reg)
		if err != nil {
			return err
		}
		rec, err := upgrade.Observe(ctx, s.client, proxy)
		if err != nil {
			return err
		}
		if upgrade.StateOf(rec, desired) == upgrade.Stable {
			return fmt.Errorf("no pending proposal for %s on %s", desired.Hex(), proxy.Hex())
		}
	}

	resolver, err := roles.NewResolver(s.cfg.Chain.Roles)
	if err != nil {
		return err
	}
	reconciler := s.reconciler(s.client, resolver)

	recordAs := ""
	if accept {
		recordAs = s.cfg.RecordAs
	}
	unit := reconcile.NewImplementation("upgrade", s.proxy, s.impl, accept, recordAs)
	out, err := reconciler.Reconcile(ctx, unit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %s\n", out.Status, out.Diff.Current)
	for _, a := range out.Actions {
		fmt.Fprintf(w, "  %s %s(%s) tx=%s\n", a.Status, a.Method, a.Args, a.TxHash)
	}
	return nil
}
