package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultctl/internal/config"
	"vaultctl/internal/contracts"
	"vaultctl/internal/manifest"
	"vaultctl/internal/merkle"
)

func newWhitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Build and check Merkle whitelist artifacts",
	}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a whitelist artifact with a proof per account",
		RunE:  runWhitelistBuild,
	}
	buildCmd.Flags().StringSlice("accounts", nil, "accounts (comma-separated)")
	buildCmd.Flags().String("accounts-file", "", "file with one account per line")
	buildCmd.Flags().String("out", "./data/whitelist.json", "output artifact path")
	buildCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an account's proof against the artifact root",
		RunE:  runWhitelistVerify,
	}
	verifyCmd.Flags().String("artifact", "", "artifact path")
	verifyCmd.Flags().String("account", "", "account to check")
	verifyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(buildCmd, verifyCmd)
	return cmd
}

func runWhitelistBuild(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWhitelist(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	accounts, err := contracts.ParseAddresses(cfg.Accounts)
	if err != nil {
		return err
	}
	if cfg.AccountsFile != "" {
		fromFile, err := manifest.ReadAccounts(cfg.AccountsFile)
		if err != nil {
			return err
		}
		accounts = append(accounts, fromFile...)
	}

	tree, err := merkle.Build(accounts)
	if err != nil {
		return err
	}
	artifact, err := tree.Artifact()
	if err != nil {
		return err
	}
	if err := merkle.WriteArtifact(cfg.Out, artifact); err != nil {
		return err
	}

	logger.Info("whitelist built",
		zap.String("root", artifact.Root),
		zap.Int("accounts", len(artifact.Proofs)),
		zap.String("out", cfg.Out),
	)
	fmt.Fprintln(cmd.OutOrStdout(), artifact.Root)
	return nil
}

func runWhitelistVerify(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWhitelist(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Artifact == "" {
		return fmt.Errorf("artifact is required")
	}
	if !common.IsHexAddress(cfg.Account) {
		return fmt.Errorf("invalid account %q", cfg.Account)
	}

	artifact, err := merkle.ReadArtifact(cfg.Artifact)
	if err != nil {
		return err
	}
	ok, err := merkle.VerifyArtifact(artifact, common.HexToAddress(cfg.Account))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %s is not whitelisted under root %s", cfg.Account, artifact.Root)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", common.HexToAddress(cfg.Account).Hex())
	return nil
}
