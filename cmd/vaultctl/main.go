package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vaultctl",
		Short:        "Vault deployment and configuration reconciler",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newReconcileCmd())
	root.AddCommand(newUpgradeCmd())
	root.AddCommand(newWhitelistCmd())
	root.AddCommand(newConfigWordCmd())
	root.AddCommand(newKeysCmd())
	return root
}
