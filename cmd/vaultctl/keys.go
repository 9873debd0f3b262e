package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
	"vaultctl/internal/strategy"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Compute token and strategy content keys",
	}

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Print the token key of an ordered token list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokenKey, err := tokenKeyFromFlags(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokenKey.Hex())
			return nil
		},
	}

	strategyCmd := &cobra.Command{
		Use:   "strategy",
		Short: "Print the strategy key of a token list and its steps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokenKey, err := tokenKeyFromFlags(cmd)
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetStringArray("step")
			steps := make([]strategy.Step, 0, len(raw))
			for _, item := range raw {
				step, err := parseStep(item)
				if err != nil {
					return err
				}
				steps = append(steps, step)
			}
			key, err := strategy.StrategyKey(tokenKey, steps)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "token_key:    %s\n", tokenKey.Hex())
			fmt.Fprintf(w, "steps_hash:   %s\n", strategy.StepsHash(steps).Hex())
			fmt.Fprintf(w, "strategy_key: %s\n", key.Hex())
			return nil
		},
	}

	for _, sub := range []*cobra.Command{tokenCmd, strategyCmd} {
		sub.Flags().StringSlice("tokens", nil, "ordered token addresses (comma-separated)")
		sub.Flags().String("chain-id", "", "decimal chain id")
		cmd.AddCommand(sub)
	}
	strategyCmd.Flags().StringArray("step", nil, "strategy step as pool:outputToken:isBorrow, repeatable")

	return cmd
}

func tokenKeyFromFlags(cmd *cobra.Command) (common.Hash, error) {
	raw, _ := cmd.Flags().GetStringSlice("tokens")
	chainID, _ := cmd.Flags().GetString("chain-id")
	tokens, err := contracts.ParseAddresses(raw)
	if err != nil {
		return common.Hash{}, err
	}
	return strategy.TokenKey(tokens, chainID)
}

// parseStep parses pool:outputToken[:isBorrow]; isBorrow defaults to false.
func parseStep(input string) (strategy.Step, error) {
	parts := strings.Split(strings.TrimSpace(input), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return strategy.Step{}, model.NewValidationError("step", "expected pool:outputToken:isBorrow, got %q", input)
	}
	for _, addr := range parts[:2] {
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			return strategy.Step{}, model.NewValidationError("step", "invalid address %q", addr)
		}
	}
	step := strategy.Step{
		Pool:        common.HexToAddress(strings.TrimSpace(parts[0])),
		OutputToken: common.HexToAddress(strings.TrimSpace(parts[1])),
	}
	if len(parts) == 3 {
		borrow, err := strconv.ParseBool(strings.TrimSpace(parts[2]))
		if err != nil {
			return strategy.Step{}, model.NewValidationError("step", "invalid borrow flag %q", parts[2])
		}
		step.IsBorrow = borrow
	}
	return step, nil
}
