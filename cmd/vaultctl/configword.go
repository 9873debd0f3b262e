package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"vaultctl/internal/model"
	"vaultctl/internal/vaultconfig"
)

func newConfigWordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configword",
		Short: "Decode and edit packed vault configuration words",
	}

	decodeCmd := &cobra.Command{
		Use:   "decode <word>",
		Short: "Print every field of a configuration word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			word, err := parseWord(args[0])
			if err != nil {
				return err
			}
			for _, line := range vaultconfig.Describe(word) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <word> <field> <value>",
		Short: "Replace one field and print the new word",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			word, err := parseWord(args[0])
			if err != nil {
				return err
			}
			field, ok := vaultconfig.ParseField(args[1])
			if !ok || field == vaultconfig.Reserved {
				return model.NewValidationError("field", "unknown config field %q", args[1])
			}
			value, err := vaultconfig.ParseValue(field, args[2])
			if err != nil {
				return err
			}
			next, err := vaultconfig.WithField(word, field, value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next.Hex())
			return nil
		},
	}

	cmd.AddCommand(decodeCmd, setCmd)
	return cmd
}

// parseWord accepts a decimal or 0x-prefixed hex word.
func parseWord(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	n, ok := new(big.Int).SetString(input, 0)
	if !ok || n.Sign() < 0 {
		return nil, model.NewValidationError("word", "invalid word %q", input)
	}
	word, overflow := uint256.FromBig(n)
	if overflow {
		return nil, &model.RangeError{Field: "word", Value: n.String(), Width: 256}
	}
	return word, nil
}
