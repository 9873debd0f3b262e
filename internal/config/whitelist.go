package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// WhitelistConfig holds configuration for the whitelist commands.
type WhitelistConfig struct {
	Accounts     []string
	AccountsFile string
	Out          string
	Artifact     string
	Account      string
	LogLevel     string
}

// LoadWhitelist merges config file, environment variables, and flags into WhitelistConfig.
func LoadWhitelist(cfgFile string, flags *pflag.FlagSet) (WhitelistConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("out", "./data/whitelist.json")
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return WhitelistConfig{}, err
	}

	cfg := WhitelistConfig{
		Accounts:     getStringSlice(v, "accounts"),
		AccountsFile: v.GetString("accounts-file"),
		Out:          v.GetString("out"),
		Artifact:     v.GetString("artifact"),
		Account:      v.GetString("account"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.Out == "" {
		return WhitelistConfig{}, fmt.Errorf("out is required")
	}
	return cfg, nil
}
