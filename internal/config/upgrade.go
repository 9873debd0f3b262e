package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// UpgradeConfig holds configuration for the upgrade commands.
type UpgradeConfig struct {
	Chain          ChainConfig
	Registry       RegistryConfig
	Proxy          string
	Implementation string
	RecordAs       string
	ActionsOut     string
}

// LoadUpgrade merges config file, environment variables, and flags into UpgradeConfig.
func LoadUpgrade(cfgFile string, flags *pflag.FlagSet) (UpgradeConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setChainDefaults(v)
		setRegistryDefaults(v)
		v.SetDefault("actions-out", "./data/actions.jsonl")
	})
	if err != nil {
		return UpgradeConfig{}, err
	}

	cfg := UpgradeConfig{
		Chain:          chainConfig(v),
		Registry:       registryConfig(v),
		Proxy:          v.GetString("proxy"),
		Implementation: v.GetString("implementation"),
		RecordAs:       v.GetString("record-as"),
		ActionsOut:     v.GetString("actions-out"),
	}
	if cfg.Chain.RPCURL == "" {
		return UpgradeConfig{}, fmt.Errorf("rpc is required")
	}
	if cfg.Proxy == "" {
		return UpgradeConfig{}, fmt.Errorf("proxy is required")
	}
	return cfg, nil
}
