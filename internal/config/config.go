package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ChainConfig holds the settings shared by every command that talks to a node.
type ChainConfig struct {
	RPCURL         string
	ChainID        string
	Confirmations  uint64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	ReadRetries    uint64
	MaxFeeGwei     uint64
	Roles          map[string]string
	LogLevel       string

	Metrics         bool
	MetricsInterval time.Duration
}

// RegistryConfig selects the name registry backend.
type RegistryConfig struct {
	Backend string
	Path    string
	PGDSN   string
}

// ReconcileConfig holds configuration for the reconcile command.
type ReconcileConfig struct {
	Chain       ChainConfig
	Registry    RegistryConfig
	Manifest    string
	Concurrency int
	MaxSteps    int
	DryRun      bool
	ActionsOut  string
	CheckRoles  bool
}

// Load merges config file, environment variables, and flags into ReconcileConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setChainDefaults(v)
		setRegistryDefaults(v)
		v.SetDefault("concurrency", 4)
		v.SetDefault("max-steps", 4)
		v.SetDefault("dry-run", false)
		v.SetDefault("actions-out", "./data/actions.jsonl")
		v.SetDefault("check-roles", true)
	})
	if err != nil {
		return ReconcileConfig{}, err
	}

	cfg := ReconcileConfig{
		Chain:       chainConfig(v),
		Registry:    registryConfig(v),
		Manifest:    v.GetString("manifest"),
		Concurrency: v.GetInt("concurrency"),
		MaxSteps:    v.GetInt("max-steps"),
		DryRun:      v.GetBool("dry-run"),
		ActionsOut:  v.GetString("actions-out"),
		CheckRoles:  v.GetBool("check-roles"),
	}
	if cfg.Manifest == "" {
		return ReconcileConfig{}, fmt.Errorf("manifest is required")
	}
	if cfg.Chain.RPCURL == "" {
		return ReconcileConfig{}, fmt.Errorf("rpc is required")
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func setChainDefaults(v *viper.Viper) {
	v.SetDefault("confirmations", uint64(1))
	v.SetDefault("confirm-timeout", 5*time.Minute)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("read-retries", uint64(3))
	v.SetDefault("max-fee-gwei", uint64(0))
	v.SetDefault("log-level", "info")
	v.SetDefault("metrics", false)
	v.SetDefault("metrics-interval", 15*time.Second)
}

func setRegistryDefaults(v *viper.Viper) {
	v.SetDefault("registry-backend", "file")
	v.SetDefault("registry-path", "./data/registry.json")
}

func chainConfig(v *viper.Viper) ChainConfig {
	return ChainConfig{
		RPCURL:         v.GetString("rpc"),
		ChainID:        v.GetString("chain-id"),
		Confirmations:  v.GetUint64("confirmations"),
		ConfirmTimeout: v.GetDuration("confirm-timeout"),
		PollInterval:   v.GetDuration("poll-interval"),
		ReadRetries:    v.GetUint64("read-retries"),
		MaxFeeGwei:     v.GetUint64("max-fee-gwei"),
		Roles:          getStringMap(v, "roles"),
		LogLevel:       v.GetString("log-level"),

		Metrics:         v.GetBool("metrics"),
		MetricsInterval: v.GetDuration("metrics-interval"),
	}
}

func registryConfig(v *viper.Viper) RegistryConfig {
	return RegistryConfig{
		Backend: strings.ToLower(strings.TrimSpace(v.GetString("registry-backend"))),
		Path:    v.GetString("registry-path"),
		PGDSN:   v.GetString("pg-dsn"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
