// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildViper binds the flags in fs and, when a config file is named, reads
// it. All config keys may also be provided as BRIDGE_ prefixed environment
// variables.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map flag names to env var names. Hyphens and dots become underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if !v.IsSet(ConfigFileKey) || v.GetString(ConfigFileKey) == "" {
		return v, nil
	}
	v.SetConfigFile(os.ExpandEnv(v.GetString(ConfigFileKey)))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	d := Default()
	v.SetDefault(LogLevelKey, d.LogLevel)
	v.SetDefault(StorageKey, d.Storage)
	v.SetDefault(SourceChainIDKey, d.SourceChainID)
	v.SetDefault(DestinationChainIDKey, d.DestinationChainID)
	v.SetDefault(AdaptersKey, d.Adapters)
	v.SetDefault(MultiBridgeAdaptersKey, d.MultiBridgeAdapters)
	v.SetDefault(MinBridgesKey, d.MinBridges)
	v.SetDefault(ReplenishDurationKey, d.ReplenishDuration)
	v.SetDefault(MintLimitKey, d.MintLimit)
	v.SetDefault(BurnLimitKey, d.BurnLimit)
	v.SetDefault(BridgeTaxBpsKey, d.BridgeTaxBps)
	v.SetDefault(MultiBridgeFeeBpsKey, d.MultiBridgeFeeBps)
	v.SetDefault(TimelockDelayKey, d.TimelockDelay)
	v.SetDefault(MessageExpiryKey, d.MessageExpiry)
	v.SetDefault(RelayerIntervalKey, d.Relayer.Interval)
	v.SetDefault(RelayerRetryTimeoutKey, d.Relayer.RetryTimeout)
	v.SetDefault(RelayerStaleAfterKey, d.Relayer.StaleAfter)
	v.SetDefault(RelayerStatusTTLKey, d.Relayer.StatusTTL)
}

// BuildConfig constructs the bridge config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
