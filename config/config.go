// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the settings of a two-chain bridge deployment and
// its relayer.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/adapter"
)

const (
	StorageMemory   = "memory"
	StorageDatabase = "database"

	maxBps = 10_000

	defaultLogLevel           = "info"
	defaultStorage            = StorageMemory
	defaultSourceChainID      = 96369
	defaultDestinationChainID = 1
	defaultMinBridges         = 2
	defaultReplenishDuration  = 24 * time.Hour
	defaultLimit              = "1000000000000000000000000"
	defaultTimelockDelay      = time.Hour
	defaultMessageExpiry      = 7 * 24 * time.Hour
	defaultRelayerInterval    = time.Second
	defaultRetryTimeout       = 2 * time.Second
	defaultStaleAfter         = 10 * time.Minute
	defaultStatusTTL          = 5 * time.Second
)

var (
	defaultAdapters            = []string{"warp", "hyperlane", "layerzero", "wormhole", "ccip"}
	defaultMultiBridgeAdapters = []string{"warp", "hyperlane", "layerzero"}
)

type RelayerConfig struct {
	Interval     time.Duration `mapstructure:"interval" json:"interval"`
	RetryTimeout time.Duration `mapstructure:"retry-timeout" json:"retry-timeout"`
	StaleAfter   time.Duration `mapstructure:"stale-after" json:"stale-after"`
	StatusTTL    time.Duration `mapstructure:"status-ttl" json:"status-ttl"`
}

// Config describes one source chain and one destination chain connected by
// a set of adapters, with the controller parameters shared by both sides.
type Config struct {
	LogLevel            string        `mapstructure:"log-level" json:"log-level"`
	Storage             string        `mapstructure:"storage" json:"storage"`
	SourceChainID       uint64        `mapstructure:"source-chain-id" json:"source-chain-id"`
	DestinationChainID  uint64        `mapstructure:"destination-chain-id" json:"destination-chain-id"`
	Adapters            []string      `mapstructure:"adapters" json:"adapters"`
	MultiBridgeAdapters []string      `mapstructure:"multi-bridge-adapters" json:"multi-bridge-adapters"`
	MinBridges          uint64        `mapstructure:"min-bridges" json:"min-bridges"`
	ReplenishDuration   time.Duration `mapstructure:"replenish-duration" json:"replenish-duration"`
	MintLimit           string        `mapstructure:"mint-limit" json:"mint-limit"`
	BurnLimit           string        `mapstructure:"burn-limit" json:"burn-limit"`
	BridgeTaxBps        uint64        `mapstructure:"bridge-tax-bps" json:"bridge-tax-bps"`
	MultiBridgeFeeBps   uint64        `mapstructure:"multi-bridge-fee-bps" json:"multi-bridge-fee-bps"`
	TimelockDelay       time.Duration `mapstructure:"timelock-delay" json:"timelock-delay"`
	MessageExpiry       time.Duration `mapstructure:"message-expiry" json:"message-expiry"`
	Relayer             RelayerConfig `mapstructure:"relayer" json:"relayer"`

	// set by Validate
	kinds      []adapter.Kind
	multiKinds []adapter.Kind
	mintLimit  *uint256.Int
	burnLimit  *uint256.Int
	level      log.Level
}

// Default returns the configuration used when no file or flag overrides a
// key.
func Default() Config {
	return Config{
		LogLevel:            defaultLogLevel,
		Storage:             defaultStorage,
		SourceChainID:       defaultSourceChainID,
		DestinationChainID:  defaultDestinationChainID,
		Adapters:            slices.Clone(defaultAdapters),
		MultiBridgeAdapters: slices.Clone(defaultMultiBridgeAdapters),
		MinBridges:          defaultMinBridges,
		ReplenishDuration:   defaultReplenishDuration,
		MintLimit:           defaultLimit,
		BurnLimit:           defaultLimit,
		TimelockDelay:       defaultTimelockDelay,
		MessageExpiry:       defaultMessageExpiry,
		Relayer: RelayerConfig{
			Interval:     defaultRelayerInterval,
			RetryTimeout: defaultRetryTimeout,
			StaleAfter:   defaultStaleAfter,
			StatusTTL:    defaultStatusTTL,
		},
	}
}

// Validate checks the configuration and resolves the parsed forms of its
// string settings. Every failure wraps a config-kind bridge error.
func (c *Config) Validate() error {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	switch c.Storage {
	case StorageMemory, StorageDatabase:
	default:
		return fmt.Errorf("%w: unknown storage %q", multibridge.ErrInvalidParams, c.Storage)
	}
	if c.SourceChainID == c.DestinationChainID {
		return fmt.Errorf("%w: source and destination chain are both %d", multibridge.ErrInvalidParams, c.SourceChainID)
	}

	kinds, err := parseKinds(c.Adapters)
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		return fmt.Errorf("%w: no adapters configured", multibridge.ErrInvalidParams)
	}
	multiKinds, err := parseKinds(c.MultiBridgeAdapters)
	if err != nil {
		return err
	}
	for _, k := range multiKinds {
		if !slices.Contains(kinds, k) {
			return fmt.Errorf("%w: multi-bridge adapter %s is not configured", multibridge.ErrAdapterNotAllowed, k)
		}
	}
	if c.MinBridges < 2 {
		return fmt.Errorf("%w: min bridges %d", multibridge.ErrInvalidThreshold, c.MinBridges)
	}
	if uint64(len(multiKinds)) < c.MinBridges {
		return fmt.Errorf("%w: %d multi-bridge adapters for min bridges %d", multibridge.ErrMinBridgesNotMet, len(multiKinds), c.MinBridges)
	}

	if c.ReplenishDuration < time.Second {
		return fmt.Errorf("%w: %s", multibridge.ErrZeroDuration, c.ReplenishDuration)
	}
	if c.MessageExpiry < time.Second {
		return fmt.Errorf("%w: message expiry %s", multibridge.ErrZeroDuration, c.MessageExpiry)
	}
	if c.TimelockDelay < 0 {
		return fmt.Errorf("%w: negative timelock delay", multibridge.ErrInvalidParams)
	}
	mintLimit, err := parseLimit(MintLimitKey, c.MintLimit)
	if err != nil {
		return err
	}
	burnLimit, err := parseLimit(BurnLimitKey, c.BurnLimit)
	if err != nil {
		return err
	}
	if c.BridgeTaxBps > maxBps || c.MultiBridgeFeeBps > maxBps {
		return fmt.Errorf("%w: basis points above %d", multibridge.ErrInvalidParams, maxBps)
	}
	if c.Relayer.RetryTimeout < 0 || c.Relayer.Interval < 0 || c.Relayer.StaleAfter < 0 || c.Relayer.StatusTTL < 0 {
		return fmt.Errorf("%w: negative relayer duration", multibridge.ErrInvalidParams)
	}

	c.level = level
	c.kinds = kinds
	c.multiKinds = multiKinds
	c.mintLimit = mintLimit
	c.burnLimit = burnLimit
	return nil
}

// Kinds returns the configured adapter kinds. Valid after Validate.
func (c *Config) Kinds() []adapter.Kind { return c.kinds }

// MultiBridgeKinds returns the kinds whitelisted for multi-bridge sends.
func (c *Config) MultiBridgeKinds() []adapter.Kind { return c.multiKinds }

func (c *Config) MintLimitValue() *uint256.Int { return c.mintLimit.Clone() }

func (c *Config) BurnLimitValue() *uint256.Int { return c.burnLimit.Clone() }

func (c *Config) Level() log.Level { return c.level }

func parseLevel(s string) (log.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("%w: unknown log level %q", multibridge.ErrInvalidParams, s)
	}
}

func parseKinds(names []string) ([]adapter.Kind, error) {
	kinds := make([]adapter.Kind, 0, len(names))
	for _, name := range names {
		k, err := adapter.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if slices.Contains(kinds, k) {
			return nil, fmt.Errorf("%w: %s", multibridge.ErrDuplicateAdapter, k)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseLimit(key, s string) (*uint256.Int, error) {
	limit, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", multibridge.ErrInvalidParams, key, s, err)
	}
	if limit.Gt(multibridge.MaxLimit) {
		return nil, fmt.Errorf("%w: %s", multibridge.ErrLimitTooHigh, key)
	}
	return limit, nil
}
