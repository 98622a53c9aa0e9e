// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Environment variables are the upper-cased keys with this prefix, e.g.
	// BRIDGE_LOG_LEVEL.
	EnvPrefix = "BRIDGE"

	// Top-level configuration keys
	LogLevelKey            = "log-level"
	StorageKey             = "storage"
	SourceChainIDKey       = "source-chain-id"
	DestinationChainIDKey  = "destination-chain-id"
	AdaptersKey            = "adapters"
	MultiBridgeAdaptersKey = "multi-bridge-adapters"
	MinBridgesKey          = "min-bridges"
	ReplenishDurationKey   = "replenish-duration"
	MintLimitKey           = "mint-limit"
	BurnLimitKey           = "burn-limit"
	BridgeTaxBpsKey        = "bridge-tax-bps"
	MultiBridgeFeeBpsKey   = "multi-bridge-fee-bps"
	TimelockDelayKey       = "timelock-delay"
	MessageExpiryKey       = "message-expiry"

	// Relayer keys
	RelayerIntervalKey     = "relayer.interval"
	RelayerRetryTimeoutKey = "relayer.retry-timeout"
	RelayerStaleAfterKey   = "relayer.stale-after"
	RelayerStatusTTLKey    = "relayer.status-ttl"
)
