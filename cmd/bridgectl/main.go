// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/multibridge/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bridgectl",
	Short: "Multi-bridge asset and message controller tooling",
	Long: `bridgectl derives transfer and message ids, validates bridge
configuration and runs a two-chain devnet with every configured transport
adapter, optionally kept alive by the relayer.`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(relayerCmd)
}

// loadConfig resolves flags, environment and the optional config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	return config.NewConfig(v)
}

func newLogger(cfg config.Config) log.Logger {
	return log.NewTestLogger(cfg.Level())
}
