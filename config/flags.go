// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"github.com/spf13/pflag"
)

// AddFlags registers the command line options understood by BuildViper.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Specifies the JSON or YAML config file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level: debug, info, warn or error")
	fs.String(StorageKey, defaultStorage, "Registry storage: memory or database")
}

// BuildFlagSet returns a stand-alone flag set holding the options of
// AddFlags.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("bridge", pflag.ContinueOnError)
	AddFlags(fs)
	return fs
}
