// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/knxstat/internal/logger"
)

// Version is the CLI release, overridden at link time
var Version = "0.3.0"

// globalFlags holds the persistent connection flags
type globalFlags struct {
	remote     string
	mode       string
	nat        bool
	configFile string
	debug      bool
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "knxstat",
	Short: "KNXnet/IP gateway client and bus monitor",
	Long: `knxstat - A CLI tool for talking to KNXnet/IP gateways.

Discovers gateways, reads and writes group addresses, and monitors bus
traffic through a tunneling connection or the routing multicast group.

Connection modes:
  Tunneling: --remote 192.168.1.10[:3671]  (discovered when omitted)
  Routing:   --mode routing

Settings not given as flags are read from the YAML file named by --config.
Log levels come from KNXSTAT_LOG_LEVEL (e.g. client=debug,warn).`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flags.debug {
			logger.SetGlobalLevel(zapcore.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.remote, "remote", "r", "", "Gateway address (host[:port])")
	rootCmd.PersistentFlags().StringVarP(&flags.mode, "mode", "m", "tunneling", "Connection mode (tunneling or routing)")
	rootCmd.PersistentFlags().BoolVar(&flags.nat, "nat", false, "Use route-back endpoints (gateway behind NAT)")
	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
