// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxstat/pkg/client"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

var (
	discoveryTimeout time.Duration
	discoveryTries   int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search the local network for KNXnet/IP gateways",
	Long: `Send SEARCH_REQUEST to the KNXnet/IP multicast group and list every
gateway that answers.

Each search attempt waits the full timeout so that slow gateways are not
missed. Responses are de-duplicated by control endpoint.

Examples:
  knxstat discover
  knxstat discover --timeout 5s --attempts 3

Exit codes:
  0 - At least one gateway found
  1 - No gateway answered
  2 - Network error`,
	RunE: runDiscover,
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the device information of a gateway",
	Long: `Send DESCRIPTION_REQUEST to the gateway given by --remote and print its
device information and supported service families.

Example:
  knxstat describe --remote 192.168.1.10`,
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(describeCmd)
	discoverCmd.Flags().DurationVar(&discoveryTimeout, "timeout", 3*time.Second, "Time to wait for responses per attempt")
	discoverCmd.Flags().IntVar(&discoveryTries, "attempts", 2, "Number of search attempts")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	cfg.SearchTimeout = discoveryTimeout
	cfg.DiscoveryAttempts = discoveryTries

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("knxstat - Gateway Discovery\n")
	fmt.Printf("Group: %s\n", cfg.MulticastAddress)
	fmt.Printf("Timeout: %s x %d attempts\n\n", discoveryTimeout, discoveryTries)

	gateways, err := client.Discover(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery error: %v\n", err)
		os.Exit(2)
	}
	if len(gateways) == 0 {
		fmt.Printf("No gateways found\n")
		os.Exit(1)
	}

	for i, gw := range gateways {
		fmt.Printf("Gateway %d:\n", i+1)
		fmt.Print(knxnet.FormatBody(gw))
		fmt.Println()
	}
	fmt.Printf("--- %d gateway(s) found ---\n", len(gateways))
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Remote == "" {
		return errors.New("--remote is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	resp, err := client.Describe(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Gateway: %s\n", cfg.Remote)
	fmt.Print(knxnet.FormatBody(resp))
	return nil
}
