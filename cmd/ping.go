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
)

var (
	pingCount    int
	pingInterval time.Duration
	statsPeriod  time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure the round trip to the gateway",
	Long: `Open a tunneling connection and send CONNECTIONSTATE_REQUEST probes,
printing the round-trip time of each response.

This is useful for verifying:
  - The gateway accepts tunneling connections
  - Heartbeat responses arrive on the control endpoint
  - Latency of the link to the gateway

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Collect traffic statistics for a while",
	Long: `Connect, collect traffic for the given duration and print frame counts,
byte totals and rates per service type.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statsCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", time.Second, "Delay between pings")
	statsCmd.Flags().DurationVar(&statsPeriod, "duration", 10*time.Second, "How long to collect")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Mode != client.ModeTunneling {
		return errors.New("ping needs a tunneling connection")
	}
	if pingCount < 1 {
		return errors.New("--count must be at least 1")
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := startClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer c.Close()

	fmt.Printf("knxstat - Gateway Ping\n")
	fmt.Printf("Connection: %s\n", describeConnection(c, cfg))
	fmt.Printf("Count: %d pings\n\n", pingCount)

	sent, successCount := 0, 0
	var total time.Duration
pings:
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		rtt, err := c.Ping(ctx)
		sent++
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
		} else {
			fmt.Printf("response from channel %d, rtt=%v\n", c.ChannelID(), rtt.Round(time.Microsecond))
			successCount++
			total += rtt
		}

		if i < pingCount {
			select {
			case <-ctx.Done():
				break pings
			case <-time.After(pingInterval):
			}
		}
	}

	failCount := sent - successCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		sent, successCount, float64(failCount)/float64(sent)*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Microsecond))
	}

	if failCount > 0 {
		c.Close()
		os.Exit(1)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := startClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("Connection: %s\n", describeConnection(c, cfg))
	fmt.Printf("Collecting for %s (Ctrl+C to stop early)\n\n", statsPeriod)

	select {
	case <-ctx.Done():
	case <-c.Done():
		fmt.Fprintf(os.Stderr, "Session ended: %v\n", c.Err())
	case <-time.After(statsPeriod):
	}

	fmt.Print(c.Statistics().String())
	return nil
}
