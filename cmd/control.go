// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

var (
	readTimeout  time.Duration
	writeConfirm time.Duration
)

var readCmd = &cobra.Command{
	Use:   "read <group-address>",
	Short: "Read the value of a group address",
	Long: `Send GroupValueRead for a group address and wait for the response.

The group address may be written as main/middle/sub, main/sub or a plain
number.

Examples:
  knxstat read 1/2/3 --remote 192.168.1.10
  knxstat read 1/2/3 --mode routing --timeout 5s

Exit codes:
  0 - Value received
  1 - No response before the timeout`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <group-address> <hex-payload>",
	Short: "Write a value to a group address",
	Long: `Send GroupValueWrite with a hex payload.

A single byte up to 0x3F is sent in the compact form used for switches and
small values; anything else is sent as a data payload.

Examples:
  knxstat write 1/2/3 01          # switch on
  knxstat write 1/2/4 0C1A        # 2-byte float`,
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 3*time.Second, "Time to wait for the response")
	writeCmd.Flags().DurationVar(&writeConfirm, "wait", 0, "Wait this long for the value to show up on the bus")
}

// parsePayload accepts hex with optional 0x prefix and separators
func parsePayload(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}

func runRead(cmd *cobra.Command, args []string) error {
	addr, err := knxnet.ParseGroupAddress(args[0])
	if err != nil {
		return err
	}
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

	if !c.ReadRequest(ctx, addr) {
		return fmt.Errorf("read request for %s was not accepted", addr)
	}
	if !c.StatusCache().IsUpdated(ctx, addr, readTimeout) {
		fmt.Printf("%s: no response within %s\n", addr, readTimeout)
		c.Close()
		os.Exit(1)
	}

	st, _ := c.StatusCache().GetStatusFor(addr, false)
	fmt.Printf("%s = %s (from %s, %s)\n", addr, formatValue(st.Payload), st.Source, knxnet.FormatAPCI(st.APCI))
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	addr, err := knxnet.ParseGroupAddress(args[0])
	if err != nil {
		return err
	}
	payload, err := parsePayload(args[1])
	if err != nil {
		return err
	}
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

	if !c.WriteRequest(ctx, addr, payload) {
		return fmt.Errorf("write to %s was not acknowledged", addr)
	}
	fmt.Printf("%s <- %s\n", addr, formatValue(payload))

	if writeConfirm > 0 {
		if c.StatusCache().IsUpdated(ctx, addr, writeConfirm) {
			st, _ := c.StatusCache().GetStatusFor(addr, false)
			fmt.Printf("%s = %s (confirmed by %s)\n", addr, formatValue(st.Payload), st.Source)
		} else {
			fmt.Printf("%s: no confirmation within %s\n", addr, writeConfirm)
		}
	}
	return nil
}
