// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// knxstat - KNXnet/IP gateway client and bus monitor
//
// A CLI tool for discovering gateways, reading and writing group
// addresses, and monitoring bus traffic.

package main

import (
	"os"

	"github.com/Thermoquad/knxstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
