// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/knxstat/pkg/client"
)

// readConfigFile overlays the YAML file at path onto cfg. Keys missing
// from the file keep their current values.
func readConfigFile(path string, cfg *client.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// loadConfig builds the client configuration from defaults, the config
// file and any flags the user set explicitly.
func loadConfig(g globalFlags, changed func(name string) bool) (client.Config, error) {
	cfg := client.DefaultConfig()
	if g.configFile != "" {
		if err := readConfigFile(g.configFile, &cfg); err != nil {
			return cfg, err
		}
	}

	if changed("remote") {
		cfg.Remote = g.remote
	}
	if changed("mode") {
		cfg.Mode = client.Mode(g.mode)
	}
	if changed("nat") {
		cfg.NAT = g.nat
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func commandConfig(cmd *cobra.Command) (client.Config, error) {
	return loadConfig(flags, cmd.Flags().Changed)
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startClient creates a client for cfg and starts its session
func startClient(ctx context.Context, cfg client.Config, plugins ...any) (*client.Client, error) {
	c, err := client.New(cfg, client.WithPlugins(plugins...))
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return c, nil
}

// describeConnection returns a one-line summary of the session
func describeConnection(c *client.Client, cfg client.Config) string {
	if cfg.Mode == client.ModeRouting {
		return fmt.Sprintf("Routing: %s", cfg.MulticastAddress)
	}
	name := "unknown gateway"
	if d := c.Description(); d != nil && d.Device != nil {
		name = d.Device.FriendlyName
	}
	return fmt.Sprintf("Tunneling: %s, channel %d", name, c.ChannelID())
}
