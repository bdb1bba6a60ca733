// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "bus" }, "unknown mode"},
		{"negative port", func(c *Config) { c.DataPort = -1 }, "data_port"},
		{"port too large", func(c *Config) { c.ControlPort = 70000 }, "control_port"},
		{"zero timeout", func(c *Config) { c.TunnelingTimeout = 0 }, "tunneling_timeout"},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, "heartbeat_interval"},
		{"no misses", func(c *Config) { c.HeartbeatMisses = 0 }, "heartbeat_misses"},
		{"negative retries", func(c *Config) { c.DisconnectRetries = -1 }, "retry"},
		{"no discovery attempts", func(c *Config) { c.DiscoveryAttempts = 0 }, "discovery_attempts"},
		{"no routing rate", func(c *Config) { c.RoutingRate = 0 }, "routing_rate"},
		{"bad local address", func(c *Config) { c.LocalAddress = "eth0" }, "local_address"},
		{"bad individual address", func(c *Config) { c.IndividualAddress = "16.0.1" }, "individual_address"},
		{"routing without group", func(c *Config) {
			c.Mode = ModeRouting
			c.MulticastAddress = ""
		}, "multicast_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_RemoteWithoutGroup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote = "127.0.0.1"
	cfg.MulticastAddress = ""
	assert.NoError(t, cfg.Validate())
}

func TestResolveUDP_DefaultPort(t *testing.T) {
	addr, err := resolveUDP("127.0.0.1", 3671)
	require.NoError(t, err)
	assert.Equal(t, 3671, addr.Port)

	addr, err = resolveUDP("127.0.0.1:50000", 3671)
	require.NoError(t, err)
	assert.Equal(t, 50000, addr.Port)

	_, err = resolveUDP("", 3671)
	assert.Error(t, err)
}

func TestDefaultConfig_Timings(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ModeTunneling, cfg.Mode)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 3, cfg.HeartbeatMisses)
	assert.Equal(t, "224.0.23.12:3671", cfg.MulticastAddress)
}
