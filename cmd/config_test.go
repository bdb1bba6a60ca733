// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/knxstat/pkg/client"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knxstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noFlags(string) bool { return false }

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(globalFlags{}, noFlags)
	require.NoError(t, err)
	assert.Equal(t, client.DefaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
mode: tunneling
remote: 192.168.1.10:3671
nat: true
heartbeat_interval: 30s
heartbeat_misses: 5
tunneling_timeout: 1500ms
`)
	cfg, err := loadConfig(globalFlags{configFile: path}, noFlags)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.10:3671", cfg.Remote)
	assert.True(t, cfg.NAT)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5, cfg.HeartbeatMisses)
	assert.Equal(t, 1500*time.Millisecond, cfg.TunnelingTimeout)
	// untouched keys keep their defaults
	assert.Equal(t, client.DefaultConfig().ConnectTimeout, cfg.ConnectTimeout)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "remote: 192.168.1.10\nnat: true\n")
	g := globalFlags{configFile: path, remote: "10.0.0.5", nat: false, mode: "routing"}

	// only --remote was given on the command line
	cfg, err := loadConfig(g, func(name string) bool { return name == "remote" })
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Remote)
	assert.True(t, cfg.NAT)
	assert.Equal(t, client.ModeTunneling, cfg.Mode)

	cfg, err = loadConfig(g, func(name string) bool { return name == "mode" || name == "nat" })
	require.NoError(t, err)
	assert.Equal(t, client.ModeRouting, cfg.Mode)
	assert.False(t, cfg.NAT)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown key", "gateway: 1.2.3.4\n", "field gateway not found"},
		{"bad duration", "connect_timeout: soon\n", "failed to parse config"},
		{"invalid value", "heartbeat_misses: 0\n", "invalid configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(globalFlags{configFile: writeConfig(t, tt.content)}, noFlags)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := loadConfig(globalFlags{configFile: filepath.Join(t.TempDir(), "missing.yaml")}, noFlags)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := loadConfig(globalFlags{configFile: writeConfig(t, "")}, noFlags)
	require.NoError(t, err)
	assert.Equal(t, client.DefaultConfig(), cfg)
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"01", []byte{0x01}},
		{"1", []byte{0x01}},
		{"0x0C1A", []byte{0x0C, 0x1A}},
		{"0c:1a", []byte{0x0C, 0x1A}},
		{"12 34 56", []byte{0x12, 0x34, 0x56}},
	}
	for _, tt := range tests {
		got, err := parsePayload(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parsePayload("")
	assert.Error(t, err)
	_, err = parsePayload("zz")
	assert.Error(t, err)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0 seconds", formatUptime(0))
	assert.Equal(t, "1 second", formatUptime(time.Second))
	assert.Equal(t, "2 minutes", formatUptime(2*time.Minute))
	assert.Equal(t, "1 hour and 5 seconds", formatUptime(time.Hour+5*time.Second))
	assert.Equal(t, "2 days, 3 hours, and 1 minute", formatUptime(51*time.Hour+time.Minute))
}

func TestMonitorEventSummary(t *testing.T) {
	ack := knxnet.NewFrame(&knxnet.TunnelingAck{ChannelID: 7, Sequence: 3})

	rx := monitorEvent{frame: ack}
	assert.Equal(t, "RX TUNNELING_ACK Channel: 7, Seq: 3, Status: "+knxnet.FormatStatus(knxnet.StatusNoError), rx.summary())

	tx := monitorEvent{frame: ack, outgoing: true}
	assert.Contains(t, tx.summary(), "TX TUNNELING_ACK")

	fail := monitorEvent{err: errors.New("heartbeat exhausted")}
	assert.Equal(t, "ERROR: heartbeat exhausted", fail.summary())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "(empty)", formatValue(nil))
	assert.Equal(t, "0x0C1A", formatValue([]byte{0x0C, 0x1A}))
}
