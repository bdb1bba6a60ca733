// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// Mode selects how group telegrams reach the bus
type Mode string

const (
	// ModeTunneling opens an acknowledged point-to-point session with one gateway
	ModeTunneling Mode = "tunneling"
	// ModeRouting sends unacknowledged indications to the multicast group
	ModeRouting Mode = "routing"
)

// Config holds every tunable of a client session. Zero ports pick an
// ephemeral port.
type Config struct {
	Mode Mode `yaml:"mode"`

	// Remote is the gateway control endpoint (host or host:port). When empty
	// in tunneling mode the gateway is discovered by multicast search.
	Remote string `yaml:"remote"`
	// NAT advertises route-back endpoints so the gateway answers to the
	// datagram source address
	NAT bool `yaml:"nat"`
	// LocalAddress binds all sockets to one interface address
	LocalAddress string `yaml:"local_address"`

	ControlPort     int `yaml:"control_port"`
	DataPort        int `yaml:"data_port"`
	DescriptionPort int `yaml:"description_port"`
	MulticastPort   int `yaml:"multicast_port"`

	SocketTimeout          time.Duration `yaml:"socket_timeout"`
	DescriptionTimeout     time.Duration `yaml:"description_timeout"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout"`
	ConnectionStateTimeout time.Duration `yaml:"connection_state_timeout"`
	DisconnectTimeout      time.Duration `yaml:"disconnect_timeout"`
	TunnelingTimeout       time.Duration `yaml:"tunneling_timeout"`
	SearchTimeout          time.Duration `yaml:"search_timeout"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatMisses   int           `yaml:"heartbeat_misses"`

	DescriptionRetries int `yaml:"description_retries"`
	DisconnectRetries  int `yaml:"disconnect_retries"`
	DiscoveryAttempts  int `yaml:"discovery_attempts"`

	// MulticastAddress is the routing and search group as host:port
	MulticastAddress  string `yaml:"multicast_address"`
	MulticastTTL      int    `yaml:"multicast_ttl"`
	MulticastLoopback bool   `yaml:"multicast_loopback"`
	// RoutingRate caps routing indications per second
	RoutingRate int `yaml:"routing_rate"`

	// IndividualAddress is the source of routing indications
	IndividualAddress string `yaml:"individual_address"`
}

// DefaultConfig returns the protocol's recommended timings.
func DefaultConfig() Config {
	return Config{
		Mode:                   ModeTunneling,
		MulticastPort:          knxnet.DefaultPort,
		SocketTimeout:          time.Second,
		DescriptionTimeout:     3 * time.Second,
		ConnectTimeout:         10 * time.Second,
		ConnectionStateTimeout: 10 * time.Second,
		DisconnectTimeout:      2 * time.Second,
		TunnelingTimeout:       time.Second,
		SearchTimeout:          3 * time.Second,
		HeartbeatInterval:      60 * time.Second,
		HeartbeatMisses:        3,
		DescriptionRetries:     2,
		DisconnectRetries:      3,
		DiscoveryAttempts:      2,
		MulticastAddress:       net.JoinHostPort(knxnet.DefaultMulticast, strconv.Itoa(knxnet.DefaultPort)),
		MulticastTTL:           16,
		RoutingRate:            50,
		IndividualAddress:      "15.15.255",
	}
}

// Validate checks the configuration and reports the first problem found
func (c Config) Validate() error {
	switch c.Mode {
	case ModeTunneling, ModeRouting:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	ports := map[string]int{
		"control_port":     c.ControlPort,
		"data_port":        c.DataPort,
		"description_port": c.DescriptionPort,
		"multicast_port":   c.MulticastPort,
	}
	for name, p := range ports {
		if p < 0 || p > 65535 {
			return fmt.Errorf("config: %s %d out of range", name, p)
		}
	}

	timeouts := map[string]time.Duration{
		"socket_timeout":           c.SocketTimeout,
		"description_timeout":      c.DescriptionTimeout,
		"connect_timeout":          c.ConnectTimeout,
		"connection_state_timeout": c.ConnectionStateTimeout,
		"disconnect_timeout":       c.DisconnectTimeout,
		"tunneling_timeout":        c.TunnelingTimeout,
		"search_timeout":           c.SearchTimeout,
		"heartbeat_interval":       c.HeartbeatInterval,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}

	if c.HeartbeatMisses < 1 {
		return errors.New("config: heartbeat_misses must be at least 1")
	}
	if c.DescriptionRetries < 0 || c.DisconnectRetries < 0 {
		return errors.New("config: retry counts must not be negative")
	}
	if c.DiscoveryAttempts < 1 {
		return errors.New("config: discovery_attempts must be at least 1")
	}
	if c.RoutingRate < 1 {
		return errors.New("config: routing_rate must be at least 1")
	}

	if c.LocalAddress != "" && net.ParseIP(c.LocalAddress).To4() == nil {
		return fmt.Errorf("config: local_address %q is not an IPv4 address", c.LocalAddress)
	}
	if c.Remote != "" {
		if _, err := resolveUDP(c.Remote, knxnet.DefaultPort); err != nil {
			return fmt.Errorf("config: remote: %w", err)
		}
	}
	if c.Mode == ModeRouting || c.Remote == "" {
		if _, err := resolveUDP(c.MulticastAddress, knxnet.DefaultPort); err != nil {
			return fmt.Errorf("config: multicast_address: %w", err)
		}
	}
	if _, err := knxnet.ParseIndividualAddress(c.IndividualAddress); err != nil {
		return fmt.Errorf("config: individual_address: %w", err)
	}
	return nil
}

// resolveUDP resolves host or host:port, filling in defPort
func resolveUDP(s string, defPort int) (*net.UDPAddr, error) {
	if s == "" {
		return nil, errors.New("empty address")
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		s = net.JoinHostPort(s, strconv.Itoa(defPort))
	}
	return net.ResolveUDPAddr("udp4", s)
}
