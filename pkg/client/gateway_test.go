// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"io"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/knxstat/internal/logger"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

func init() {
	logger.SetOutput(zapcore.AddSync(io.Discard))
}

var loopback = net.IPv4(127, 0, 0, 1)

// fakeGateway answers the client side of the protocol on one loopback
// socket and records every frame it receives.
type fakeGateway struct {
	t         *testing.T
	conn      *net.UDPConn
	channelID uint8

	connectStatus   knxnet.Status
	answerHeartbeat atomic.Bool
	ackTunneling    atomic.Bool
	dropTunneling   atomic.Int32

	mu            sync.Mutex
	received      []knxnet.Frame
	clientControl *net.UDPAddr
	clientData    *net.UDPAddr
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: loopback})
	require.NoError(t, err)

	g := &fakeGateway{t: t, conn: conn, channelID: 7}
	g.answerHeartbeat.Store(true)
	g.ackTunneling.Store(true)
	t.Cleanup(func() { conn.Close() })
	go g.serve()
	return g
}

func (g *fakeGateway) addr() *net.UDPAddr {
	return g.conn.LocalAddr().(*net.UDPAddr)
}

func (g *fakeGateway) hpai() knxnet.HPAI {
	return knxnet.HPAIFromUDPAddr(g.addr())
}

func (g *fakeGateway) device() *knxnet.DeviceInfo {
	return &knxnet.DeviceInfo{
		Medium:       0x02,
		Address:      knxnet.NewIndividualAddress(1, 1, 0),
		SerialNumber: [6]byte{0x00, 0xC5, 0x01, 0x02, 0x03, 0x04},
		MAC:          net.HardwareAddr{0x00, 0x24, 0x6D, 0x01, 0x02, 0x03},
		FriendlyName: "fake gateway",
	}
}

func families() *knxnet.SupportedFamilies {
	return &knxnet.SupportedFamilies{Families: []knxnet.ServiceFamily{
		{ID: knxnet.FamilyCore, Version: 1},
		{ID: knxnet.FamilyTunneling, Version: 1},
	}}
}

func target(h knxnet.HPAI, from *net.UDPAddr) *net.UDPAddr {
	if h.IsRouteBack() {
		return from
	}
	return h.UDPAddr()
}

func (g *fakeGateway) serve() {
	buf := make([]byte, 1500)
	for {
		n, from, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		f, err := knxnet.Decode(slices.Clone(buf[:n]))
		if err != nil {
			continue
		}
		g.mu.Lock()
		g.received = append(g.received, f)
		g.mu.Unlock()
		g.respond(f, from)
	}
}

func (g *fakeGateway) respond(f knxnet.Frame, from *net.UDPAddr) {
	switch b := f.Body.(type) {
	case *knxnet.SearchRequest:
		g.send(&knxnet.SearchResponse{Control: g.hpai(), Device: g.device(), Families: families()}, target(b.Discovery, from))
	case *knxnet.DescriptionRequest:
		g.send(&knxnet.DescriptionResponse{Device: g.device(), Families: families()}, target(b.Control, from))
	case *knxnet.ConnectRequest:
		ctrl := target(b.Control, from)
		g.mu.Lock()
		g.clientControl = ctrl
		g.clientData = target(b.Data, from)
		g.mu.Unlock()
		if g.connectStatus != knxnet.StatusNoError {
			g.send(&knxnet.ConnectResponse{Status: g.connectStatus}, ctrl)
			return
		}
		g.send(&knxnet.ConnectResponse{
			ChannelID: g.channelID,
			Data:      g.hpai(),
			CRD:       knxnet.CRD{ConnectionType: knxnet.ConnectionTypeTunnel, Address: knxnet.NewIndividualAddress(1, 1, 250)},
		}, ctrl)
	case *knxnet.ConnectionStateRequest:
		if g.answerHeartbeat.Load() {
			g.send(&knxnet.ConnectionStateResponse{ChannelID: b.ChannelID}, target(b.Control, from))
		}
	case *knxnet.DisconnectRequest:
		g.send(&knxnet.DisconnectResponse{ChannelID: b.ChannelID}, target(b.Control, from))
	case *knxnet.TunnelingRequest:
		if g.dropTunneling.Load() > 0 {
			g.dropTunneling.Add(-1)
			return
		}
		if g.ackTunneling.Load() {
			g.send(&knxnet.TunnelingAck{ChannelID: b.ChannelID, Sequence: b.Sequence}, g.data())
		}
	}
}

func (g *fakeGateway) send(body knxnet.Body, to *net.UDPAddr) {
	if _, err := g.conn.WriteToUDP(knxnet.Encode(body), to); err != nil {
		g.t.Logf("fake gateway send %s: %v", knxnet.FormatServiceType(body.Service()), err)
	}
}

func (g *fakeGateway) sendRaw(b []byte, to *net.UDPAddr) {
	_, err := g.conn.WriteToUDP(b, to)
	require.NoError(g.t, err)
}

func (g *fakeGateway) control() *net.UDPAddr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clientControl
}

func (g *fakeGateway) data() *net.UDPAddr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clientData
}

// frames returns the received frames of one service type
func (g *fakeGateway) frames(st knxnet.ServiceType) []knxnet.Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []knxnet.Frame
	for _, f := range g.received {
		if f.Service() == st {
			out = append(out, f)
		}
	}
	return out
}

func (g *fakeGateway) count(st knxnet.ServiceType) int {
	return len(g.frames(st))
}

// testConfig targets g with short timeouts and no heartbeat traffic
func testConfig(g *fakeGateway) Config {
	cfg := DefaultConfig()
	cfg.Remote = g.addr().String()
	cfg.LocalAddress = "127.0.0.1"
	cfg.SocketTimeout = 100 * time.Millisecond
	cfg.DescriptionTimeout = 300 * time.Millisecond
	cfg.ConnectTimeout = 300 * time.Millisecond
	cfg.ConnectionStateTimeout = 300 * time.Millisecond
	cfg.DisconnectTimeout = 200 * time.Millisecond
	cfg.TunnelingTimeout = 200 * time.Millisecond
	cfg.SearchTimeout = 300 * time.Millisecond
	cfg.HeartbeatInterval = time.Hour
	cfg.DescriptionRetries = 1
	cfg.DisconnectRetries = 1
	cfg.DiscoveryAttempts = 1
	return cfg
}
