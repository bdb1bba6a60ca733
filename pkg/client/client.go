// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package client implements a KNXnet/IP session with one gateway, or with
// the routing multicast group.
//
// A tunneling session walks Idle → (Discovering) → Describing → Connecting
// → Connected → Disconnecting → Closed. Every open socket has its own
// receiver goroutine; a heartbeat goroutine probes the gateway while
// connected. Callers block on correlation slots from their own goroutine,
// never from a receiver.
//
// A Client is single-use: once Closed, create a new one to reconnect.
package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/knxstat/internal/logger"
	"github.com/Thermoquad/knxstat/pkg/channel"
	"github.com/Thermoquad/knxstat/pkg/event"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
	"github.com/Thermoquad/knxstat/pkg/plugin"
	"github.com/Thermoquad/knxstat/pkg/stats"
	"github.com/Thermoquad/knxstat/pkg/status"
)

var log = logger.Logger("client")

// Option customizes a Client
type Option func(*Client)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithPlugins registers plugins before OnInitialization fires
func WithPlugins(plugins ...any) Option {
	return func(cl *Client) {
		for _, p := range plugins {
			cl.plugins.Register(p)
		}
	}
}

// Client is one KNXnet/IP session.
type Client struct {
	cfg   Config
	clock clock.Clock

	remote    *net.UDPAddr // gateway control endpoint
	groupAddr *net.UDPAddr
	source    knxnet.IndividualAddress
	bindIP    net.IP
	localIP   net.IP // advertised in endpoints when sockets bind to all interfaces

	channels *channel.Manager
	pool     *event.Pool
	seq      event.SequenceCounter
	inbound  event.SequenceCounter
	cache    *status.Cache
	stats    *stats.Collector
	plugins  *plugin.Registry
	flow     *routingFlow

	stateMu      sync.Mutex
	state        State
	onTransition func(from, to State)

	started   atomic.Bool
	channelID atomic.Uint32

	mu           sync.Mutex
	dataEndpoint *net.UDPAddr
	description  *knxnet.DescriptionResponse

	ctx     context.Context
	cancel  context.CancelFunc
	loops   *errgroup.Group
	loopCtx context.Context

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

var _ plugin.Client = (*Client)(nil)

// New validates cfg and creates an idle client
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		clock:    clock.New(),
		channels: channel.NewManager(),
		plugins:  plugin.NewRegistry(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.pool = event.NewPool(c.clock)
	c.cache = status.NewCache(c.clock)
	c.stats = stats.NewCollector(c.clock)
	c.flow = newRoutingFlow(c.clock, cfg.RoutingRate)

	var err error
	if cfg.Remote != "" {
		if c.remote, err = resolveUDP(cfg.Remote, knxnet.DefaultPort); err != nil {
			return nil, err
		}
	}
	if cfg.MulticastAddress != "" {
		if c.groupAddr, err = resolveUDP(cfg.MulticastAddress, knxnet.DefaultPort); err != nil {
			return nil, err
		}
	}
	if c.source, err = knxnet.ParseIndividualAddress(cfg.IndividualAddress); err != nil {
		return nil, err
	}
	if cfg.LocalAddress != "" {
		c.bindIP = net.ParseIP(cfg.LocalAddress).To4()
		c.localIP = c.bindIP
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.loops, c.loopCtx = errgroup.WithContext(c.ctx)

	c.plugins.NotifyInitialization(c)
	return c, nil
}

// Start establishes the session. ctx bounds the handshake only.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if c.State() != StateIdle {
		return event.ErrClientClosed
	}

	var err error
	if c.cfg.Mode == ModeRouting {
		err = c.startRouting()
	} else {
		err = c.startTunneling(ctx)
	}
	if err != nil {
		if c.State() == StateClosed {
			// Close won the race; the socket opened late was refused
			return err
		}
		log.Errorw("start failed", "mode", c.cfg.Mode, "err", err)
		c.plugins.NotifyError(err)
		c.setErr(err)
		c.teardown()
		return err
	}

	log.Infow("session established", "mode", c.cfg.Mode, "channel", c.ChannelID())
	c.plugins.NotifyStart()
	return nil
}

// Close ends the session. A connected tunnel is disconnected first. It
// returns the error that ended the session, if any.
func (c *Client) Close() error {
	if c.transition(StateDisconnecting) && c.cfg.Mode == ModeTunneling {
		c.disconnect()
	}
	c.teardown()
	<-c.done
	return c.Err()
}

// teardown releases everything exactly once
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.cancel()
		closeErr := c.channels.Close()
		_ = c.loops.Wait()

		c.pool.Close(event.ErrClientClosed)
		c.cache.Close()

		c.errMu.Lock()
		c.err = multierr.Append(c.err, closeErr)
		err := c.err
		c.errMu.Unlock()

		c.transition(StateClosed)
		c.plugins.NotifyShutdown()
		log.Infow("client closed", "err", err)
		close(c.done)
	})
}

// setErr records the cause that ended the session. The first one wins.
func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// sessionFailed ends a connected session from inside one of its own
// goroutines.
func (c *Client) sessionFailed(err error) {
	log.Errorw("session failed", "channel", c.ChannelID(), "err", err)
	c.setErr(err)
	c.plugins.NotifyError(err)

	if c.transition(StateDisconnecting) {
		if ctrl := c.channels.Get(channel.RoleControl); ctrl != nil {
			req := &knxnet.DisconnectRequest{ChannelID: c.ChannelID(), Control: c.endpoint(ctrl)}
			if err := c.Send(req); err != nil {
				log.Debugw("disconnect request not sent", "err", err)
			}
		}
	}
	// teardown waits for the loops, including the caller
	go c.teardown()
}

// IsRunning reports whether the session is connected
func (c *Client) IsRunning() bool {
	return c.State() == StateConnected
}

// Done is closed once the client reached Closed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the session, or nil
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// ChannelID returns the channel id assigned by the gateway
func (c *Client) ChannelID() uint8 {
	return uint8(c.channelID.Load())
}

// Description returns the gateway description, or nil before Describing
// completed.
func (c *Client) Description() *knxnet.DescriptionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.description
}

// Statistics returns a snapshot of the traffic counters
func (c *Client) Statistics() stats.Snapshot {
	return c.stats.Snapshot()
}

// Collector returns the live counters, e.g. for a prometheus exporter
func (c *Client) Collector() *stats.Collector {
	return c.stats
}

// StatusCache returns the read side of the group value cache
func (c *Client) StatusCache() status.Reader {
	return c.cache
}

func (c *Client) gatewayDataEndpoint() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataEndpoint
}
