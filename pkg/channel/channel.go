// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package channel manages the UDP sockets of a client session.
package channel

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/Thermoquad/knxstat/internal/logger"
)

var log = logger.Logger("channel")

var (
	// ErrReceiveTimeout is returned by Receive when no datagram arrived
	// within the socket timeout.
	ErrReceiveTimeout = errors.New("channel: receive timeout")
	// ErrChannelClosed is returned after Close.
	ErrChannelClosed = errors.New("channel: closed")
)

// MaxDatagram bounds receive buffers
const MaxDatagram = 1500

// Role is the purpose of a channel within a session
type Role int

const (
	RoleControl Role = iota
	RoleData
	RoleDescription
	RoleMulticast
)

func (r Role) String() string {
	switch r {
	case RoleControl:
		return "control"
	case RoleData:
		return "data"
	case RoleDescription:
		return "description"
	case RoleMulticast:
		return "multicast"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ErrorKind classifies communication failures
type ErrorKind int

const (
	ChannelOpenFailed ErrorKind = iota
)

// CommunicationError wraps socket setup failures.
type CommunicationError struct {
	Kind ErrorKind
	Role Role
	Err  error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("open %s channel: %v", e.Role, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// Options configures a channel.
type Options struct {
	// LocalIP binds to one address; nil binds to all
	LocalIP net.IP
	// LocalPort 0 picks an ephemeral port
	LocalPort int
	// Timeout bounds each Receive and Send
	Timeout time.Duration
	// Remote pre-connects the socket. Ignored for multicast channels.
	Remote *net.UDPAddr

	// Group is joined by multicast channels when it is a multicast address
	Group     *net.UDPAddr
	Interface *net.Interface
	TTL       int
	Loopback  bool
}

// Channel is one UDP socket. Sends are serialized; Receive is meant for a
// single reader loop.
type Channel struct {
	role    Role
	conn    *net.UDPConn
	remote  *net.UDPAddr
	timeout time.Duration

	sendMu sync.Mutex
	closed atomic.Bool
}

// Open binds a socket for role
func Open(role Role, opts Options) (*Channel, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	laddr := &net.UDPAddr{IP: opts.LocalIP, Port: opts.LocalPort}

	fail := func(err error) (*Channel, error) {
		return nil, &CommunicationError{Kind: ChannelOpenFailed, Role: role, Err: err}
	}

	var (
		conn   *net.UDPConn
		remote *net.UDPAddr
		err    error
	)
	switch {
	case role == RoleMulticast:
		conn, err = net.ListenUDP("udp4", laddr)
		if err != nil {
			return fail(err)
		}
		if err := configureMulticast(conn, opts); err != nil {
			conn.Close()
			return fail(err)
		}
	case opts.Remote != nil:
		conn, err = net.DialUDP("udp4", laddr, opts.Remote)
		if err != nil {
			return fail(err)
		}
		remote = opts.Remote
	default:
		conn, err = net.ListenUDP("udp4", laddr)
		if err != nil {
			return fail(err)
		}
	}

	c := &Channel{role: role, conn: conn, remote: remote, timeout: opts.Timeout}
	log.Debugw("channel opened", "role", role, "local", c.LocalAddr(), "remote", remote)
	return c, nil
}

func configureMulticast(conn *net.UDPConn, opts Options) error {
	pc := ipv4.NewPacketConn(conn)

	if opts.Interface != nil {
		if err := pc.SetMulticastInterface(opts.Interface); err != nil {
			return fmt.Errorf("set multicast interface: %w", err)
		}
	}
	if opts.TTL > 0 {
		if err := pc.SetMulticastTTL(opts.TTL); err != nil {
			return fmt.Errorf("set multicast ttl: %w", err)
		}
	}
	if err := pc.SetMulticastLoopback(opts.Loopback); err != nil {
		return fmt.Errorf("set multicast loopback: %w", err)
	}

	if opts.Group == nil || !opts.Group.IP.IsMulticast() {
		return nil
	}
	if err := pc.JoinGroup(opts.Interface, &net.UDPAddr{IP: opts.Group.IP}); err != nil {
		// sending still works; inbound routing traffic will be missing
		log.Warnw("multicast join failed", "group", opts.Group, "err", err)
	}
	return nil
}

// Role returns the channel's role
func (c *Channel) Role() Role { return c.role }

// Connected reports whether the socket is pre-connected to a remote
func (c *Channel) Connected() bool { return c.remote != nil }

// Remote returns the pre-connected remote, or nil
func (c *Channel) Remote() *net.UDPAddr { return c.remote }

// LocalAddr returns the bound socket address
func (c *Channel) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Send writes one datagram. Connected channels ignore to.
func (c *Channel) Send(b []byte, to *net.UDPAddr) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("%s send: %w", c.role, err)
	}

	var (
		n   int
		err error
	)
	if c.remote != nil {
		n, err = c.conn.Write(b)
	} else {
		if to == nil {
			return fmt.Errorf("%s send: no destination", c.role)
		}
		n, err = c.conn.WriteToUDP(b, to)
	}
	if err != nil {
		if c.closed.Load() {
			return ErrChannelClosed
		}
		return fmt.Errorf("%s send: %w", c.role, err)
	}
	if n != len(b) {
		return fmt.Errorf("%s send: short write %d of %d bytes", c.role, n, len(b))
	}
	return nil
}

// Receive reads one datagram into buf, waiting at most the socket timeout.
func (c *Channel) Receive(buf []byte) (int, *net.UDPAddr, error) {
	if c.closed.Load() {
		return 0, nil, ErrChannelClosed
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, nil, fmt.Errorf("%s receive: %w", c.role, err)
	}

	n, from, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if c.closed.Load() || errors.Is(err, net.ErrClosed) {
			return 0, nil, ErrChannelClosed
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, nil, ErrReceiveTimeout
		}
		return 0, nil, fmt.Errorf("%s receive: %w", c.role, err)
	}
	return n, from, nil
}

// Close releases the socket. Repeated calls return nil.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	log.Debugw("channel closed", "role", c.role)
	return c.conn.Close()
}
