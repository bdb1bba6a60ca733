// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Thermoquad/knxstat/pkg/channel"
	"github.com/Thermoquad/knxstat/pkg/event"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

func (c *Client) startRouting() error {
	ch, err := c.openMulticast(c.cfg.MulticastPort)
	if err != nil {
		return err
	}
	c.receive(ch)
	if !c.transition(StateConnected) {
		return event.ErrClientClosed
	}
	return nil
}

func (c *Client) startTunneling(ctx context.Context) error {
	if c.remote == nil {
		if !c.transition(StateDiscovering) {
			return event.ErrClientClosed
		}
		resp, err := c.discover(ctx)
		if err != nil {
			return err
		}
		c.remote = resp.Control.UDPAddr()
		log.Infow("gateway discovered", "control", resp.Control, "name", resp.Device.FriendlyName)
	}

	if !c.transition(StateDescribing) {
		return event.ErrClientClosed
	}
	if c.localIP == nil {
		c.localIP = outboundIP(c.remote)
	}
	desc, err := c.openDescription()
	if err != nil {
		return err
	}
	c.receive(desc)
	resp, err := c.describe(ctx, desc)
	if cerr := c.channels.CloseRole(channel.RoleDescription); cerr != nil {
		log.Debugw("closing description channel", "err", cerr)
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.description = resp
	c.mu.Unlock()
	if !resp.Families.Supports(knxnet.FamilyTunneling) {
		log.Warnw("gateway does not advertise tunneling", "name", resp.Device.FriendlyName)
	}

	if !c.transition(StateConnecting) {
		return event.ErrClientClosed
	}
	if err := c.connect(ctx); err != nil {
		return err
	}
	if !c.transition(StateConnected) {
		return event.ErrClientClosed
	}

	hb := &heartbeat{
		clock:    c.clock,
		interval: c.cfg.HeartbeatInterval,
		limit:    c.cfg.HeartbeatMisses,
		probe:    c.probe,
	}
	if c.loopCtx.Err() == nil {
		c.loops.Go(func() error {
			if err := hb.run(c.loopCtx); err != nil {
				c.sessionFailed(err)
			}
			return nil
		})
	}
	return nil
}

func (c *Client) openMulticast(port int) (*channel.Channel, error) {
	return c.channels.OpenMulticast(channel.Options{
		LocalIP:   c.bindIP,
		LocalPort: port,
		Timeout:   c.cfg.SocketTimeout,
		Group:     c.groupAddr,
		TTL:       c.cfg.MulticastTTL,
		Loopback:  c.cfg.MulticastLoopback,
	})
}

func (c *Client) openDescription() (*channel.Channel, error) {
	return c.channels.OpenDescription(channel.Options{
		LocalIP:   c.bindIP,
		LocalPort: c.cfg.DescriptionPort,
		Timeout:   c.cfg.SocketTimeout,
		Remote:    c.remote,
	})
}

// discover searches until a gateway advertising tunneling answers
func (c *Client) discover(ctx context.Context) (*knxnet.SearchResponse, error) {
	ch, err := c.openMulticast(0)
	if err != nil {
		return nil, err
	}
	defer c.channels.CloseRole(channel.RoleMulticast)
	c.receive(ch)

	if c.localIP == nil && c.groupAddr != nil {
		c.localIP = outboundIP(c.groupAddr)
	}
	req := &knxnet.SearchRequest{Discovery: c.endpoint(ch)}
	tunneling := func(r *knxnet.SearchResponse) bool {
		return r.Families.Supports(knxnet.FamilyTunneling)
	}

	for attempt := 1; attempt <= c.cfg.DiscoveryAttempts; attempt++ {
		c.pool.Search.Add(req)
		if err := c.Send(req); err != nil {
			return nil, err
		}
		wctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
		resp, err := c.pool.Search.WaitFor(wctx, tunneling)
		cancel()
		if err == nil {
			return resp, nil
		}
		if !isTimeout(ctx, err) {
			return nil, err
		}
		log.Debugw("search timed out", "attempt", attempt, "responses", c.pool.Search.Len())
	}
	return nil, ErrDiscoveryTimeout
}

// describe sends description requests until one is answered
func (c *Client) describe(ctx context.Context, ch *channel.Channel) (*knxnet.DescriptionResponse, error) {
	req := &knxnet.DescriptionRequest{Control: c.endpoint(ch)}
	for attempt := 0; attempt <= c.cfg.DescriptionRetries; attempt++ {
		resp, err := exchange(ctx, c, c.pool.Description, req, c.cfg.DescriptionTimeout)
		if err == nil {
			return resp, nil
		}
		if !isTimeout(ctx, err) {
			return nil, err
		}
		log.Debugw("description timed out", "attempt", attempt+1, "remote", c.remote)
	}
	return nil, ErrDescriptionTimeout
}

// connect opens the control and data channels and requests a tunnel
func (c *Client) connect(ctx context.Context) error {
	ctrl, err := c.channels.OpenControl(channel.Options{
		LocalIP:   c.bindIP,
		LocalPort: c.cfg.ControlPort,
		Timeout:   c.cfg.SocketTimeout,
		Remote:    c.remote,
	})
	if err != nil {
		return err
	}
	c.receive(ctrl)

	data := ctrl
	if c.cfg.NAT {
		// behind NAT the gateway answers everything to the control socket
		c.channels.ShareControlForData()
	} else {
		data, err = c.channels.OpenData(channel.Options{
			LocalIP:   c.bindIP,
			LocalPort: c.cfg.DataPort,
			Timeout:   c.cfg.SocketTimeout,
		})
		if err != nil {
			return err
		}
		c.receive(data)
	}

	req := &knxnet.ConnectRequest{
		Control: c.endpoint(ctrl),
		Data:    c.endpoint(data),
		CRI:     knxnet.TunnelCRI,
	}
	resp, err := exchange(ctx, c, c.pool.Connect, req, c.cfg.ConnectTimeout)
	if err != nil {
		if isTimeout(ctx, err) {
			return &ConnectError{Timeout: true}
		}
		return err
	}
	if resp.Status != knxnet.StatusNoError {
		return &ConnectError{Status: resp.Status}
	}

	endpoint := resp.Data.UDPAddr()
	if c.cfg.NAT || resp.Data.IsRouteBack() {
		endpoint = c.remote
	}
	c.channelID.Store(uint32(resp.ChannelID))
	c.mu.Lock()
	c.dataEndpoint = endpoint
	c.mu.Unlock()
	c.seq.Reset()
	c.inbound.Reset()

	log.Infow("tunnel connected", "channel", resp.ChannelID, "address", resp.CRD.Address, "data", endpoint)
	return nil
}

// probe performs one connection state round trip
func (c *Client) probe(ctx context.Context) error {
	ctrl := c.channels.Get(channel.RoleControl)
	if ctrl == nil {
		return ErrNotRunning
	}
	req := &knxnet.ConnectionStateRequest{ChannelID: c.ChannelID(), Control: c.endpoint(ctrl)}
	resp, err := exchange(ctx, c, c.pool.ConnectionState, req, c.cfg.ConnectionStateTimeout)
	if err != nil {
		return err
	}
	if resp.Status != knxnet.StatusNoError {
		return fmt.Errorf("connection state: %s", knxnet.FormatStatus(resp.Status))
	}
	return nil
}

// disconnect asks the gateway to release the tunnel, retrying a few times
// before giving up.
func (c *Client) disconnect() {
	ctrl := c.channels.Get(channel.RoleControl)
	if ctrl == nil {
		return
	}
	req := &knxnet.DisconnectRequest{ChannelID: c.ChannelID(), Control: c.endpoint(ctrl)}
	attempts := max(1, c.cfg.DisconnectRetries)
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := exchange(context.Background(), c, c.pool.Disconnect, req, c.cfg.DisconnectTimeout)
		if err == nil {
			log.Debugw("gateway confirmed disconnect", "status", knxnet.FormatStatus(resp.Status))
			return
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			log.Debugw("disconnect failed", "err", err)
			return
		}
	}
	log.Warnw("gateway did not confirm disconnect", "attempts", attempts)
}

// remoteDisconnect answers a gateway-initiated disconnect and closes
func (c *Client) remoteDisconnect(req *knxnet.DisconnectRequest) {
	if !c.transition(StateDisconnecting) {
		return
	}
	log.Infow("gateway closed the tunnel", "channel", req.ChannelID)
	resp := &knxnet.DisconnectResponse{ChannelID: req.ChannelID, Status: knxnet.StatusNoError}
	if err := c.Send(resp); err != nil {
		log.Debugw("disconnect response not sent", "err", err)
	}
	go c.teardown()
}

// endpoint returns the HPAI advertised for a local socket
func (c *Client) endpoint(ch *channel.Channel) knxnet.HPAI {
	if c.cfg.NAT {
		return knxnet.RouteBack
	}
	addr := *ch.LocalAddr()
	if (addr.IP == nil || addr.IP.IsUnspecified()) && c.localIP != nil {
		addr.IP = c.localIP
	}
	return knxnet.HPAIFromUDPAddr(&addr)
}

// outboundIP returns the local address the kernel routes to remote from
func outboundIP(remote *net.UDPAddr) net.IP {
	conn, err := net.DialUDP("udp4", nil, remote)
	if err != nil {
		log.Debugw("no route to remote", "remote", remote, "err", err)
		return nil
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP
}

// exchange registers req in slot, sends it and waits up to timeout
func exchange[Req, Resp knxnet.Body](ctx context.Context, c *Client, slot *event.Slot[Req, Resp], req Req, timeout time.Duration) (Resp, error) {
	slot.Add(req)
	if err := c.Send(req); err != nil {
		var zero Resp
		return zero, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return slot.Wait(ctx)
}

// isTimeout reports a per-exchange deadline while the caller's ctx is
// still live
func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}
