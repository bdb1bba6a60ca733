// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/Thermoquad/knxstat/pkg/channel"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// Send encodes body and writes it to the channel serving its service type.
func (c *Client) Send(body knxnet.Body) error {
	role, to := c.route(body.Service())
	ch := c.channels.Get(role)
	if ch == nil {
		return fmt.Errorf("send %s: no %s channel: %w", knxnet.FormatServiceType(body.Service()), role, ErrNotRunning)
	}

	raw := knxnet.Encode(body)
	if err := ch.Send(raw, to); err != nil {
		log.Warnw("send failed", "service", knxnet.FormatServiceType(body.Service()), "channel", role, "err", err)
		c.stats.OnError(err)
		return err
	}
	c.stats.OnSent(body.Service(), len(raw))
	c.plugins.NotifyOutgoing(knxnet.NewFrame(body))
	return nil
}

// route picks the outbound channel and destination for a service
func (c *Client) route(service knxnet.ServiceType) (channel.Role, *net.UDPAddr) {
	switch service {
	case knxnet.ServiceSearchRequest, knxnet.ServiceRoutingIndication,
		knxnet.ServiceRoutingLostMessage, knxnet.ServiceRoutingBusy:
		return channel.RoleMulticast, c.groupAddr
	case knxnet.ServiceDescriptionRequest:
		return channel.RoleDescription, c.remote
	case knxnet.ServiceTunnelingRequest, knxnet.ServiceTunnelingAck:
		return channel.RoleData, c.gatewayDataEndpoint()
	default:
		return channel.RoleControl, c.remote
	}
}

// inboundRole returns the channel role a received service belongs to
func inboundRole(service knxnet.ServiceType) (channel.Role, bool) {
	switch service {
	case knxnet.ServiceConnectResponse, knxnet.ServiceConnectionStateResponse,
		knxnet.ServiceDisconnectRequest, knxnet.ServiceDisconnectResponse:
		return channel.RoleControl, true
	case knxnet.ServiceTunnelingRequest, knxnet.ServiceTunnelingAck:
		return channel.RoleData, true
	case knxnet.ServiceDescriptionResponse:
		return channel.RoleDescription, true
	case knxnet.ServiceSearchResponse, knxnet.ServiceRoutingIndication,
		knxnet.ServiceRoutingLostMessage, knxnet.ServiceRoutingBusy:
		return channel.RoleMulticast, true
	}
	return 0, false
}

// receive runs the receiver loop of ch until the channel closes
func (c *Client) receive(ch *channel.Channel) {
	c.loops.Go(func() error {
		buf := make([]byte, channel.MaxDatagram)
		for {
			n, from, err := ch.Receive(buf)
			if err != nil {
				switch {
				case errors.Is(err, channel.ErrChannelClosed):
					return nil
				case errors.Is(err, channel.ErrReceiveTimeout):
				default:
					log.Warnw("receive failed", "channel", ch.Role(), "err", err)
					c.stats.OnError(err)
				}
				if c.loopCtx.Err() != nil {
					return nil
				}
				continue
			}
			c.handle(ch, slices.Clone(buf[:n]), from)
		}
	})
}

// handle decodes one datagram and dispatches it. Malformed frames are
// dropped; the loop keeps running.
func (c *Client) handle(ch *channel.Channel, data []byte, from *net.UDPAddr) {
	frame, err := knxnet.Decode(data)
	if err != nil {
		log.Warnw("dropping frame", "channel", ch.Role(), "from", from, "err", err)
		c.stats.OnError(err)
		return
	}
	c.stats.OnReceived(frame.Service(), len(data))

	role, ok := inboundRole(frame.Service())
	if !ok || !slices.Contains(c.channels.Roles(ch), role) {
		log.Debugw("ignoring frame on wrong channel",
			"service", knxnet.FormatServiceType(frame.Service()), "channel", ch.Role(), "from", from)
		return
	}

	c.dispatch(frame)
	c.plugins.NotifyIncoming(frame)
}

func (c *Client) dispatch(frame knxnet.Frame) {
	switch b := frame.Body.(type) {
	case *knxnet.SearchResponse:
		c.pool.Search.Resolve(b)
	case *knxnet.DescriptionResponse:
		c.resolved(frame, c.pool.Description.ResolvePending(b))
	case *knxnet.ConnectResponse:
		c.resolved(frame, c.pool.Connect.ResolvePending(b))
	case *knxnet.ConnectionStateResponse:
		if c.ownChannel(frame, b.ChannelID) {
			c.resolved(frame, c.pool.ConnectionState.ResolvePending(b))
		}
	case *knxnet.DisconnectResponse:
		if c.ownChannel(frame, b.ChannelID) {
			c.resolved(frame, c.pool.Disconnect.ResolvePending(b))
		}
	case *knxnet.DisconnectRequest:
		if c.ownChannel(frame, b.ChannelID) {
			c.remoteDisconnect(b)
		}
	case *knxnet.TunnelingAck:
		if c.ownChannel(frame, b.ChannelID) {
			c.pool.ResolveAck(b)
		}
	case *knxnet.TunnelingRequest:
		if c.ownChannel(frame, b.ChannelID) {
			c.tunnelingRequest(b)
		}
	case *knxnet.RoutingIndication:
		c.updateStatus(b.CEMI)
	case *knxnet.RoutingLostMessage:
		log.Warnw("router lost messages", "lost", b.LostMessages, "state", b.DeviceState)
	case *knxnet.RoutingBusy:
		log.Warnw("router busy", "wait", b.WaitTime, "state", b.DeviceState)
		c.flow.pause(time.Duration(b.WaitTime) * time.Millisecond)
	}
}

func (c *Client) resolved(frame knxnet.Frame, ok bool) {
	if !ok {
		log.Debugw("dropping unsolicited response", "service", knxnet.FormatServiceType(frame.Service()))
	}
}

func (c *Client) ownChannel(frame knxnet.Frame, id uint8) bool {
	if c.State() != StateConnected && c.State() != StateDisconnecting {
		log.Debugw("ignoring frame outside a session", "service", knxnet.FormatServiceType(frame.Service()), "channel", id)
		return false
	}
	if id != c.ChannelID() {
		log.Debugw("ignoring frame for foreign channel", "service", knxnet.FormatServiceType(frame.Service()), "channel", id)
		return false
	}
	return true
}

// tunnelingRequest acknowledges and applies an inbound tunneling request.
// A repeat of the previous sequence is acknowledged again but not applied;
// anything else out of order is dropped unacknowledged so the gateway
// repeats it.
func (c *Client) tunnelingRequest(req *knxnet.TunnelingRequest) {
	expected := c.inbound.Peek()
	switch req.Sequence {
	case expected:
		c.ack(req)
		c.inbound.Next()
		c.updateStatus(req.CEMI)
	case expected - 1:
		log.Debugw("duplicate tunneling request", "seq", req.Sequence)
		c.ack(req)
	default:
		log.Warnw("out of order tunneling request dropped", "seq", req.Sequence, "expected", expected)
	}
}

func (c *Client) ack(req *knxnet.TunnelingRequest) {
	ack := &knxnet.TunnelingAck{ChannelID: req.ChannelID, Sequence: req.Sequence, Status: knxnet.StatusNoError}
	if err := c.Send(ack); err != nil {
		log.Debugw("tunneling ack not sent", "seq", req.Sequence, "err", err)
	}
}

// updateStatus caches group write and response values
func (c *Client) updateStatus(cemi *knxnet.CEMI) {
	if cemi.APCI != knxnet.GroupValueWrite && cemi.APCI != knxnet.GroupValueResponse {
		return
	}
	dst, ok := cemi.GroupDestination()
	if !ok {
		return
	}
	c.cache.UpdateStatus(dst, cemi.Data, cemi.Source, cemi.APCI)
}
