// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package event correlates sent requests with their responses.
//
// Control exchanges (description, connect, connection state, disconnect)
// use one single-response slot each. Discovery uses a multi-response slot.
// Tunneling uses 256 pre-allocated slots indexed by the sequence number
// carried in the frame, each with its own lock.
package event

import (
	"errors"

	"github.com/benbjohnson/clock"

	"github.com/Thermoquad/knxstat/internal/logger"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

var log = logger.Logger("event")

// ErrClientClosed resolves slots that were still pending at shutdown.
var ErrClientClosed = errors.New("client closed")

// TunnelingSlot correlates a tunneling request with its ack
type TunnelingSlot = Slot[*knxnet.TunnelingRequest, *knxnet.TunnelingAck]

// Pool holds every correlation slot of a session.
type Pool struct {
	Description     *Slot[*knxnet.DescriptionRequest, *knxnet.DescriptionResponse]
	Connect         *Slot[*knxnet.ConnectRequest, *knxnet.ConnectResponse]
	ConnectionState *Slot[*knxnet.ConnectionStateRequest, *knxnet.ConnectionStateResponse]
	Disconnect      *Slot[*knxnet.DisconnectRequest, *knxnet.DisconnectResponse]
	Search          *MultiSlot[*knxnet.SearchRequest, *knxnet.SearchResponse]

	tunneling [256]*TunnelingSlot
}

// NewPool allocates all slots. A nil clock uses the wall clock.
func NewPool(c clock.Clock) *Pool {
	if c == nil {
		c = clock.New()
	}
	p := &Pool{
		Description:     NewSlot[*knxnet.DescriptionRequest, *knxnet.DescriptionResponse](c),
		Connect:         NewSlot[*knxnet.ConnectRequest, *knxnet.ConnectResponse](c),
		ConnectionState: NewSlot[*knxnet.ConnectionStateRequest, *knxnet.ConnectionStateResponse](c),
		Disconnect:      NewSlot[*knxnet.DisconnectRequest, *knxnet.DisconnectResponse](c),
		Search:          NewMultiSlot[*knxnet.SearchRequest, *knxnet.SearchResponse](c),
	}
	for i := range p.tunneling {
		p.tunneling[i] = NewSlot[*knxnet.TunnelingRequest, *knxnet.TunnelingAck](c)
	}
	return p
}

// Tunneling returns the slot for a sequence number
func (p *Pool) Tunneling(seq uint8) *TunnelingSlot {
	return p.tunneling[seq]
}

// ForTunnelingRequest returns the slot indexed by the request's sequence
func (p *Pool) ForTunnelingRequest(r *knxnet.TunnelingRequest) *TunnelingSlot {
	return p.tunneling[r.Sequence]
}

// ForTunnelingAck returns the slot indexed by the ack's sequence
func (p *Pool) ForTunnelingAck(a *knxnet.TunnelingAck) *TunnelingSlot {
	return p.tunneling[a.Sequence]
}

// ResolveAck hands an ack to the request awaiting it. Acks without a
// pending request are logged and dropped.
func (p *Pool) ResolveAck(a *knxnet.TunnelingAck) bool {
	if p.ForTunnelingAck(a).ResolvePending(a) {
		return true
	}
	log.Debugw("dropping unmatched tunneling ack", "channel", a.ChannelID, "seq", a.Sequence, "status", knxnet.FormatStatus(a.Status))
	return false
}

// Close resolves every pending slot with err (ErrClientClosed when nil)
func (p *Pool) Close(err error) {
	if err == nil {
		err = ErrClientClosed
	}
	p.Description.Close(err)
	p.Connect.Close(err)
	p.ConnectionState.Close(err)
	p.Disconnect.Close(err)
	p.Search.Close(err)
	for _, s := range p.tunneling {
		s.Close(err)
	}
}
