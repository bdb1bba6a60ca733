// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// SendRequest sends a request that expects a response and waits up to
// timeout for it. Search requests return the first response.
func (c *Client) SendRequest(ctx context.Context, req knxnet.Body, timeout time.Duration) (knxnet.Body, error) {
	switch r := req.(type) {
	case *knxnet.DescriptionRequest:
		resp, err := exchange(ctx, c, c.pool.Description, r, timeout)
		return asBody(resp, err)
	case *knxnet.ConnectRequest:
		resp, err := exchange(ctx, c, c.pool.Connect, r, timeout)
		return asBody(resp, err)
	case *knxnet.ConnectionStateRequest:
		resp, err := exchange(ctx, c, c.pool.ConnectionState, r, timeout)
		return asBody(resp, err)
	case *knxnet.DisconnectRequest:
		resp, err := exchange(ctx, c, c.pool.Disconnect, r, timeout)
		return asBody(resp, err)
	case *knxnet.TunnelingRequest:
		resp, err := exchange(ctx, c, c.pool.ForTunnelingRequest(r), r, timeout)
		return asBody(resp, err)
	case *knxnet.SearchRequest:
		c.pool.Search.Add(r)
		if err := c.Send(r); err != nil {
			return nil, err
		}
		wctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := c.pool.Search.WaitFor(wctx, nil)
		return asBody(resp, err)
	default:
		return nil, fmt.Errorf("%s has no response", knxnet.FormatServiceType(req.Service()))
	}
}

func asBody[Resp knxnet.Body](resp Resp, err error) (knxnet.Body, error) {
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ReadRequest asks the bus for the value of addr. Over a tunnel it reports
// whether the gateway accepted the request; the answer lands in the status
// cache. Over routing it always reports true.
func (c *Client) ReadRequest(ctx context.Context, addr knxnet.GroupAddress) bool {
	return c.groupRequest(ctx, addr, knxnet.GroupValueRead, nil)
}

// WriteRequest writes payload to addr. Over a tunnel it reports whether the
// gateway acknowledged the request. Over routing it always reports true.
func (c *Client) WriteRequest(ctx context.Context, addr knxnet.GroupAddress, payload []byte) bool {
	return c.groupRequest(ctx, addr, knxnet.GroupValueWrite, payload)
}

func (c *Client) groupRequest(ctx context.Context, addr knxnet.GroupAddress, apci knxnet.APCI, payload []byte) bool {
	if !c.IsRunning() {
		log.Debugw("group request refused", "addr", addr, "err", ErrNotRunning)
		return false
	}
	if apci != knxnet.GroupValueRead && len(payload) == 0 {
		log.Warnw("group request refused", "addr", addr, "err", ErrEmptyPayload)
		return false
	}

	if c.cfg.Mode == ModeRouting {
		ind := &knxnet.RoutingIndication{CEMI: knxnet.NewGroupFrame(knxnet.LDataInd, c.source, addr, apci, payload)}
		if err := c.flow.wait(ctx); err != nil {
			log.Warnw("routing indication not sent", "addr", addr, "err", err)
			return true
		}
		mark := c.cache.Mark(addr)
		if err := c.Send(ind); err != nil {
			log.Warnw("routing indication not sent", "addr", addr, "err", err)
			return true
		}
		c.cache.SetDirtySince(mark)
		return true
	}

	// source 0.0.0 lets the gateway fill in the tunnel address
	return c.tunnel(ctx, addr, knxnet.NewGroupFrame(knxnet.LDataReq, 0, addr, apci, payload))
}

// tunnel sends cemi under the next sequence number and waits for the ack,
// repeating once with the same sequence on timeout.
func (c *Client) tunnel(ctx context.Context, addr knxnet.GroupAddress, cemi *knxnet.CEMI) bool {
	req := &knxnet.TunnelingRequest{ChannelID: c.ChannelID(), Sequence: c.seq.Next(), CEMI: cemi}
	slot := c.pool.ForTunnelingRequest(req)

	for attempt := 1; attempt <= 2; attempt++ {
		slot.Add(req)
		mark := c.cache.Mark(addr)
		if err := c.Send(req); err != nil {
			if attempt == 1 && c.seq.Rewind(req.Sequence) {
				log.Debugw("sequence returned after failed send", "seq", req.Sequence)
			}
			return false
		}
		c.cache.SetDirtySince(mark)

		wctx, cancel := context.WithTimeout(ctx, c.cfg.TunnelingTimeout)
		ack, err := slot.Wait(wctx)
		cancel()
		if err == nil {
			if ack.Status != knxnet.StatusNoError {
				log.Warnw("tunneling request rejected", "addr", addr, "seq", req.Sequence, "status", knxnet.FormatStatus(ack.Status))
				return false
			}
			return true
		}
		if !isTimeout(ctx, err) {
			log.Debugw("tunneling request abandoned", "addr", addr, "seq", req.Sequence, "err", err)
			return false
		}
		log.Debugw("tunneling ack timed out", "addr", addr, "seq", req.Sequence, "attempt", attempt)
	}
	log.Warnw("tunneling request unacknowledged", "addr", addr, "seq", req.Sequence)
	return false
}

// Ping measures one connection state round trip
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	if !c.IsRunning() {
		return 0, ErrNotRunning
	}
	if c.cfg.Mode == ModeRouting {
		return 0, errors.New("ping needs a tunneling session")
	}
	start := c.clock.Now()
	err := c.probe(ctx)
	return c.clock.Since(start), err
}
