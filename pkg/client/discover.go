// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"context"
	"errors"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// Discover searches the multicast group and returns every gateway that
// answered, one entry per control endpoint. It returns an empty result
// when nobody answered within the configured attempts.
func Discover(ctx context.Context, cfg Config, opts ...Option) ([]*knxnet.SearchResponse, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if c.groupAddr == nil {
		return nil, errors.New("discover: no multicast address configured")
	}
	ch, err := c.openMulticast(0)
	if err != nil {
		return nil, err
	}
	c.receive(ch)
	if c.localIP == nil {
		c.localIP = outboundIP(c.groupAddr)
	}

	req := &knxnet.SearchRequest{Discovery: c.endpoint(ch)}
	for attempt := 1; attempt <= cfg.DiscoveryAttempts; attempt++ {
		c.pool.Search.Add(req)
		if err := c.Send(req); err != nil {
			return nil, err
		}

		timer := c.clock.Timer(cfg.SearchTimeout)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return unique(c.pool.Search.Responses()), ctx.Err()
		}
		if resps := c.pool.Search.Responses(); len(resps) > 0 {
			return unique(resps), nil
		}
		log.Debugw("search unanswered", "attempt", attempt)
	}
	return nil, nil
}

// Describe asks the configured remote gateway for its description without
// opening a tunnel.
func Describe(ctx context.Context, cfg Config, opts ...Option) (*knxnet.DescriptionResponse, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if c.remote == nil {
		return nil, errors.New("describe: no remote configured")
	}
	if c.localIP == nil {
		c.localIP = outboundIP(c.remote)
	}
	ch, err := c.openDescription()
	if err != nil {
		return nil, err
	}
	c.receive(ch)
	return c.describe(ctx, ch)
}

func unique(resps []*knxnet.SearchResponse) []*knxnet.SearchResponse {
	seen := make(map[knxnet.HPAI]struct{}, len(resps))
	out := make([]*knxnet.SearchResponse, 0, len(resps))
	for _, r := range resps {
		if _, ok := seen[r.Control]; ok {
			continue
		}
		seen[r.Control] = struct{}{}
		out = append(out, r)
	}
	return out
}
