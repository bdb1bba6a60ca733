// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// heartbeat probes the gateway on every tick and gives up after limit
// consecutive failures.
type heartbeat struct {
	clock    clock.Clock
	interval time.Duration
	limit    int
	probe    func(ctx context.Context) error
}

// run blocks until ctx is done (nil) or the miss limit is reached
// (ErrHeartbeatExhausted).
func (h *heartbeat) run(ctx context.Context) error {
	ticker := h.clock.Ticker(h.interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := h.probe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			misses++
			log.Warnw("heartbeat missed", "misses", misses, "limit", h.limit, "err", err)
			if misses >= h.limit {
				return ErrHeartbeatExhausted
			}
			continue
		}
		if misses > 0 {
			log.Infow("heartbeat recovered", "after", misses)
		}
		misses = 0
	}
}
