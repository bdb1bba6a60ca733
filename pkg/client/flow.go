// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// routingFlow paces routing indications. Routers accept a bounded rate and
// ask senders to pause with ROUTING_BUSY.
type routingFlow struct {
	clock   clock.Clock
	limiter *rate.Limiter

	mu        sync.Mutex
	busyUntil time.Time
}

func newRoutingFlow(c clock.Clock, perSecond int) *routingFlow {
	return &routingFlow{clock: c, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// pause holds back sends for wait. Overlapping pauses keep the later end.
func (f *routingFlow) pause(wait time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if until := f.clock.Now().Add(wait); until.After(f.busyUntil) {
		f.busyUntil = until
	}
}

// wait blocks until the next indication may be sent
func (f *routingFlow) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.busyUntil.Sub(f.clock.Now())
	f.mu.Unlock()

	if d > 0 {
		t := f.clock.Timer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.limiter.Wait(ctx)
}
