// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package event

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MultiSlot correlates one request with any number of responses, kept in
// arrival order.
type MultiSlot[Req, Resp any] struct {
	clock clock.Clock

	mu       sync.Mutex
	req      Req
	hasReq   bool
	reqTime  time.Time
	resps    []Resp
	respTime time.Time
	closeErr error
	changed  chan struct{}
}

// NewMultiSlot creates an empty multi-response slot
func NewMultiSlot[Req, Resp any](c clock.Clock) *MultiSlot[Req, Resp] {
	if c == nil {
		c = clock.New()
	}
	return &MultiSlot[Req, Resp]{clock: c, changed: make(chan struct{})}
}

// Add replaces the request and discards collected responses
func (m *MultiSlot[Req, Resp]) Add(req Req) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.req, m.hasReq, m.reqTime = req, true, m.clock.Now()
	m.resps = nil
	m.respTime = time.Time{}
}

// Resolve appends a response
func (m *MultiSlot[Req, Resp]) Resolve(resp Resp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resps = append(m.resps, resp)
	m.respTime = m.clock.Now()
	m.notify()
}

func (m *MultiSlot[Req, Resp]) notify() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Len returns the number of collected responses
func (m *MultiSlot[Req, Resp]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resps)
}

// Response returns the response at position i
func (m *MultiSlot[Req, Resp]) Response(i int) (Resp, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.resps) {
		var zero Resp
		return zero, false
	}
	return m.resps[i], true
}

// First returns the earliest response matching pred
func (m *MultiSlot[Req, Resp]) First(pred func(Resp) bool) (Resp, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.first(pred)
}

func (m *MultiSlot[Req, Resp]) first(pred func(Resp) bool) (Resp, bool) {
	for _, r := range m.resps {
		if pred == nil || pred(r) {
			return r, true
		}
	}
	var zero Resp
	return zero, false
}

// Last returns the most recent response
func (m *MultiSlot[Req, Resp]) Last() (Resp, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resps) == 0 {
		var zero Resp
		return zero, false
	}
	return m.resps[len(m.resps)-1], true
}

// Responses returns a copy of all responses in arrival order
func (m *MultiSlot[Req, Resp]) Responses() []Resp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.resps)
}

// WaitFor blocks until a response matching pred arrives, ctx is done or the
// slot closes. A nil pred matches any response.
func (m *MultiSlot[Req, Resp]) WaitFor(ctx context.Context, pred func(Resp) bool) (Resp, error) {
	var zero Resp
	for {
		m.mu.Lock()
		if r, ok := m.first(pred); ok {
			m.mu.Unlock()
			return r, nil
		}
		if m.closeErr != nil {
			err := m.closeErr
			m.mu.Unlock()
			return zero, err
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close wakes all waiters with err
func (m *MultiSlot[Req, Resp]) Close(err error) {
	if err == nil {
		err = ErrClientClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr == nil {
		m.closeErr = err
	}
	m.notify()
}

// Request returns the stored request
func (m *MultiSlot[Req, Resp]) Request() (Req, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.req, m.hasReq
}

// HasRequest reports whether a request has been stored
func (m *MultiSlot[Req, Resp]) HasRequest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasReq
}

// HasResponse reports whether at least one response has arrived
func (m *MultiSlot[Req, Resp]) HasResponse() bool {
	return m.Len() > 0
}

// RequestTime returns when the request was stored
func (m *MultiSlot[Req, Resp]) RequestTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqTime
}

// ResponseTime returns when the latest response arrived
func (m *MultiSlot[Req, Resp]) ResponseTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.respTime
}
