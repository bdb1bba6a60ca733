// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package event

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Slot correlates one request with one response. Later responses overwrite
// earlier ones.
type Slot[Req, Resp any] struct {
	clock clock.Clock

	mu       sync.Mutex
	req      Req
	hasReq   bool
	reqTime  time.Time
	resp     Resp
	hasResp  bool
	respTime time.Time
	pending  bool
	closeErr error

	// done is closed when the current exchange resolves or the slot closes
	done     chan struct{}
	signaled bool
}

// NewSlot creates an empty slot
func NewSlot[Req, Resp any](c clock.Clock) *Slot[Req, Resp] {
	if c == nil {
		c = clock.New()
	}
	return &Slot[Req, Resp]{clock: c, done: make(chan struct{})}
}

// Add stores a request, overwriting any prior one, and clears the previous
// response.
func (s *Slot[Req, Resp]) Add(req Req) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero Resp
	s.req, s.hasReq, s.reqTime = req, true, s.clock.Now()
	s.resp, s.hasResp, s.respTime = zero, false, time.Time{}

	// wake anyone still waiting on the previous exchange
	s.signal()
	s.done = make(chan struct{})
	s.signaled = false

	if s.closeErr != nil {
		s.signal()
		return
	}
	s.pending = true
}

// Resolve stores a response, overwriting any prior one
func (s *Slot[Req, Resp]) Resolve(resp Resp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(resp)
}

// ResolvePending stores the response only if a request is awaiting one.
func (s *Slot[Req, Resp]) ResolvePending(resp Resp) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return false
	}
	s.store(resp)
	return true
}

func (s *Slot[Req, Resp]) store(resp Resp) {
	s.resp, s.hasResp, s.respTime = resp, true, s.clock.Now()
	s.pending = false
	s.signal()
}

func (s *Slot[Req, Resp]) signal() {
	if !s.signaled {
		close(s.done)
		s.signaled = true
	}
}

// Wait blocks until a response is stored, ctx is done or the slot closes.
func (s *Slot[Req, Resp]) Wait(ctx context.Context) (Resp, error) {
	var zero Resp
	for {
		s.mu.Lock()
		if s.hasResp {
			resp := s.resp
			s.mu.Unlock()
			return resp, nil
		}
		if s.closeErr != nil {
			err := s.closeErr
			s.mu.Unlock()
			return zero, err
		}
		done := s.done
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close resolves any waiter with err. Later waits fail immediately.
func (s *Slot[Req, Resp]) Close(err error) {
	if err == nil {
		err = ErrClientClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		s.closeErr = err
	}
	s.pending = false
	s.signal()
}

// Request returns the stored request
func (s *Slot[Req, Resp]) Request() (Req, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req, s.hasReq
}

// Response returns the stored response
func (s *Slot[Req, Resp]) Response() (Resp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.hasResp
}

// HasRequest reports whether a request has been stored
func (s *Slot[Req, Resp]) HasRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasReq
}

// HasResponse reports whether a response has been stored
func (s *Slot[Req, Resp]) HasResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasResp
}

// Pending reports whether a request is awaiting its response
func (s *Slot[Req, Resp]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// RequestTime returns when the request was stored
func (s *Slot[Req, Resp]) RequestTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqTime
}

// ResponseTime returns when the response was stored
func (s *Slot[Req, Resp]) ResponseTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.respTime
}
