// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// ============================================================
// SequenceCounter
// ============================================================

func TestSequenceCounter_Wraps(t *testing.T) {
	var s SequenceCounter
	for i := 0; i < 256; i++ {
		require.Equal(t, uint8(i), s.Next())
	}
	assert.Equal(t, uint8(0), s.Next(), "257th send reuses sequence 0")
	assert.Equal(t, uint8(1), s.Peek())

	s.Reset()
	assert.Equal(t, uint8(0), s.Next())
}

func TestSequenceCounter_Rewind(t *testing.T) {
	var s SequenceCounter
	assert.False(t, s.Rewind(255), "nothing handed out yet")

	seq := s.Next()
	assert.True(t, s.Rewind(seq))
	assert.Equal(t, seq, s.Next())

	s.Next()
	assert.False(t, s.Rewind(seq), "counter moved on")
	assert.Equal(t, uint8(2), s.Peek())
}

func TestSequenceCounter_ConcurrentUnique(t *testing.T) {
	var s SequenceCounter
	var mu sync.Mutex
	seen := make(map[uint8]int)

	var wg sync.WaitGroup
	for i := 0; i < 256; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := s.Next()
			mu.Lock()
			seen[n]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 256)
	for seq, count := range seen {
		assert.Equal(t, 1, count, "sequence %d handed out twice", seq)
	}
}

// ============================================================
// Slot
// ============================================================

func TestSlot_AddResolveWait(t *testing.T) {
	mock := clock.NewMock()
	s := NewSlot[string, int](mock)

	assert.False(t, s.HasRequest())
	assert.False(t, s.HasResponse())

	s.Add("req")
	assert.True(t, s.HasRequest())
	assert.True(t, s.Pending())
	assert.Equal(t, mock.Now(), s.RequestTime())

	mock.Add(time.Second)
	go s.Resolve(42)

	got, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.False(t, s.Pending())
	assert.True(t, s.ResponseTime().After(s.RequestTime()))
}

func TestSlot_LastWriteWins(t *testing.T) {
	s := NewSlot[string, int](nil)
	s.Add("a")
	s.Resolve(1)
	s.Resolve(2)

	got, ok := s.Response()
	require.True(t, ok)
	assert.Equal(t, 2, got)

	s.Add("b")
	req, _ := s.Request()
	assert.Equal(t, "b", req)
	assert.False(t, s.HasResponse(), "new request clears the previous response")
}

func TestSlot_ResolvePendingOnlyWhenAwaited(t *testing.T) {
	s := NewSlot[string, int](nil)
	assert.False(t, s.ResolvePending(1))
	assert.False(t, s.HasResponse())

	s.Add("a")
	assert.True(t, s.ResolvePending(1))
	assert.False(t, s.ResolvePending(2), "second ack for the same request is dropped")

	got, _ := s.Response()
	assert.Equal(t, 1, got)
}

func TestSlot_WaitTimeout(t *testing.T) {
	s := NewSlot[string, int](nil)
	s.Add("a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlot_CloseUnblocksWaiter(t *testing.T) {
	s := NewSlot[string, int](nil)
	s.Add("a")

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Wait(context.Background())
		errCh <- err
	}()

	s.Close(nil)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}

	s.Add("b")
	_, err := s.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed, "waits after close fail immediately")
}

// ============================================================
// MultiSlot
// ============================================================

func TestMultiSlot_AppendsInOrder(t *testing.T) {
	m := NewMultiSlot[string, int](nil)
	m.Add("search")
	m.Resolve(1)
	m.Resolve(2)
	m.Resolve(3)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []int{1, 2, 3}, m.Responses())

	v, ok := m.Response(1)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = m.Response(5)
	assert.False(t, ok)

	v, ok = m.First(func(i int) bool { return i > 1 })
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = m.Last()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	m.Add("again")
	assert.Zero(t, m.Len())
}

func TestMultiSlot_WaitFor(t *testing.T) {
	m := NewMultiSlot[string, int](nil)
	m.Add("search")

	go func() {
		m.Resolve(1)
		m.Resolve(10)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := m.WaitFor(ctx, func(i int) bool { return i >= 10 })
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestMultiSlot_CloseUnblocks(t *testing.T) {
	m := NewMultiSlot[string, int](nil)
	cause := errors.New("boom")
	go m.Close(cause)

	_, err := m.WaitFor(context.Background(), nil)
	assert.ErrorIs(t, err, cause)
}

// ============================================================
// Pool
// ============================================================

func TestPool_RequestAndAckShareSlot(t *testing.T) {
	p := NewPool(nil)
	for n := 0; n < 256; n++ {
		req := &knxnet.TunnelingRequest{Sequence: uint8(n)}
		ack := &knxnet.TunnelingAck{Sequence: uint8(n)}
		require.Same(t, p.ForTunnelingRequest(req), p.ForTunnelingAck(ack), "sequence %d", n)
		require.Same(t, p.Tunneling(uint8(n)), p.ForTunnelingAck(ack))
	}
	assert.NotSame(t, p.Tunneling(0), p.Tunneling(1))
}

func TestPool_UnmatchedAckDropped(t *testing.T) {
	p := NewPool(nil)
	req := &knxnet.TunnelingRequest{ChannelID: 1, Sequence: 4}
	p.ForTunnelingRequest(req).Add(req)

	assert.False(t, p.ResolveAck(&knxnet.TunnelingAck{ChannelID: 1, Sequence: 9}))
	assert.False(t, p.Tunneling(9).HasResponse())
	assert.True(t, p.Tunneling(4).Pending(), "other sequences unaffected")

	assert.True(t, p.ResolveAck(&knxnet.TunnelingAck{ChannelID: 1, Sequence: 4}))
	ack, ok := p.Tunneling(4).Response()
	require.True(t, ok)
	assert.Equal(t, uint8(4), ack.Sequence)
}

func TestPool_CloseResolvesPending(t *testing.T) {
	p := NewPool(nil)
	req := &knxnet.TunnelingRequest{Sequence: 77}
	slot := p.ForTunnelingRequest(req)
	slot.Add(req)
	p.Connect.Add(&knxnet.ConnectRequest{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := slot.Wait(context.Background())
		assert.ErrorIs(t, err, ErrClientClosed)
		_, err = p.Connect.Wait(context.Background())
		assert.ErrorIs(t, err, ErrClientClosed)
	}()

	p.Close(nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pending waiters not released")
	}
}
