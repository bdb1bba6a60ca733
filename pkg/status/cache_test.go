// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package status

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

var (
	lamp   = knxnet.NewGroupAddress(1, 2, 3)
	source = knxnet.NewIndividualAddress(1, 1, 7)
)

func TestCache_UpdateAndGet(t *testing.T) {
	mock := clock.NewMock()
	c := NewCache(mock)

	_, ok := c.GetStatusFor(lamp, false)
	assert.False(t, ok, "absent before first update")

	c.UpdateStatus(lamp, []byte{0x01}, source, knxnet.GroupValueWrite)
	s, ok := c.GetStatusFor(lamp, true)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, s.Payload)
	assert.Equal(t, source, s.Source)
	assert.Equal(t, knxnet.GroupValueWrite, s.APCI)
	assert.Equal(t, mock.Now(), s.Timestamp)
	assert.False(t, s.Dirty)
}

func TestCache_DirtyLifecycle(t *testing.T) {
	c := NewCache(nil)

	c.SetDirty(lamp)
	_, ok := c.GetStatusFor(lamp, false)
	assert.False(t, ok, "SetDirty on unknown address is a no-op")

	c.UpdateStatus(lamp, []byte{0x00}, source, knxnet.GroupValueResponse)
	c.SetDirty(lamp)

	_, ok = c.GetStatusFor(lamp, true)
	assert.False(t, ok, "dirty entry is absent when fresh value required")

	s, ok := c.GetStatusFor(lamp, false)
	require.True(t, ok, "dirty entry still exists")
	assert.True(t, s.Dirty)

	c.UpdateStatus(lamp, []byte{0x01}, source, knxnet.GroupValueResponse)
	s, ok = c.GetStatusFor(lamp, true)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, s.Payload)
}

func TestCache_SetDirtySince(t *testing.T) {
	c := NewCache(clock.NewMock())
	c.UpdateStatus(lamp, []byte{0x00}, source, knxnet.GroupValueResponse)

	// no update since the mark: the entry goes stale
	c.SetDirtySince(c.Mark(lamp))
	_, ok := c.GetStatusFor(lamp, true)
	assert.False(t, ok)

	// an answer that lands before the send completes stays fresh
	mark := c.Mark(lamp)
	c.UpdateStatus(lamp, []byte{0x01}, source, knxnet.GroupValueResponse)
	c.SetDirtySince(mark)
	s, ok := c.GetStatusFor(lamp, true)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, s.Payload)

	// absent at the mark, absent after
	other := knxnet.NewGroupAddress(9, 9, 9)
	c.SetDirtySince(c.Mark(other))
	_, ok = c.GetStatusFor(other, false)
	assert.False(t, ok)
}

func TestCache_PayloadCopied(t *testing.T) {
	c := NewCache(nil)
	payload := []byte{0x10, 0x20}
	c.UpdateStatus(lamp, payload, source, knxnet.GroupValueWrite)
	payload[0] = 0xFF

	s, _ := c.GetStatusFor(lamp, false)
	assert.Equal(t, byte(0x10), s.Payload[0], "write copies the payload")

	s.Payload[1] = 0xFF
	again, _ := c.GetStatusFor(lamp, false)
	assert.Equal(t, byte(0x20), again.Payload[1], "read copies the payload")
}

func TestCache_CopyStatusMapIndependent(t *testing.T) {
	c := NewCache(nil)
	c.UpdateStatus(lamp, []byte{0x01}, source, knxnet.GroupValueWrite)

	snapshot := c.CopyStatusMap()
	snapshot[lamp].Payload[0] = 0x55
	c.UpdateStatus(knxnet.NewGroupAddress(0, 0, 1), []byte{0x02}, source, knxnet.GroupValueWrite)
	c.SetDirty(lamp)

	assert.Len(t, snapshot, 1)
	assert.False(t, snapshot[lamp].Dirty)
	s, _ := c.GetStatusFor(lamp, false)
	assert.Equal(t, []byte{0x01}, s.Payload)
	assert.Equal(t, []knxnet.GroupAddress{knxnet.NewGroupAddress(0, 0, 1), lamp}, c.Addresses())
}

func TestCache_IsUpdated(t *testing.T) {
	c := NewCache(nil)
	c.UpdateStatus(lamp, []byte{0x00}, source, knxnet.GroupValueWrite)
	c.SetDirty(lamp)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.UpdateStatus(lamp, []byte{0x01}, source, knxnet.GroupValueResponse)
	}()

	assert.True(t, c.IsUpdated(context.Background(), lamp, time.Second))
}

func TestCache_IsUpdatedNewEntry(t *testing.T) {
	c := NewCache(nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.UpdateStatus(lamp, []byte{0x01}, source, knxnet.GroupValueResponse)
	}()
	assert.True(t, c.IsUpdated(context.Background(), lamp, time.Second))
}

func TestCache_IsUpdatedTimeout(t *testing.T) {
	c := NewCache(nil)
	start := time.Now()
	assert.False(t, c.IsUpdated(context.Background(), lamp, 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestCache_IsUpdatedCancelled(t *testing.T) {
	c := NewCache(nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	assert.False(t, c.IsUpdated(ctx, lamp, time.Minute))
}

func TestCache_CloseReleasesWaiters(t *testing.T) {
	c := NewCache(nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Close()
	}()
	assert.False(t, c.IsUpdated(context.Background(), lamp, time.Minute))
	c.Close()
}

func TestCache_IsUpdatedMockTimer(t *testing.T) {
	mock := clock.NewMock()
	c := NewCache(mock)

	result := make(chan bool, 1)
	go func() { result <- c.IsUpdated(context.Background(), lamp, time.Minute) }()

	assert.Eventually(t, func() bool {
		mock.Add(time.Minute)
		select {
		case r := <-result:
			assert.False(t, r)
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
