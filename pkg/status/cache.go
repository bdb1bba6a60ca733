// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package status caches the last value seen for each group address.
package status

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// Status is the last known value of a group address.
type Status struct {
	Timestamp time.Time
	Source    knxnet.IndividualAddress
	APCI      knxnet.APCI
	Payload   []byte
	// Dirty marks a value that may be stale since a request was sent
	Dirty bool
}

func (s Status) clone() Status {
	s.Payload = slices.Clone(s.Payload)
	return s
}

// Reader is the read side of the cache handed to callers.
type Reader interface {
	GetStatusFor(addr knxnet.GroupAddress, mustBeFresh bool) (Status, bool)
	IsUpdated(ctx context.Context, addr knxnet.GroupAddress, timeout time.Duration) bool
	CopyStatusMap() map[knxnet.GroupAddress]Status
}

// Cache is a StatusCache guarded by one map-wide lock. Entries are never
// removed.
type Cache struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[knxnet.GroupAddress]*Status
	changed chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// NewCache creates an empty cache. A nil clock uses the wall clock.
func NewCache(c clock.Clock) *Cache {
	if c == nil {
		c = clock.New()
	}
	return &Cache{
		clock:   c,
		entries: make(map[knxnet.GroupAddress]*Status),
		changed: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// UpdateStatus replaces the entry for addr and clears its dirty flag
func (c *Cache) UpdateStatus(addr knxnet.GroupAddress, payload []byte, source knxnet.IndividualAddress, apci knxnet.APCI) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[addr] = &Status{
		Timestamp: c.clock.Now(),
		Source:    source,
		APCI:      apci,
		Payload:   slices.Clone(payload),
	}
	close(c.changed)
	c.changed = make(chan struct{})
}

// SetDirty marks an existing entry stale. Unknown addresses are ignored.
func (c *Cache) SetDirty(addr knxnet.GroupAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[addr]; ok {
		e.Dirty = true
	}
}

// Mark identifies the entry of an address at one point in time.
type Mark struct {
	addr  knxnet.GroupAddress
	entry *Status
}

// Mark records the current entry of addr, taken before a request goes out
func (c *Cache) Mark(addr knxnet.GroupAddress) Mark {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Mark{addr: addr, entry: c.entries[addr]}
}

// SetDirtySince marks the entry stale unless an update replaced it after m
// was taken. A response that beats the caller back stays fresh.
func (c *Cache) SetDirtySince(m Mark) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[m.addr]; ok && e == m.entry {
		e.Dirty = true
	}
}

// GetStatusFor returns a copy of the entry. It reports false when there is
// no entry, or when mustBeFresh is set and the entry is dirty.
func (c *Cache) GetStatusFor(addr knxnet.GroupAddress, mustBeFresh bool) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[addr]
	if !ok || (mustBeFresh && e.Dirty) {
		return Status{}, false
	}
	return e.clone(), true
}

// IsUpdated waits up to timeout for addr to have a clean entry. It returns
// false on timeout, when ctx is done or when the cache is closed.
func (c *Cache) IsUpdated(ctx context.Context, addr knxnet.GroupAddress, timeout time.Duration) bool {
	timer := c.clock.Timer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		e, ok := c.entries[addr]
		fresh := ok && !e.Dirty
		changed := c.changed
		c.mu.Unlock()

		if fresh {
			return true
		}

		select {
		case <-changed:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		case <-c.closed:
			return false
		}
	}
}

// CopyStatusMap returns a deep copy of every entry
func (c *Cache) CopyStatusMap() map[knxnet.GroupAddress]Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[knxnet.GroupAddress]Status, len(c.entries))
	for addr, e := range c.entries {
		out[addr] = e.clone()
	}
	return out
}

// Addresses returns the cached addresses in ascending order
func (c *Cache) Addresses() []knxnet.GroupAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.entries))
}

// Close releases every IsUpdated waiter
func (c *Cache) Close() {
	c.once.Do(func() { close(c.closed) })
}
