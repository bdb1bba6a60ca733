// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package stats counts frames, bytes and errors of a client session.
package stats

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// services is the fixed set of per-service counters; anything else is
// counted under ServiceOther.
var services = []knxnet.ServiceType{
	knxnet.ServiceSearchRequest,
	knxnet.ServiceSearchResponse,
	knxnet.ServiceDescriptionRequest,
	knxnet.ServiceDescriptionResponse,
	knxnet.ServiceConnectRequest,
	knxnet.ServiceConnectResponse,
	knxnet.ServiceConnectionStateRequest,
	knxnet.ServiceConnectionStateResponse,
	knxnet.ServiceDisconnectRequest,
	knxnet.ServiceDisconnectResponse,
	knxnet.ServiceTunnelingRequest,
	knxnet.ServiceTunnelingAck,
	knxnet.ServiceRoutingIndication,
	knxnet.ServiceRoutingLostMessage,
	knxnet.ServiceRoutingBusy,
}

// ServiceOther buckets service types outside the known set
const ServiceOther knxnet.ServiceType = 0

var serviceIndex = func() map[knxnet.ServiceType]int {
	m := make(map[knxnet.ServiceType]int, len(services))
	for i, s := range services {
		m[s] = i
	}
	return m
}()

func indexOf(s knxnet.ServiceType) int {
	if i, ok := serviceIndex[s]; ok {
		return i
	}
	return len(services)
}

// Collector holds live counters. All methods are safe for concurrent use.
type Collector struct {
	clock clock.Clock
	start atomic.Int64 // unix nanos

	sent          [16]atomic.Uint64
	received      [16]atomic.Uint64
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	errors            atomic.Uint64
	malformedFrames   atomic.Uint64
	unsupportedFrames atomic.Uint64
}

// NewCollector creates a collector. A nil clock uses the wall clock.
func NewCollector(c clock.Clock) *Collector {
	if c == nil {
		c = clock.New()
	}
	col := &Collector{clock: c}
	col.start.Store(c.Now().UnixNano())
	return col
}

// OnSent counts a sent frame of size bytes
func (c *Collector) OnSent(service knxnet.ServiceType, size int) {
	c.sent[indexOf(service)].Add(1)
	c.bytesSent.Add(uint64(size + knxnet.FrameOverhead))
}

// OnReceived counts a received frame of size bytes
func (c *Collector) OnReceived(service knxnet.ServiceType, size int) {
	c.received[indexOf(service)].Add(1)
	c.bytesReceived.Add(uint64(size + knxnet.FrameOverhead))
}

// OnError counts a failure. Decode failures are also classified.
func (c *Collector) OnError(err error) {
	c.errors.Add(1)
	switch {
	case knxnet.IsMalformed(err):
		c.malformedFrames.Add(1)
	case knxnet.IsUnsupported(err):
		c.unsupportedFrames.Add(1)
	}
}

// Reset zeroes all counters and restarts the clock
func (c *Collector) Reset() {
	for i := range c.sent {
		c.sent[i].Store(0)
		c.received[i].Store(0)
	}
	c.bytesSent.Store(0)
	c.bytesReceived.Store(0)
	c.errors.Store(0)
	c.malformedFrames.Store(0)
	c.unsupportedFrames.Store(0)
	c.start.Store(c.clock.Now().UnixNano())
}

// Snapshot copies the current counters
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Start:             time.Unix(0, c.start.Load()),
		Taken:             c.clock.Now(),
		Sent:              make(map[knxnet.ServiceType]uint64),
		Received:          make(map[knxnet.ServiceType]uint64),
		BytesSent:         c.bytesSent.Load(),
		BytesReceived:     c.bytesReceived.Load(),
		Errors:            c.errors.Load(),
		MalformedFrames:   c.malformedFrames.Load(),
		UnsupportedFrames: c.unsupportedFrames.Load(),
	}
	for i := 0; i <= len(services); i++ {
		st := ServiceOther
		if i < len(services) {
			st = services[i]
		}
		if n := c.sent[i].Load(); n > 0 {
			s.Sent[st] = n
		}
		if n := c.received[i].Load(); n > 0 {
			s.Received[st] = n
		}
	}
	return s
}

// Snapshot is an immutable copy of the counters at one point in time.
type Snapshot struct {
	Start time.Time
	Taken time.Time

	Sent     map[knxnet.ServiceType]uint64
	Received map[knxnet.ServiceType]uint64

	BytesSent     uint64
	BytesReceived uint64

	Errors            uint64
	MalformedFrames   uint64
	UnsupportedFrames uint64
}

// TotalSent returns the number of frames sent
func (s Snapshot) TotalSent() uint64 {
	return sum(s.Sent)
}

// TotalReceived returns the number of frames received
func (s Snapshot) TotalReceived() uint64 {
	return sum(s.Received)
}

func sum(m map[knxnet.ServiceType]uint64) uint64 {
	var n uint64
	for _, v := range m {
		n += v
	}
	return n
}

// Rates holds per-second rates between two snapshots
type Rates struct {
	SentPerSec     float64
	ReceivedPerSec float64
	ErrorsPerSec   float64
}

// Rates computes frame and error rates since prev. A zero prev measures
// from the collector start.
func (s Snapshot) Rates(prev Snapshot) Rates {
	from := prev.Taken
	if from.IsZero() {
		from = s.Start
	}
	elapsed := s.Taken.Sub(from).Seconds()
	if elapsed <= 0 {
		return Rates{}
	}
	return Rates{
		SentPerSec:     float64(s.TotalSent()-prev.TotalSent()) / elapsed,
		ReceivedPerSec: float64(s.TotalReceived()-prev.TotalReceived()) / elapsed,
		ErrorsPerSec:   float64(s.Errors-prev.Errors) / elapsed,
	}
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	rates := s.Rates(Snapshot{})
	elapsed := s.Taken.Sub(s.Start)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d (%d bytes)\n", s.TotalSent(), s.BytesSent)
	result += fmt.Sprintf("Frames Received: %8d (%d bytes)\n", s.TotalReceived(), s.BytesReceived)

	keys := slices.Sorted(maps.Keys(mergeKeys(s.Sent, s.Received)))
	for _, st := range keys {
		name := knxnet.FormatServiceType(st)
		if st == ServiceOther {
			name = "OTHER"
		}
		result += fmt.Sprintf("  %-26s tx %6d  rx %6d\n", name, s.Sent[st], s.Received[st])
	}

	if s.Errors > 0 {
		result += fmt.Sprintf("Errors:          %8d\n", s.Errors)
		if s.MalformedFrames > 0 {
			result += fmt.Sprintf("  Malformed:        %5d\n", s.MalformedFrames)
		}
		if s.UnsupportedFrames > 0 {
			result += fmt.Sprintf("  Unsupported:      %5d\n", s.UnsupportedFrames)
		}
	}

	result += fmt.Sprintf("Send Rate:       %8.1f frames/sec\n", rates.SentPerSec)
	result += fmt.Sprintf("Receive Rate:    %8.1f frames/sec\n", rates.ReceivedPerSec)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", rates.ErrorsPerSec)
	result += "================================\n"

	return result
}

func mergeKeys(a, b map[knxnet.ServiceType]uint64) map[knxnet.ServiceType]struct{} {
	out := make(map[knxnet.ServiceType]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
