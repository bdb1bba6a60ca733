// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package event

import "sync/atomic"

// SequenceCounter hands out tunneling sequence numbers 0..255, wrapping.
type SequenceCounter struct {
	n atomic.Uint32
}

// Next returns the current sequence and advances the counter
func (s *SequenceCounter) Next() uint8 {
	return uint8(s.n.Add(1) - 1)
}

// Peek returns the sequence the next call to Next will return
func (s *SequenceCounter) Peek() uint8 {
	return uint8(s.n.Load())
}

// Rewind hands seq out again when it was the last value returned by Next
// and nothing advanced the counter since. It reports whether it did.
func (s *SequenceCounter) Rewind(seq uint8) bool {
	cur := s.n.Load()
	if cur == 0 || uint8(cur-1) != seq {
		return false
	}
	return s.n.CompareAndSwap(cur, cur-1)
}

// Reset restarts the counter at 0
func (s *SequenceCounter) Reset() {
	s.n.Store(0)
}
