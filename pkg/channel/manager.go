// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package channel

import (
	"sync"

	"go.uber.org/multierr"
)

// Manager owns the channels of one session, at most one per role.
type Manager struct {
	mu       sync.Mutex
	channels map[Role]*Channel
	closed   bool
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{channels: make(map[Role]*Channel)}
}

// OpenControl opens the control channel
func (m *Manager) OpenControl(opts Options) (*Channel, error) {
	return m.open(RoleControl, opts)
}

// OpenData opens the data channel
func (m *Manager) OpenData(opts Options) (*Channel, error) {
	return m.open(RoleData, opts)
}

// OpenDescription opens the description channel
func (m *Manager) OpenDescription(opts Options) (*Channel, error) {
	return m.open(RoleDescription, opts)
}

// OpenMulticast opens the multicast channel
func (m *Manager) OpenMulticast(opts Options) (*Channel, error) {
	return m.open(RoleMulticast, opts)
}

func (m *Manager) open(role Role, opts Options) (*Channel, error) {
	c, err := Open(role, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Close()
		return nil, ErrChannelClosed
	}
	prev := m.channels[role]
	m.channels[role] = c
	m.mu.Unlock()

	if prev != nil && !m.inUse(prev) {
		prev.Close()
	}
	return c, nil
}

// ShareControlForData makes the control socket also serve the data role
func (m *Manager) ShareControlForData() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.channels[RoleControl]
	if c != nil {
		m.channels[RoleData] = c
	}
	return c
}

// Get returns the channel for role, or nil
func (m *Manager) Get(role Role) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[role]
}

// Roles returns the roles served by c
func (m *Manager) Roles(c *Channel) []Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []Role
	for _, r := range []Role{RoleControl, RoleData, RoleDescription, RoleMulticast} {
		if m.channels[r] == c {
			roles = append(roles, r)
		}
	}
	return roles
}

// CloseRole closes and forgets the channel for role unless another role
// still uses the same socket.
func (m *Manager) CloseRole(role Role) error {
	m.mu.Lock()
	c := m.channels[role]
	delete(m.channels, role)
	m.mu.Unlock()

	if c == nil || m.inUse(c) {
		return nil
	}
	return c.Close()
}

func (m *Manager) inUse(c *Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.channels {
		if other == c {
			return true
		}
	}
	return false
}

// Close closes every channel once and combines the errors. Later opens
// fail with ErrChannelClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	seen := make(map[*Channel]struct{}, len(m.channels))
	var all []*Channel
	for _, c := range m.channels {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			all = append(all, c)
		}
	}
	m.channels = make(map[Role]*Channel)
	m.mu.Unlock()

	var err error
	for _, c := range all {
		err = multierr.Append(err, c.Close())
	}
	return err
}
