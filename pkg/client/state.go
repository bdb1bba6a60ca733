// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import "fmt"

// State is the session state
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateDescribing
	StateConnecting
	StateConnected
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateDescribing:
		return "describing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// transitions lists the legal successors of each state. Closed is terminal.
var transitions = map[State][]State{
	StateIdle:          {StateDiscovering, StateDescribing, StateConnected, StateClosed},
	StateDiscovering:   {StateDescribing, StateClosed},
	StateDescribing:    {StateConnecting, StateClosed},
	StateConnecting:    {StateConnected, StateClosed},
	StateConnected:     {StateDisconnecting, StateClosed},
	StateDisconnecting: {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// State returns the current session state
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// transition moves to the given state if legal. Refused transitions are
// logged and reported as false.
func (c *Client) transition(to State) bool {
	c.stateMu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.stateMu.Unlock()
		if from != to {
			log.Debugw("refusing state transition", "from", from, "to", to)
		}
		return false
	}
	c.state = to
	hook := c.onTransition
	c.stateMu.Unlock()

	log.Debugw("state changed", "from", from, "to", to)
	if hook != nil {
		hook(from, to)
	}
	return true
}
