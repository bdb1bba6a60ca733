// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

var (
	// ErrDiscoveryTimeout is returned when no tunneling gateway answered a search
	ErrDiscoveryTimeout = errors.New("no gateway answered the search request")
	// ErrDescriptionTimeout is returned when every description attempt timed out
	ErrDescriptionTimeout = errors.New("gateway did not answer the description request")
	// ErrHeartbeatExhausted ends a session whose gateway stopped answering
	// connection state requests
	ErrHeartbeatExhausted = errors.New("gateway stopped answering connection state requests")
	// ErrNotRunning is returned for operations that need an open session
	ErrNotRunning = errors.New("client not running")
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("client already started")
	// ErrEmptyPayload refuses a write or response without data, which has
	// no encoding distinct from the value 0
	ErrEmptyPayload = errors.New("group write needs at least one data byte")
)

// ConnectError reports a refused or unanswered connect request.
type ConnectError struct {
	Status  knxnet.Status
	Timeout bool
}

func (e *ConnectError) Error() string {
	if e.Timeout {
		return "connect: gateway did not answer"
	}
	return fmt.Sprintf("connect: gateway refused: %s", knxnet.FormatStatus(e.Status))
}
