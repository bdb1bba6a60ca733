// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"errors"
	"fmt"
)

// ErrorKind classifies decode failures
type ErrorKind int

const (
	// UnsupportedFrame is a well-formed header carrying a service type this
	// package has no body for.
	UnsupportedFrame ErrorKind = iota
	// MalformedFrame covers truncated, over-length or structurally invalid input.
	MalformedFrame
)

// String returns the kind name
func (k ErrorKind) String() string {
	switch k {
	case UnsupportedFrame:
		return "unsupported frame"
	case MalformedFrame:
		return "malformed frame"
	default:
		return "unknown"
	}
}

// ProtocolError is returned by Decode and the body decoders.
type ProtocolError struct {
	Kind    ErrorKind
	Service ServiceType
	Message string
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	if e.Service != 0 {
		return fmt.Sprintf("%s (%s): %s", e.Kind, FormatServiceType(e.Service), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func malformed(service ServiceType, format string, args ...any) error {
	return &ProtocolError{Kind: MalformedFrame, Service: service, Message: fmt.Sprintf(format, args...)}
}

// IsMalformed reports whether err is a MalformedFrame protocol error
func IsMalformed(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Kind == MalformedFrame
}

// IsUnsupported reports whether err is an UnsupportedFrame protocol error
func IsUnsupported(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Kind == UnsupportedFrame
}
