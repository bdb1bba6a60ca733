// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"encoding/binary"
	"fmt"
)

// Body is the service-specific part of a frame.
type Body interface {
	// Service returns the service type written into the header
	Service() ServiceType
	// Size returns the encoded body length in bytes
	Size() int
	// put writes exactly Size() bytes into b
	put(b []byte)
}

// Header is the fixed 6-byte frame header.
type Header struct {
	Length      uint8
	Version     uint8
	Service     ServiceType
	TotalLength uint16
}

// Frame is a decoded frame.
type Frame struct {
	Header Header
	Body   Body
}

// NewFrame wraps a body with a matching header
func NewFrame(body Body) Frame {
	return Frame{
		Header: Header{
			Length:      HeaderSize,
			Version:     ProtocolVersion,
			Service:     body.Service(),
			TotalLength: uint16(HeaderSize + body.Size()),
		},
		Body: body,
	}
}

// Len returns the encoded frame length
func (f Frame) Len() int {
	return int(f.Header.TotalLength)
}

// Service returns the frame's service type
func (f Frame) Service() ServiceType {
	return f.Header.Service
}

// Encode serializes a body into a complete frame.
func Encode(body Body) []byte {
	size := HeaderSize + body.Size()
	buf := make([]byte, size)
	buf[0] = HeaderSize
	buf[1] = ProtocolVersion
	binary.BigEndian.PutUint16(buf[2:4], uint16(body.Service()))
	binary.BigEndian.PutUint16(buf[4:6], uint16(size))
	body.put(buf[HeaderSize:])
	return buf
}

type bodyDecoder func(b []byte) (Body, error)

var decoders = map[ServiceType]bodyDecoder{
	ServiceSearchRequest:           decodeSearchRequest,
	ServiceSearchResponse:          decodeSearchResponse,
	ServiceDescriptionRequest:      decodeDescriptionRequest,
	ServiceDescriptionResponse:     decodeDescriptionResponse,
	ServiceConnectRequest:          decodeConnectRequest,
	ServiceConnectResponse:         decodeConnectResponse,
	ServiceConnectionStateRequest:  decodeConnectionStateRequest,
	ServiceConnectionStateResponse: decodeConnectionStateResponse,
	ServiceDisconnectRequest:       decodeDisconnectRequest,
	ServiceDisconnectResponse:      decodeDisconnectResponse,
	ServiceTunnelingRequest:        decodeTunnelingRequest,
	ServiceTunnelingAck:            decodeTunnelingAck,
	ServiceRoutingIndication:       decodeRoutingIndication,
	ServiceRoutingLostMessage:      decodeRoutingLostMessage,
	ServiceRoutingBusy:             decodeRoutingBusy,
}

// Supported reports whether Decode has a body decoder for the service
func Supported(service ServiceType) bool {
	_, ok := decoders[service]
	return ok
}

// DecodeHeader validates and parses the first six bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, malformed(0, "frame too short: %d bytes", len(data))
	}

	h := Header{
		Length:      data[0],
		Version:     data[1],
		Service:     ServiceType(binary.BigEndian.Uint16(data[2:4])),
		TotalLength: binary.BigEndian.Uint16(data[4:6]),
	}

	if h.Length != HeaderSize {
		return h, malformed(h.Service, "header length 0x%02X, expected 0x%02X", h.Length, HeaderSize)
	}
	if h.Version != ProtocolVersion {
		return h, malformed(h.Service, "protocol version 0x%02X, expected 0x%02X", h.Version, ProtocolVersion)
	}
	return h, nil
}

// Decode parses a complete frame. The declared total length must equal
// len(data).
func Decode(data []byte) (Frame, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Frame{}, err
	}

	if int(h.TotalLength) != len(data) {
		return Frame{}, malformed(h.Service, "total length %d does not match %d received bytes", h.TotalLength, len(data))
	}

	decode, ok := decoders[h.Service]
	if !ok {
		return Frame{}, &ProtocolError{
			Kind:    UnsupportedFrame,
			Service: h.Service,
			Message: fmt.Sprintf("no decoder for service 0x%04X", uint16(h.Service)),
		}
	}

	body, err := decode(data[HeaderSize:])
	if err != nil {
		return Frame{}, err
	}
	return Frame{Header: h, Body: body}, nil
}

// expectSize checks a fixed-size body
func expectSize(service ServiceType, b []byte, n int) error {
	if len(b) != n {
		return malformed(service, "body length %d, expected %d", len(b), n)
	}
	return nil
}
