// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import "encoding/binary"

// TunnelingRequest carries a cEMI frame over an open tunnel.
type TunnelingRequest struct {
	ChannelID uint8
	Sequence  uint8
	CEMI      *CEMI
}

func (*TunnelingRequest) Service() ServiceType { return ServiceTunnelingRequest }
func (r *TunnelingRequest) Size() int          { return connectionHeaderSize + r.CEMI.Size() }

func (r *TunnelingRequest) put(b []byte) {
	ConnectionHeader{ChannelID: r.ChannelID, Sequence: r.Sequence}.put(b)
	r.CEMI.put(b[connectionHeaderSize:])
}

func decodeTunnelingRequest(b []byte) (Body, error) {
	const s = ServiceTunnelingRequest
	ch, err := decodeConnectionHeader(s, b)
	if err != nil {
		return nil, err
	}
	c, err := decodeCEMI(s, b[connectionHeaderSize:])
	if err != nil {
		return nil, err
	}
	return &TunnelingRequest{ChannelID: ch.ChannelID, Sequence: ch.Sequence, CEMI: c}, nil
}

// TunnelingAck acknowledges a tunneling request by sequence number.
type TunnelingAck struct {
	ChannelID uint8
	Sequence  uint8
	Status    Status
}

func (*TunnelingAck) Service() ServiceType { return ServiceTunnelingAck }
func (*TunnelingAck) Size() int            { return connectionHeaderSize }

func (r *TunnelingAck) put(b []byte) {
	ConnectionHeader{ChannelID: r.ChannelID, Sequence: r.Sequence, Status: r.Status}.put(b)
}

func decodeTunnelingAck(b []byte) (Body, error) {
	const s = ServiceTunnelingAck
	if err := expectSize(s, b, connectionHeaderSize); err != nil {
		return nil, err
	}
	ch, err := decodeConnectionHeader(s, b)
	if err != nil {
		return nil, err
	}
	return &TunnelingAck{ChannelID: ch.ChannelID, Sequence: ch.Sequence, Status: ch.Status}, nil
}

// RoutingIndication multicasts a cEMI frame without acknowledgment.
type RoutingIndication struct {
	CEMI *CEMI
}

func (*RoutingIndication) Service() ServiceType { return ServiceRoutingIndication }
func (r *RoutingIndication) Size() int          { return r.CEMI.Size() }
func (r *RoutingIndication) put(b []byte)       { r.CEMI.put(b) }

func decodeRoutingIndication(b []byte) (Body, error) {
	c, err := decodeCEMI(ServiceRoutingIndication, b)
	if err != nil {
		return nil, err
	}
	return &RoutingIndication{CEMI: c}, nil
}

// RoutingLostMessage reports frames a router dropped.
type RoutingLostMessage struct {
	DeviceState  uint8
	LostMessages uint16
}

func (*RoutingLostMessage) Service() ServiceType { return ServiceRoutingLostMessage }
func (*RoutingLostMessage) Size() int            { return 4 }

func (r *RoutingLostMessage) put(b []byte) {
	b[0] = 4
	b[1] = r.DeviceState
	binary.BigEndian.PutUint16(b[2:4], r.LostMessages)
}

func decodeRoutingLostMessage(b []byte) (Body, error) {
	const s = ServiceRoutingLostMessage
	if err := expectSize(s, b, 4); err != nil {
		return nil, err
	}
	if b[0] != 4 {
		return nil, malformed(s, "structure length %d, expected 4", b[0])
	}
	return &RoutingLostMessage{DeviceState: b[1], LostMessages: binary.BigEndian.Uint16(b[2:4])}, nil
}

// RoutingBusy asks senders to pause for WaitTime milliseconds.
type RoutingBusy struct {
	DeviceState uint8
	WaitTime    uint16
	Control     uint16
}

func (*RoutingBusy) Service() ServiceType { return ServiceRoutingBusy }
func (*RoutingBusy) Size() int            { return 6 }

func (r *RoutingBusy) put(b []byte) {
	b[0] = 6
	b[1] = r.DeviceState
	binary.BigEndian.PutUint16(b[2:4], r.WaitTime)
	binary.BigEndian.PutUint16(b[4:6], r.Control)
}

func decodeRoutingBusy(b []byte) (Body, error) {
	const s = ServiceRoutingBusy
	if err := expectSize(s, b, 6); err != nil {
		return nil, err
	}
	if b[0] != 6 {
		return nil, malformed(s, "structure length %d, expected 6", b[0])
	}
	return &RoutingBusy{
		DeviceState: b[1],
		WaitTime:    binary.BigEndian.Uint16(b[2:4]),
		Control:     binary.BigEndian.Uint16(b[4:6]),
	}, nil
}
