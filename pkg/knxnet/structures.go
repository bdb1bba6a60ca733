// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// HPAI is the 8-byte host protocol address information: an endpoint
// descriptor advertising where the peer should send frames.
type HPAI struct {
	Protocol uint8
	Addr     netip.AddrPort
}

// RouteBack is the all-zero endpoint used behind NAT. The peer answers to
// the source address of the datagram instead.
var RouteBack = HPAI{Protocol: ProtocolIPv4UDP, Addr: netip.AddrPortFrom(netip.IPv4Unspecified(), 0)}

// NewHPAI builds a UDP endpoint descriptor
func NewHPAI(addr netip.AddrPort) HPAI {
	return HPAI{Protocol: ProtocolIPv4UDP, Addr: addr}
}

// HPAIFromUDPAddr converts a socket address. Non-IPv4 addresses map to
// RouteBack.
func HPAIFromUDPAddr(a *net.UDPAddr) HPAI {
	if a == nil {
		return RouteBack
	}
	ip, ok := netip.AddrFromSlice(a.IP.To4())
	if !ok {
		return RouteBack
	}
	return NewHPAI(netip.AddrPortFrom(ip, uint16(a.Port)))
}

// IsRouteBack reports whether the endpoint is 0.0.0.0:0
func (h HPAI) IsRouteBack() bool {
	return !h.Addr.Addr().IsValid() || (h.Addr.Addr().IsUnspecified() && h.Addr.Port() == 0)
}

// UDPAddr returns the endpoint as a socket address
func (h HPAI) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(h.Addr)
}

func (h HPAI) String() string {
	return h.Addr.String()
}

func (h HPAI) put(b []byte) {
	b[0] = hpaiSize
	b[1] = h.Protocol
	ip := h.Addr.Addr()
	if !ip.Is4() {
		ip = netip.IPv4Unspecified()
	}
	a4 := ip.As4()
	copy(b[2:6], a4[:])
	binary.BigEndian.PutUint16(b[6:8], h.Addr.Port())
}

func decodeHPAI(service ServiceType, b []byte) (HPAI, error) {
	if len(b) < hpaiSize {
		return HPAI{}, malformed(service, "HPAI truncated: %d bytes", len(b))
	}
	if b[0] != hpaiSize {
		return HPAI{}, malformed(service, "HPAI length %d, expected %d", b[0], hpaiSize)
	}
	if b[1] != ProtocolIPv4UDP && b[1] != ProtocolIPv4TCP {
		return HPAI{}, malformed(service, "HPAI host protocol 0x%02X", b[1])
	}
	ip := netip.AddrFrom4([4]byte{b[2], b[3], b[4], b[5]})
	return HPAI{Protocol: b[1], Addr: netip.AddrPortFrom(ip, binary.BigEndian.Uint16(b[6:8]))}, nil
}

// CRI is the 4-byte connection request information for a tunnel connection.
type CRI struct {
	ConnectionType uint8
	Layer          uint8
}

// TunnelCRI requests a link-layer tunnel
var TunnelCRI = CRI{ConnectionType: ConnectionTypeTunnel, Layer: TunnelLinkLayer}

func (c CRI) put(b []byte) {
	b[0] = criSize
	b[1] = c.ConnectionType
	b[2] = c.Layer
	b[3] = 0x00
}

func decodeCRI(service ServiceType, b []byte) (CRI, error) {
	if len(b) != criSize || b[0] != criSize {
		return CRI{}, malformed(service, "CRI must be %d bytes", criSize)
	}
	return CRI{ConnectionType: b[1], Layer: b[2]}, nil
}

// CRD is the 4-byte connection response data: the individual address the
// gateway assigned to the tunnel.
type CRD struct {
	ConnectionType uint8
	Address        IndividualAddress
}

func (c CRD) put(b []byte) {
	b[0] = crdSize
	b[1] = c.ConnectionType
	binary.BigEndian.PutUint16(b[2:4], uint16(c.Address))
}

func decodeCRD(service ServiceType, b []byte) (CRD, error) {
	if len(b) != crdSize || b[0] != crdSize {
		return CRD{}, malformed(service, "CRD must be %d bytes", crdSize)
	}
	return CRD{ConnectionType: b[1], Address: IndividualAddress(binary.BigEndian.Uint16(b[2:4]))}, nil
}

// ConnectionHeader prefixes tunneling requests and acks.
type ConnectionHeader struct {
	ChannelID uint8
	Sequence  uint8
	Status    Status
}

func (c ConnectionHeader) put(b []byte) {
	b[0] = connectionHeaderSize
	b[1] = c.ChannelID
	b[2] = c.Sequence
	b[3] = uint8(c.Status)
}

func decodeConnectionHeader(service ServiceType, b []byte) (ConnectionHeader, error) {
	if len(b) < connectionHeaderSize {
		return ConnectionHeader{}, malformed(service, "connection header truncated: %d bytes", len(b))
	}
	if b[0] != connectionHeaderSize {
		return ConnectionHeader{}, malformed(service, "connection header length %d, expected %d", b[0], connectionHeaderSize)
	}
	return ConnectionHeader{ChannelID: b[1], Sequence: b[2], Status: Status(b[3])}, nil
}

func (c ConnectionHeader) String() string {
	return fmt.Sprintf("channel=%d seq=%d status=%s", c.ChannelID, c.Sequence, FormatStatus(c.Status))
}
