// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package knxnet implements the KNXnet/IP frame codec.
//
// Frames consist of a fixed 6-byte header followed by a service-specific
// body. This package provides body types for the discovery, description,
// connection management, tunneling and routing services, plus the cEMI
// link-layer payload carried by tunneling and routing frames.
package knxnet

// Header framing
const (
	HeaderSize      = 6
	ProtocolVersion = 0x10
	MaxFrameSize    = 0xFFFF
)

// Default endpoints
const (
	DefaultPort      = 3671
	DefaultMulticast = "224.0.23.12"
)

// FrameOverhead approximates Ethernet + IP + UDP + header bytes per frame for
// traffic statistics.
const FrameOverhead = 48

// ServiceType identifies the body carried by a frame.
type ServiceType uint16

// Core services 0x0200-0x020F
const (
	ServiceSearchRequest           ServiceType = 0x0201
	ServiceSearchResponse          ServiceType = 0x0202
	ServiceDescriptionRequest      ServiceType = 0x0203
	ServiceDescriptionResponse     ServiceType = 0x0204
	ServiceConnectRequest          ServiceType = 0x0205
	ServiceConnectResponse         ServiceType = 0x0206
	ServiceConnectionStateRequest  ServiceType = 0x0207
	ServiceConnectionStateResponse ServiceType = 0x0208
	ServiceDisconnectRequest       ServiceType = 0x0209
	ServiceDisconnectResponse      ServiceType = 0x020A
)

// Tunneling services 0x0420-0x042F
const (
	ServiceTunnelingRequest ServiceType = 0x0420
	ServiceTunnelingAck     ServiceType = 0x0421
)

// Routing services 0x0530-0x053F
const (
	ServiceRoutingIndication  ServiceType = 0x0530
	ServiceRoutingLostMessage ServiceType = 0x0531
	ServiceRoutingBusy        ServiceType = 0x0532
)

// Status is the status/error code carried in responses and acks.
type Status uint8

const (
	StatusNoError             Status = 0x00
	StatusHostProtocolType    Status = 0x01
	StatusVersionNotSupported Status = 0x02
	StatusSequenceNumber      Status = 0x04
	StatusConnectionID        Status = 0x21
	StatusConnectionType      Status = 0x22
	StatusConnectionOption    Status = 0x23
	StatusNoMoreConnections   Status = 0x24
	StatusDataConnection      Status = 0x26
	StatusKNXConnection       Status = 0x27
	StatusTunnelingLayer      Status = 0x29
)

// Host protocol codes used in HPAI structures
const (
	ProtocolIPv4UDP = 0x01
	ProtocolIPv4TCP = 0x02
)

// Connection types and tunnel layers (CRI / CRD)
const (
	ConnectionTypeDeviceManagement = 0x03
	ConnectionTypeTunnel           = 0x04
	TunnelLinkLayer                = 0x02
	TunnelRaw                      = 0x04
	TunnelBusMonitor               = 0x80
)

// Description information block types
const (
	DIBDeviceInfo        = 0x01
	DIBSupportedFamilies = 0x02
	DIBIPConfig          = 0x03
	DIBIPCurrentConfig   = 0x04
	DIBKNXAddresses      = 0x05
	DIBManufacturerData  = 0xFE
)

// Service families advertised in DIBSupportedFamilies
const (
	FamilyCore             = 0x02
	FamilyDeviceManagement = 0x03
	FamilyTunneling        = 0x04
	FamilyRouting          = 0x05
)

// Fixed structure sizes
const (
	hpaiSize             = 8
	criSize              = 4
	crdSize              = 4
	connectionHeaderSize = 4
	deviceInfoSize       = 54
	friendlyNameSize     = 30
)
