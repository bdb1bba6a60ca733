// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"fmt"
	"strings"
	"time"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f Frame, at time.Time) string {
	timestamp := at.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%04X) len=%d\n", timestamp, FormatServiceType(f.Service()), uint16(f.Service()), f.Len())
	if f.Body != nil {
		result += FormatBody(f.Body)
	}
	return result
}

// FormatServiceType returns the human-readable name for a service type
func FormatServiceType(st ServiceType) string {
	switch st {
	// Core (0x0200-0x020F)
	case ServiceSearchRequest:
		return "SEARCH_REQUEST"
	case ServiceSearchResponse:
		return "SEARCH_RESPONSE"
	case ServiceDescriptionRequest:
		return "DESCRIPTION_REQUEST"
	case ServiceDescriptionResponse:
		return "DESCRIPTION_RESPONSE"
	case ServiceConnectRequest:
		return "CONNECT_REQUEST"
	case ServiceConnectResponse:
		return "CONNECT_RESPONSE"
	case ServiceConnectionStateRequest:
		return "CONNECTIONSTATE_REQUEST"
	case ServiceConnectionStateResponse:
		return "CONNECTIONSTATE_RESPONSE"
	case ServiceDisconnectRequest:
		return "DISCONNECT_REQUEST"
	case ServiceDisconnectResponse:
		return "DISCONNECT_RESPONSE"

	// Tunneling (0x0420-0x042F)
	case ServiceTunnelingRequest:
		return "TUNNELING_REQUEST"
	case ServiceTunnelingAck:
		return "TUNNELING_ACK"

	// Routing (0x0530-0x053F)
	case ServiceRoutingIndication:
		return "ROUTING_INDICATION"
	case ServiceRoutingLostMessage:
		return "ROUTING_LOST_MESSAGE"
	case ServiceRoutingBusy:
		return "ROUTING_BUSY"

	default:
		return "UNKNOWN"
	}
}

// FormatStatus returns the name of a status code
func FormatStatus(s Status) string {
	switch s {
	case StatusNoError:
		return "E_NO_ERROR"
	case StatusHostProtocolType:
		return "E_HOST_PROTOCOL_TYPE"
	case StatusVersionNotSupported:
		return "E_VERSION_NOT_SUPPORTED"
	case StatusSequenceNumber:
		return "E_SEQUENCE_NUMBER"
	case StatusConnectionID:
		return "E_CONNECTION_ID"
	case StatusConnectionType:
		return "E_CONNECTION_TYPE"
	case StatusConnectionOption:
		return "E_CONNECTION_OPTION"
	case StatusNoMoreConnections:
		return "E_NO_MORE_CONNECTIONS"
	case StatusDataConnection:
		return "E_DATA_CONNECTION"
	case StatusKNXConnection:
		return "E_KNX_CONNECTION"
	case StatusTunnelingLayer:
		return "E_TUNNELING_LAYER"
	default:
		return fmt.Sprintf("E_UNKNOWN(0x%02X)", uint8(s))
	}
}

// FormatMessageCode returns the name of a cEMI message code
func FormatMessageCode(c MessageCode) string {
	switch c {
	case LDataReq:
		return "L_Data.req"
	case LDataCon:
		return "L_Data.con"
	case LDataInd:
		return "L_Data.ind"
	default:
		return fmt.Sprintf("MC(0x%02X)", uint8(c))
	}
}

// FormatAPCI returns the name of an application service
func FormatAPCI(a APCI) string {
	switch a {
	case GroupValueRead:
		return "GroupValueRead"
	case GroupValueResponse:
		return "GroupValueResponse"
	case GroupValueWrite:
		return "GroupValueWrite"
	case APCINone:
		return "TPDU"
	default:
		return fmt.Sprintf("APCI(0x%03X)", uint16(a))
	}
}

// FormatBody formats the body fields of a frame
func FormatBody(b Body) string {
	switch v := b.(type) {
	case *SearchRequest:
		return fmt.Sprintf("  Discovery: %s\n", v.Discovery)
	case *SearchResponse:
		return fmt.Sprintf("  Control: %s\n", v.Control) + formatDevice(v.Device, v.Families)
	case *DescriptionRequest:
		return fmt.Sprintf("  Control: %s\n", v.Control)
	case *DescriptionResponse:
		return formatDevice(v.Device, v.Families)
	case *ConnectRequest:
		return fmt.Sprintf("  Control: %s, Data: %s, Layer: 0x%02X\n", v.Control, v.Data, v.CRI.Layer)
	case *ConnectResponse:
		if v.Status != StatusNoError {
			return fmt.Sprintf("  Channel: %d, Status: %s\n", v.ChannelID, FormatStatus(v.Status))
		}
		return fmt.Sprintf("  Channel: %d, Status: %s, Data: %s, Address: %s\n",
			v.ChannelID, FormatStatus(v.Status), v.Data, v.CRD.Address)
	case *ConnectionStateRequest:
		return fmt.Sprintf("  Channel: %d, Control: %s\n", v.ChannelID, v.Control)
	case *ConnectionStateResponse:
		return fmt.Sprintf("  Channel: %d, Status: %s\n", v.ChannelID, FormatStatus(v.Status))
	case *DisconnectRequest:
		return fmt.Sprintf("  Channel: %d, Control: %s\n", v.ChannelID, v.Control)
	case *DisconnectResponse:
		return fmt.Sprintf("  Channel: %d, Status: %s\n", v.ChannelID, FormatStatus(v.Status))
	case *TunnelingRequest:
		return fmt.Sprintf("  Channel: %d, Seq: %d, %s\n", v.ChannelID, v.Sequence, v.CEMI)
	case *TunnelingAck:
		return fmt.Sprintf("  Channel: %d, Seq: %d, Status: %s\n", v.ChannelID, v.Sequence, FormatStatus(v.Status))
	case *RoutingIndication:
		return fmt.Sprintf("  %s\n", v.CEMI)
	case *RoutingLostMessage:
		return fmt.Sprintf("  Device state: 0x%02X, Lost: %d\n", v.DeviceState, v.LostMessages)
	case *RoutingBusy:
		return fmt.Sprintf("  Device state: 0x%02X, Wait: %dms\n", v.DeviceState, v.WaitTime)
	default:
		return ""
	}
}

func formatDevice(d *DeviceInfo, f *SupportedFamilies) string {
	var sb strings.Builder
	if d != nil {
		fmt.Fprintf(&sb, "  Device: %s\n", d)
	}
	if f != nil {
		names := make([]string, 0, len(f.Families))
		for _, fam := range f.Families {
			names = append(names, fmt.Sprintf("%s v%d", FormatFamily(fam.ID), fam.Version))
		}
		fmt.Fprintf(&sb, "  Services: %s\n", strings.Join(names, ", "))
	}
	return sb.String()
}

// FormatFamily returns the name of a service family
func FormatFamily(id uint8) string {
	switch id {
	case FamilyCore:
		return "core"
	case FamilyDeviceManagement:
		return "device-management"
	case FamilyTunneling:
		return "tunneling"
	case FamilyRouting:
		return "routing"
	default:
		return fmt.Sprintf("family(0x%02X)", id)
	}
}
