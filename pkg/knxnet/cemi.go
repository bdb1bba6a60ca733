// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// MessageCode is the cEMI message code
type MessageCode uint8

const (
	LDataReq MessageCode = 0x11
	LDataCon MessageCode = 0x2E
	LDataInd MessageCode = 0x29
)

// APCI is the 10-bit application layer service code
type APCI uint16

const (
	GroupValueRead     APCI = 0x000
	GroupValueResponse APCI = 0x040
	GroupValueWrite    APCI = 0x080

	// APCINone marks a TPDU without application data (transport control).
	APCINone APCI = 0xFFFF
)

// Control field defaults: standard frame, no repeat, system broadcast off,
// low priority; group destination, hop count 6.
const (
	DefaultControl1 = 0xBC
	DefaultControl2 = 0xE0

	control2GroupDest = 0x80
	maxCompactValue   = 0x3F
)

// CEMI is a link-layer data frame carried by tunneling requests and
// routing indications.
type CEMI struct {
	Code           MessageCode
	AdditionalInfo []byte
	Control1       uint8
	Control2       uint8
	Source         IndividualAddress
	Destination    uint16
	TPCI           uint8
	APCI           APCI
	Data           []byte

	// Long sends a single value up to 0x3F as a data octet instead of
	// packing it into the APCI octet, as 8-bit datapoints expect.
	Long bool
}

// NewGroupFrame builds a group-addressed data frame. Single-byte values up
// to 0x3F are packed into the APCI octet unless Long is set. Writes and
// responses need at least one data byte; an empty payload has no encoding
// and goes out as the compact value 0.
func NewGroupFrame(code MessageCode, src IndividualAddress, dst GroupAddress, apci APCI, data []byte) *CEMI {
	return &CEMI{
		Code:        code,
		Control1:    DefaultControl1,
		Control2:    DefaultControl2,
		Source:      src,
		Destination: uint16(dst),
		APCI:        apci,
		Data:        slices.Clone(data),
	}
}

// IsGroupService reports whether APCI is one of the group value services
func (a APCI) IsGroupService() bool {
	return a == GroupValueRead || a == GroupValueResponse || a == GroupValueWrite
}

// GroupDestination returns the destination when it is a group address
func (c *CEMI) GroupDestination() (GroupAddress, bool) {
	if c.Control2&control2GroupDest == 0 {
		return 0, false
	}
	return GroupAddress(c.Destination), true
}

func (c *CEMI) compact() bool {
	if c.APCI == GroupValueRead {
		return len(c.Data) == 0
	}
	return !c.Long && (c.APCI == GroupValueWrite || c.APCI == GroupValueResponse) &&
		len(c.Data) == 1 && c.Data[0] <= maxCompactValue
}

// npduLength is the count of octets after the TPCI octet
func (c *CEMI) npduLength() int {
	switch {
	case c.APCI == APCINone:
		return 0
	case c.compact():
		return 1
	default:
		return 1 + len(c.Data)
	}
}

// Size returns the encoded length
func (c *CEMI) Size() int {
	return 2 + len(c.AdditionalInfo) + 7 + 1 + c.npduLength()
}

func (c *CEMI) put(b []byte) {
	b[0] = uint8(c.Code)
	b[1] = uint8(len(c.AdditionalInfo))
	off := 2 + copy(b[2:], c.AdditionalInfo)
	b[off] = c.Control1
	b[off+1] = c.Control2
	binary.BigEndian.PutUint16(b[off+2:], uint16(c.Source))
	binary.BigEndian.PutUint16(b[off+4:], c.Destination)
	n := c.npduLength()
	b[off+6] = uint8(n)
	b[off+7] = c.TPCI &^ 0x03
	if n == 0 {
		return
	}
	b[off+7] |= uint8(c.APCI>>8) & 0x03
	b[off+8] = uint8(c.APCI)
	if c.compact() {
		if len(c.Data) == 1 {
			b[off+8] |= c.Data[0] & maxCompactValue
		}
		return
	}
	copy(b[off+9:], c.Data)
}

func decodeCEMI(service ServiceType, b []byte) (*CEMI, error) {
	if len(b) < 2 {
		return nil, malformed(service, "cEMI truncated")
	}
	infoLen := int(b[1])
	if len(b) < 2+infoLen+8 {
		return nil, malformed(service, "cEMI too short for additional info length %d", infoLen)
	}

	c := &CEMI{Code: MessageCode(b[0])}
	if infoLen > 0 {
		c.AdditionalInfo = slices.Clone(b[2 : 2+infoLen])
	}
	b = b[2+infoLen:]
	c.Control1 = b[0]
	c.Control2 = b[1]
	c.Source = IndividualAddress(binary.BigEndian.Uint16(b[2:4]))
	c.Destination = binary.BigEndian.Uint16(b[4:6])
	n := int(b[6])
	if len(b) != 8+n {
		return nil, malformed(service, "cEMI NPDU length %d does not match %d remaining bytes", n, len(b)-8)
	}
	c.TPCI = b[7] &^ 0x03
	if n == 0 {
		c.APCI = APCINone
		return c, nil
	}

	apci := APCI(b[7]&0x03)<<8 | APCI(b[8])
	if group := apci &^ maxCompactValue; group.IsGroupService() {
		c.APCI = group
		if n == 1 {
			if group != GroupValueRead {
				c.Data = []byte{b[8] & maxCompactValue}
			}
			return c, nil
		}
	} else {
		c.APCI = apci
	}
	if n > 1 {
		c.Data = slices.Clone(b[9:])
		c.Long = n == 2 && c.APCI != GroupValueRead && c.APCI.IsGroupService() && c.Data[0] <= maxCompactValue
	}
	return c, nil
}

func (c *CEMI) String() string {
	var dst string
	if g, ok := c.GroupDestination(); ok {
		dst = g.String()
	} else {
		dst = IndividualAddress(c.Destination).String()
	}
	return fmt.Sprintf("%s %s -> %s %s data=% X", FormatMessageCode(c.Code), c.Source, dst, FormatAPCI(c.APCI), c.Data)
}
