// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"fmt"
	"strconv"
	"strings"
)

// IndividualAddress identifies a single device on the bus (area.line.device).
type IndividualAddress uint16

// NewIndividualAddress builds an address from its parts
func NewIndividualAddress(area, line, device uint8) IndividualAddress {
	return IndividualAddress(uint16(area&0x0F)<<12 | uint16(line&0x0F)<<8 | uint16(device))
}

// Area returns the 4-bit area
func (a IndividualAddress) Area() uint8 { return uint8(a >> 12) }

// Line returns the 4-bit line
func (a IndividualAddress) Line() uint8 { return uint8(a>>8) & 0x0F }

// Device returns the 8-bit device number
func (a IndividualAddress) Device() uint8 { return uint8(a) }

func (a IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", a.Area(), a.Line(), a.Device())
}

// ParseIndividualAddress parses "area.line.device"
func ParseIndividualAddress(s string) (IndividualAddress, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid individual address %q", s)
	}
	limits := []uint64{15, 15, 255}
	var vals [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil || v > limits[i] {
			return 0, fmt.Errorf("invalid individual address %q", s)
		}
		vals[i] = uint8(v)
	}
	return NewIndividualAddress(vals[0], vals[1], vals[2]), nil
}

// AddressStyle selects how a GroupAddress is rendered
type AddressStyle int

const (
	StyleThreeLevel AddressStyle = iota // main/middle/sub (5/3/8 bits)
	StyleTwoLevel                       // main/sub (5/11 bits)
	StyleFree                           // raw 16-bit value
)

// GroupAddress is a logical multicast destination on the bus.
type GroupAddress uint16

// NewGroupAddress builds a three-level group address
func NewGroupAddress(main, middle, sub uint8) GroupAddress {
	return GroupAddress(uint16(main&0x1F)<<11 | uint16(middle&0x07)<<8 | uint16(sub))
}

// Format renders the address in the given style
func (g GroupAddress) Format(style AddressStyle) string {
	switch style {
	case StyleTwoLevel:
		return fmt.Sprintf("%d/%d", uint16(g)>>11, uint16(g)&0x07FF)
	case StyleFree:
		return strconv.Itoa(int(g))
	default:
		return fmt.Sprintf("%d/%d/%d", uint16(g)>>11, (uint16(g)>>8)&0x07, uint16(g)&0xFF)
	}
}

func (g GroupAddress) String() string {
	return g.Format(StyleThreeLevel)
}

// ParseGroupAddress accepts "main/middle/sub", "main/sub" or a free-style
// decimal value.
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(s, "/")
	nums := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid group address %q", s)
		}
		nums[i] = v
	}

	switch len(nums) {
	case 1:
		return GroupAddress(nums[0]), nil
	case 2:
		if nums[0] > 31 || nums[1] > 2047 {
			return 0, fmt.Errorf("group address %q out of range", s)
		}
		return GroupAddress(nums[0]<<11 | nums[1]), nil
	case 3:
		if nums[0] > 31 || nums[1] > 7 || nums[2] > 255 {
			return 0, fmt.Errorf("group address %q out of range", s)
		}
		return NewGroupAddress(uint8(nums[0]), uint8(nums[1]), uint8(nums[2])), nil
	default:
		return 0, fmt.Errorf("invalid group address %q", s)
	}
}
