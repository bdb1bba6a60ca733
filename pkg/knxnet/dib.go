// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"slices"
)

// DIB is a self-describing description information block.
type DIB interface {
	Type() uint8
	Size() int
	put(b []byte)
}

// DeviceInfo is the 54-byte device hardware DIB.
type DeviceInfo struct {
	Medium        uint8
	DeviceStatus  uint8
	Address       IndividualAddress
	ProjectID     uint16
	SerialNumber  [6]byte
	MulticastAddr netip.Addr
	MAC           net.HardwareAddr
	FriendlyName  string
}

// Type returns DIBDeviceInfo
func (d *DeviceInfo) Type() uint8 { return DIBDeviceInfo }

// Size returns the fixed DIB size
func (d *DeviceInfo) Size() int { return deviceInfoSize }

// ProgrammingMode reports the programming mode bit of the device status
func (d *DeviceInfo) ProgrammingMode() bool { return d.DeviceStatus&0x01 != 0 }

func (d *DeviceInfo) put(b []byte) {
	b[0] = deviceInfoSize
	b[1] = DIBDeviceInfo
	b[2] = d.Medium
	b[3] = d.DeviceStatus
	binary.BigEndian.PutUint16(b[4:6], uint16(d.Address))
	binary.BigEndian.PutUint16(b[6:8], d.ProjectID)
	copy(b[8:14], d.SerialNumber[:])
	mc := d.MulticastAddr
	if !mc.Is4() {
		mc = netip.IPv4Unspecified()
	}
	a4 := mc.As4()
	copy(b[14:18], a4[:])
	clear(b[18:24])
	copy(b[18:24], d.MAC)
	clear(b[24:54])
	copy(b[24:54], d.FriendlyName)
}

func decodeDeviceInfo(service ServiceType, b []byte) (*DeviceInfo, error) {
	if len(b) != deviceInfoSize {
		return nil, malformed(service, "device info DIB must be %d bytes, got %d", deviceInfoSize, len(b))
	}
	d := &DeviceInfo{
		Medium:        b[2],
		DeviceStatus:  b[3],
		Address:       IndividualAddress(binary.BigEndian.Uint16(b[4:6])),
		ProjectID:     binary.BigEndian.Uint16(b[6:8]),
		MulticastAddr: netip.AddrFrom4([4]byte{b[14], b[15], b[16], b[17]}),
		MAC:           net.HardwareAddr(slices.Clone(b[18:24])),
	}
	copy(d.SerialNumber[:], b[8:14])
	name := b[24:54]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	d.FriendlyName = string(name)
	return d, nil
}

// ServiceFamily is one (family, version) pair.
type ServiceFamily struct {
	ID      uint8
	Version uint8
}

// SupportedFamilies lists the service families a device implements.
type SupportedFamilies struct {
	Families []ServiceFamily
}

// Type returns DIBSupportedFamilies
func (s *SupportedFamilies) Type() uint8 { return DIBSupportedFamilies }

// Size returns 2 + 2 per family
func (s *SupportedFamilies) Size() int { return 2 + 2*len(s.Families) }

// Supports reports whether the family is advertised
func (s *SupportedFamilies) Supports(id uint8) bool {
	if s == nil {
		return false
	}
	for _, f := range s.Families {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (s *SupportedFamilies) put(b []byte) {
	b[0] = uint8(s.Size())
	b[1] = DIBSupportedFamilies
	for i, f := range s.Families {
		b[2+2*i] = f.ID
		b[3+2*i] = f.Version
	}
}

func decodeSupportedFamilies(service ServiceType, b []byte) (*SupportedFamilies, error) {
	if len(b)%2 != 0 {
		return nil, malformed(service, "supported families DIB has odd length %d", len(b))
	}
	s := &SupportedFamilies{Families: make([]ServiceFamily, 0, (len(b)-2)/2)}
	for i := 2; i < len(b); i += 2 {
		s.Families = append(s.Families, ServiceFamily{ID: b[i], Version: b[i+1]})
	}
	return s, nil
}

// RawDIB keeps a DIB this package does not interpret.
type RawDIB struct {
	DIBType uint8
	Data    []byte
}

// Type returns the DIB type code
func (r *RawDIB) Type() uint8 { return r.DIBType }

// Size returns the encoded length
func (r *RawDIB) Size() int { return 2 + len(r.Data) }

func (r *RawDIB) put(b []byte) {
	b[0] = uint8(r.Size())
	b[1] = r.DIBType
	copy(b[2:], r.Data)
}

// scanDIBs walks length-prefixed DIBs until the buffer is exhausted.
func scanDIBs(service ServiceType, b []byte) ([]DIB, error) {
	var dibs []DIB
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, malformed(service, "trailing %d byte(s) after last DIB", len(b))
		}
		n := int(b[0])
		if n < 2 || n > len(b) {
			return nil, malformed(service, "DIB length %d exceeds remaining %d bytes", n, len(b))
		}

		block := b[:n]
		switch b[1] {
		case DIBDeviceInfo:
			d, err := decodeDeviceInfo(service, block)
			if err != nil {
				return nil, err
			}
			dibs = append(dibs, d)
		case DIBSupportedFamilies:
			s, err := decodeSupportedFamilies(service, block)
			if err != nil {
				return nil, err
			}
			dibs = append(dibs, s)
		default:
			dibs = append(dibs, &RawDIB{DIBType: b[1], Data: slices.Clone(block[2:])})
		}
		b = b[n:]
	}
	return dibs, nil
}

// requiredDIBs extracts the device info and supported families blocks
func requiredDIBs(service ServiceType, dibs []DIB) (*DeviceInfo, *SupportedFamilies, []DIB, error) {
	var (
		device   *DeviceInfo
		families *SupportedFamilies
		other    []DIB
	)
	for _, d := range dibs {
		switch v := d.(type) {
		case *DeviceInfo:
			if device == nil {
				device = v
				continue
			}
		case *SupportedFamilies:
			if families == nil {
				families = v
				continue
			}
		}
		other = append(other, d)
	}
	if device == nil {
		return nil, nil, nil, malformed(service, "missing device info DIB")
	}
	if families == nil {
		return nil, nil, nil, malformed(service, "missing supported families DIB")
	}
	return device, families, other, nil
}

func dibsSize(dibs ...DIB) int {
	n := 0
	for _, d := range dibs {
		n += d.Size()
	}
	return n
}

func putDIBs(b []byte, dibs ...DIB) {
	off := 0
	for _, d := range dibs {
		d.put(b[off : off+d.Size()])
		off += d.Size()
	}
}

func (d *DeviceInfo) String() string {
	return fmt.Sprintf("%q addr=%s serial=%X mac=%s", d.FriendlyName, d.Address, d.SerialNumber, d.MAC)
}
