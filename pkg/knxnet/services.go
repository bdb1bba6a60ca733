// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

// SearchRequest asks every gateway on the multicast group to identify itself.
type SearchRequest struct {
	Discovery HPAI
}

func (*SearchRequest) Service() ServiceType { return ServiceSearchRequest }
func (*SearchRequest) Size() int            { return hpaiSize }
func (r *SearchRequest) put(b []byte)       { r.Discovery.put(b) }

func decodeSearchRequest(b []byte) (Body, error) {
	if err := expectSize(ServiceSearchRequest, b, hpaiSize); err != nil {
		return nil, err
	}
	h, err := decodeHPAI(ServiceSearchRequest, b)
	if err != nil {
		return nil, err
	}
	return &SearchRequest{Discovery: h}, nil
}

// SearchResponse is one gateway's answer to a search.
type SearchResponse struct {
	Control  HPAI
	Device   *DeviceInfo
	Families *SupportedFamilies
	Other    []DIB
}

func (*SearchResponse) Service() ServiceType { return ServiceSearchResponse }

func (r *SearchResponse) Size() int {
	return hpaiSize + dibsSize(r.dibs()...)
}

func (r *SearchResponse) dibs() []DIB {
	return requiredPlus(r.Device, r.Families, r.Other)
}

func (r *SearchResponse) put(b []byte) {
	r.Control.put(b)
	putDIBs(b[hpaiSize:], r.dibs()...)
}

func decodeSearchResponse(b []byte) (Body, error) {
	h, err := decodeHPAI(ServiceSearchResponse, b)
	if err != nil {
		return nil, err
	}
	dibs, err := scanDIBs(ServiceSearchResponse, b[hpaiSize:])
	if err != nil {
		return nil, err
	}
	device, families, other, err := requiredDIBs(ServiceSearchResponse, dibs)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Control: h, Device: device, Families: families, Other: other}, nil
}

// requiredPlus lists the device and family DIBs ahead of the rest. A nil
// one is left out; such a body encodes but will not decode.
func requiredPlus(device *DeviceInfo, families *SupportedFamilies, other []DIB) []DIB {
	dibs := make([]DIB, 0, 2+len(other))
	if device != nil {
		dibs = append(dibs, device)
	}
	if families != nil {
		dibs = append(dibs, families)
	}
	return append(dibs, other...)
}

// DescriptionRequest asks a gateway for its device description.
type DescriptionRequest struct {
	Control HPAI
}

func (*DescriptionRequest) Service() ServiceType { return ServiceDescriptionRequest }
func (*DescriptionRequest) Size() int            { return hpaiSize }
func (r *DescriptionRequest) put(b []byte)       { r.Control.put(b) }

func decodeDescriptionRequest(b []byte) (Body, error) {
	if err := expectSize(ServiceDescriptionRequest, b, hpaiSize); err != nil {
		return nil, err
	}
	h, err := decodeHPAI(ServiceDescriptionRequest, b)
	if err != nil {
		return nil, err
	}
	return &DescriptionRequest{Control: h}, nil
}

// DescriptionResponse carries the gateway's DIBs.
type DescriptionResponse struct {
	Device   *DeviceInfo
	Families *SupportedFamilies
	Other    []DIB
}

func (*DescriptionResponse) Service() ServiceType { return ServiceDescriptionResponse }

func (r *DescriptionResponse) Size() int {
	return dibsSize(r.dibs()...)
}

func (r *DescriptionResponse) dibs() []DIB {
	return requiredPlus(r.Device, r.Families, r.Other)
}

func (r *DescriptionResponse) put(b []byte) {
	putDIBs(b, r.dibs()...)
}

func decodeDescriptionResponse(b []byte) (Body, error) {
	dibs, err := scanDIBs(ServiceDescriptionResponse, b)
	if err != nil {
		return nil, err
	}
	device, families, other, err := requiredDIBs(ServiceDescriptionResponse, dibs)
	if err != nil {
		return nil, err
	}
	return &DescriptionResponse{Device: device, Families: families, Other: other}, nil
}

// ConnectRequest opens a tunnel, advertising both client endpoints.
type ConnectRequest struct {
	Control HPAI
	Data    HPAI
	CRI     CRI
}

func (*ConnectRequest) Service() ServiceType { return ServiceConnectRequest }
func (*ConnectRequest) Size() int            { return 2*hpaiSize + criSize }

func (r *ConnectRequest) put(b []byte) {
	r.Control.put(b)
	r.Data.put(b[hpaiSize:])
	r.CRI.put(b[2*hpaiSize:])
}

func decodeConnectRequest(b []byte) (Body, error) {
	const s = ServiceConnectRequest
	if len(b) < 2*hpaiSize {
		return nil, malformed(s, "body length %d too short", len(b))
	}
	control, err := decodeHPAI(s, b)
	if err != nil {
		return nil, err
	}
	data, err := decodeHPAI(s, b[hpaiSize:])
	if err != nil {
		return nil, err
	}
	cri, err := decodeCRI(s, b[2*hpaiSize:])
	if err != nil {
		return nil, err
	}
	return &ConnectRequest{Control: control, Data: data, CRI: cri}, nil
}

// ConnectResponse assigns the channel id. Error responses carry only the
// channel id and status.
type ConnectResponse struct {
	ChannelID uint8
	Status    Status
	Data      HPAI
	CRD       CRD
}

func (*ConnectResponse) Service() ServiceType { return ServiceConnectResponse }

func (r *ConnectResponse) Size() int {
	if r.Status != StatusNoError {
		return 2
	}
	return 2 + hpaiSize + crdSize
}

func (r *ConnectResponse) put(b []byte) {
	b[0] = r.ChannelID
	b[1] = uint8(r.Status)
	if r.Status != StatusNoError {
		return
	}
	r.Data.put(b[2:])
	r.CRD.put(b[2+hpaiSize:])
}

func decodeConnectResponse(b []byte) (Body, error) {
	const s = ServiceConnectResponse
	if len(b) < 2 {
		return nil, malformed(s, "body length %d too short", len(b))
	}
	r := &ConnectResponse{ChannelID: b[0], Status: Status(b[1])}
	if len(b) == 2 {
		if r.Status == StatusNoError {
			return nil, malformed(s, "successful response without endpoint")
		}
		return r, nil
	}
	if len(b) != 2+hpaiSize+crdSize {
		return nil, malformed(s, "body length %d, expected %d", len(b), 2+hpaiSize+crdSize)
	}
	var err error
	if r.Data, err = decodeHPAI(s, b[2:]); err != nil {
		return nil, err
	}
	if r.CRD, err = decodeCRD(s, b[2+hpaiSize:]); err != nil {
		return nil, err
	}
	return r, nil
}

// ConnectionStateRequest is the heartbeat probe.
type ConnectionStateRequest struct {
	ChannelID uint8
	Control   HPAI
}

func (*ConnectionStateRequest) Service() ServiceType { return ServiceConnectionStateRequest }
func (*ConnectionStateRequest) Size() int            { return 2 + hpaiSize }

func (r *ConnectionStateRequest) put(b []byte) {
	b[0] = r.ChannelID
	b[1] = 0x00
	r.Control.put(b[2:])
}

func decodeConnectionStateRequest(b []byte) (Body, error) {
	channelID, h, err := decodeChannelHPAI(ServiceConnectionStateRequest, b)
	if err != nil {
		return nil, err
	}
	return &ConnectionStateRequest{ChannelID: channelID, Control: h}, nil
}

// ConnectionStateResponse answers a heartbeat probe.
type ConnectionStateResponse struct {
	ChannelID uint8
	Status    Status
}

func (*ConnectionStateResponse) Service() ServiceType { return ServiceConnectionStateResponse }
func (*ConnectionStateResponse) Size() int            { return 2 }

func (r *ConnectionStateResponse) put(b []byte) {
	b[0] = r.ChannelID
	b[1] = uint8(r.Status)
}

func decodeConnectionStateResponse(b []byte) (Body, error) {
	if err := expectSize(ServiceConnectionStateResponse, b, 2); err != nil {
		return nil, err
	}
	return &ConnectionStateResponse{ChannelID: b[0], Status: Status(b[1])}, nil
}

// DisconnectRequest closes a tunnel. Either side may send it.
type DisconnectRequest struct {
	ChannelID uint8
	Control   HPAI
}

func (*DisconnectRequest) Service() ServiceType { return ServiceDisconnectRequest }
func (*DisconnectRequest) Size() int            { return 2 + hpaiSize }

func (r *DisconnectRequest) put(b []byte) {
	b[0] = r.ChannelID
	b[1] = 0x00
	r.Control.put(b[2:])
}

func decodeDisconnectRequest(b []byte) (Body, error) {
	channelID, h, err := decodeChannelHPAI(ServiceDisconnectRequest, b)
	if err != nil {
		return nil, err
	}
	return &DisconnectRequest{ChannelID: channelID, Control: h}, nil
}

// DisconnectResponse confirms a disconnect.
type DisconnectResponse struct {
	ChannelID uint8
	Status    Status
}

func (*DisconnectResponse) Service() ServiceType { return ServiceDisconnectResponse }
func (*DisconnectResponse) Size() int            { return 2 }

func (r *DisconnectResponse) put(b []byte) {
	b[0] = r.ChannelID
	b[1] = uint8(r.Status)
}

func decodeDisconnectResponse(b []byte) (Body, error) {
	if err := expectSize(ServiceDisconnectResponse, b, 2); err != nil {
		return nil, err
	}
	return &DisconnectResponse{ChannelID: b[0], Status: Status(b[1])}, nil
}

func decodeChannelHPAI(service ServiceType, b []byte) (uint8, HPAI, error) {
	if err := expectSize(service, b, 2+hpaiSize); err != nil {
		return 0, HPAI{}, err
	}
	h, err := decodeHPAI(service, b[2:])
	if err != nil {
		return 0, HPAI{}, err
	}
	return b[0], h, nil
}
