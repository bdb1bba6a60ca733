// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package knxnet

import (
	"math/rand"
	"net/netip"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomHPAI(rng *rand.Rand) HPAI {
	var ip [4]byte
	rng.Read(ip[:])
	return NewHPAI(netip.AddrPortFrom(netip.AddrFrom4(ip), uint16(rng.Intn(65536))))
}

func randomCEMI(rng *rand.Rand) *CEMI {
	apcis := []APCI{GroupValueRead, GroupValueResponse, GroupValueWrite}
	apci := apcis[rng.Intn(len(apcis))]
	var data []byte
	if apci != GroupValueRead {
		data = make([]byte, 1+rng.Intn(14))
		rng.Read(data)
	}
	return NewGroupFrame(LDataInd, IndividualAddress(rng.Intn(65536)), GroupAddress(rng.Intn(65536)), apci, data)
}

// randomBody builds a random well-formed body
func randomBody(rng *rand.Rand) Body {
	switch rng.Intn(8) {
	case 0:
		return &SearchRequest{Discovery: randomHPAI(rng)}
	case 1:
		return &ConnectRequest{Control: randomHPAI(rng), Data: randomHPAI(rng), CRI: TunnelCRI}
	case 2:
		return &ConnectionStateRequest{ChannelID: uint8(rng.Intn(256)), Control: randomHPAI(rng)}
	case 3:
		return &DisconnectResponse{ChannelID: uint8(rng.Intn(256)), Status: Status(rng.Intn(256))}
	case 4:
		return &TunnelingRequest{ChannelID: uint8(rng.Intn(256)), Sequence: uint8(rng.Intn(256)), CEMI: randomCEMI(rng)}
	case 5:
		return &TunnelingAck{ChannelID: uint8(rng.Intn(256)), Sequence: uint8(rng.Intn(256)), Status: Status(rng.Intn(256))}
	case 6:
		return &RoutingIndication{CEMI: randomCEMI(rng)}
	default:
		return &DescriptionResponse{Device: testDevice(), Families: testFamilies()}
	}
}

func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(80))
		rng.Read(data)
		// Must not panic; errors are expected
		_, _ = Decode(data)
	}
}

func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		body := randomBody(rng)
		data := Encode(body)
		frame, err := Decode(data)
		if err != nil {
			t.Fatalf("round %d: Decode(% X) error = %v", i, data, err)
		}
		if frame.Service() != body.Service() {
			t.Fatalf("round %d: service mismatch", i)
		}
	}
}

func TestFuzzDecoder_CorruptedFrames(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := Encode(randomBody(rng))
		pos := rng.Intn(len(data))
		data[pos] ^= byte(1 + rng.Intn(255))
		// Corruption may still produce a valid frame; it must never panic
		_, _ = Decode(data)
	}
}

func TestFuzzDecoder_MissingBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := Encode(randomBody(rng))
		cut := rng.Intn(len(data))
		if _, err := Decode(data[:cut]); err == nil {
			t.Fatalf("round %d: truncated frame (%d of %d bytes) decoded without error", i, cut, len(data))
		}
	}
}

func TestFuzzFormatter_RandomFrames(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	now := time.Now()

	for i := 0; i < rounds; i++ {
		frame, err := Decode(Encode(randomBody(rng)))
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if FormatFrame(frame, now) == "" {
			t.Fatalf("round %d: empty formatter output", i)
		}
	}
}
