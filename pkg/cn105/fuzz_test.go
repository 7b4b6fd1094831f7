// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"bytes"
	"math/rand"
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

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_RandomPackets generates random valid frames and verifies
// they all decode back to the original type and payload
func TestFuzzDecoder_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		typ := byte(rng.Intn(256))
		payload := make([]byte, rng.Intn(MaxPayloadSize+1))
		rng.Read(payload)

		frame, err := EncodePacket(typ, payload)
		if err != nil {
			t.Fatalf("Round %d: encode error: %v", i, err)
		}

		var pkt *Packet
		for _, b := range frame {
			p, err := d.DecodeByte(b)
			if err != nil {
				t.Errorf("Round %d: unexpected decode error: %v", i, err)
			}
			if p != nil {
				pkt = p
			}
		}
		if pkt == nil {
			t.Errorf("Round %d: expected packet, got nil", i)
			continue
		}
		if pkt.Type() != typ {
			t.Errorf("Round %d: type mismatch: expected 0x%02X, got 0x%02X", i, typ, pkt.Type())
		}
		if !bytes.Equal(pkt.Payload(), payload) {
			t.Errorf("Round %d: payload mismatch:\n  got  %X\n  want %X", i, pkt.Payload(), payload)
		}
	}
}

// TestFuzzDecoder_CorruptedPackets corrupts one random byte per frame and
// verifies the corruption is always detected, never silently accepted
func TestFuzzDecoder_CorruptedPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		payload := make([]byte, rng.Intn(MaxPayloadSize)+1)
		rng.Read(payload)
		frame, err := EncodePacket(byte(rng.Intn(256)), payload)
		if err != nil {
			t.Fatalf("Round %d: encode error: %v", i, err)
		}

		pos := rng.Intn(len(frame))
		flip := byte(rng.Intn(255) + 1) // never zero, always a real change
		original := append([]byte(nil), frame...)
		frame[pos] ^= flip

		d := NewDecoder()
		var pkt *Packet
		var decodeErr error
		for _, b := range frame {
			p, err := d.DecodeByte(b)
			if err != nil {
				decodeErr = err
			}
			if p != nil {
				pkt = p
			}
		}

		// Corruption must never reproduce the original frame content.
		if pkt != nil && pkt.Type() == original[1] && bytes.Equal(pkt.Payload(), original[HeaderSize:len(original)-1]) {
			t.Errorf("Round %d: corrupted frame (byte %d ^= 0x%02X) decoded as the original", i, pos, flip)
		}

		// A corrupted sync byte is dropped silently while idle, and a
		// corrupted length byte can end in a silent partial frame. Every
		// other position is covered by the checksum and must both fail
		// and surface an error.
		if pos != 0 && pos != 4 {
			if pkt != nil {
				t.Errorf("Round %d: corrupted frame (byte %d ^= 0x%02X) decoded as type 0x%02X", i, pos, flip, pkt.Type())
			}
			if decodeErr == nil {
				t.Errorf("Round %d: corruption at byte %d went undetected", i, pos)
			}
		}
	}
}

// TestFuzzDecoder_GarbageBetweenFrames interleaves valid frames with random
// non-sync garbage and verifies every frame still decodes
func TestFuzzDecoder_GarbageBetweenFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		frames := rng.Intn(5) + 1
		decoded := 0

		for j := 0; j < frames; j++ {
			// Non-sync garbage before the frame.
			for k := rng.Intn(16); k > 0; k-- {
				b := byte(rng.Intn(256))
				if b == SyncByte {
					b = 0x00
				}
				if _, err := d.DecodeByte(b); err != nil {
					t.Errorf("Round %d: garbage byte produced error: %v", i, err)
				}
			}

			payload := make([]byte, rng.Intn(MaxPayloadSize+1))
			rng.Read(payload)
			frame, err := EncodePacket(byte(rng.Intn(256)), payload)
			if err != nil {
				t.Fatalf("Round %d: encode error: %v", i, err)
			}
			for _, b := range frame {
				pkt, err := d.DecodeByte(b)
				if err != nil {
					t.Errorf("Round %d: decode error in valid frame: %v", i, err)
				}
				if pkt != nil {
					decoded++
				}
			}
		}
		if decoded != frames {
			t.Errorf("Round %d: decoded %d of %d frames", i, decoded, frames)
		}
	}
}

// ============================================================
// Report Decode Fuzz Tests
// ============================================================

// TestFuzzDecodeReport_RandomPayloads verifies report decoding never
// panics and only ever fails with ErrMalformedPayload
func TestFuzzDecodeReport_RandomPayloads(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		payload := make([]byte, rng.Intn(MaxPayloadSize+1))
		rng.Read(payload)

		r, err := DecodeReport(NewPacket(TypeGetResponse, payload))
		if err != nil {
			continue
		}
		if r == nil {
			t.Errorf("Round %d: nil report with nil error", i)
		}
	}
}
