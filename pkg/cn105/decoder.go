// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"fmt"
	"time"
)

// Decoder states
const (
	stateIdle = iota
	stateType
	stateHeader2
	stateHeader3
	stateLength
	statePayload
	stateChecksum
)

// Decoder implements the CN105 frame decoder state machine. Bytes are fed
// one at a time; the decoder resynchronizes on the sync byte after any
// error, so a corrupted stream only costs the frames it corrupted.
type Decoder struct {
	state        int
	buffer       []byte // accumulated sync..payload bytes, checksum input
	payloadLen   int
	skippedBytes int
}

// NewDecoder creates a new frame decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder to the idle state.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.payloadLen = 0
}

// SkippedBytes returns the number of non-sync bytes discarded while idle
// since the counter was last taken with TakeSkippedBytes.
func (d *Decoder) SkippedBytes() int {
	return d.skippedBytes
}

// TakeSkippedBytes returns the skipped-byte count and resets it.
func (d *Decoder) TakeSkippedBytes() int {
	n := d.skippedBytes
	d.skippedBytes = 0
	return n
}

// DecodeByte processes a single byte through the decoder state machine.
// It returns a completed packet, or nil while the frame is still
// incomplete. On error the decoder has already reset itself and the
// stream resynchronizes on the next sync byte.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch d.state {
	case stateIdle:
		if b != SyncByte {
			d.skippedBytes++
			return nil, nil
		}
		d.buffer = append(d.buffer[:0], b)
		d.state = stateType
		return nil, nil

	case stateType:
		d.buffer = append(d.buffer, b)
		d.state = stateHeader2
		return nil, nil

	case stateHeader2, stateHeader3:
		// Always 0x01 0x30 on known firmware, but not validated: newer
		// units may change them and the checksum still protects us.
		d.buffer = append(d.buffer, b)
		d.state++
		return nil, nil

	case stateLength:
		if int(b) > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("%w: declared length %d exceeds %d", ErrPayloadTooLarge, b, MaxPayloadSize)
		}
		d.buffer = append(d.buffer, b)
		d.payloadLen = int(b)
		if d.payloadLen == 0 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) >= HeaderSize+d.payloadLen {
			d.state = stateChecksum
		}
		return nil, nil

	case stateChecksum:
		want := Checksum(d.buffer)
		if b != want {
			err := fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, want, b)
			d.Reset()
			return nil, err
		}
		pkt := &Packet{
			typ:       d.buffer[1],
			payload:   append([]byte(nil), d.buffer[HeaderSize:]...),
			checksum:  b,
			timestamp: time.Now(),
		}
		d.Reset()
		return pkt, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("cn105: invalid decoder state %d", d.state)
	}
}

// DecodePacket decodes a single frame from the front of the byte window.
// It returns the packet and the number of bytes consumed. ErrIncomplete
// means the window holds the start of a frame but not all of it, and the
// caller should retry with more bytes. ErrUnknownSync means the window
// does not begin with the sync byte; the caller should discard one byte
// and resynchronize. The function is pure over its input window.
func DecodePacket(window []byte) (*Packet, int, error) {
	if len(window) == 0 {
		return nil, 0, ErrIncomplete
	}
	if window[0] != SyncByte {
		return nil, 0, ErrUnknownSync
	}
	if len(window) < HeaderSize {
		return nil, 0, ErrIncomplete
	}
	payloadLen := int(window[4])
	if payloadLen > MaxPayloadSize {
		return nil, 0, fmt.Errorf("%w: declared length %d exceeds %d", ErrPayloadTooLarge, payloadLen, MaxPayloadSize)
	}
	frameLen := HeaderSize + payloadLen + 1
	if len(window) < frameLen {
		return nil, 0, ErrIncomplete
	}
	want := Checksum(window[:frameLen-1])
	got := window[frameLen-1]
	if got != want {
		return nil, 0, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, want, got)
	}
	pkt := &Packet{
		typ:       window[1],
		payload:   append([]byte(nil), window[HeaderSize:frameLen-1]...),
		checksum:  got,
		timestamp: time.Now(),
	}
	return pkt, frameLen, nil
}
