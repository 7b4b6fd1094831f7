// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import "fmt"

// EncodePacket builds a complete wire frame for the given packet type and
// payload, including the computed checksum. The output is deterministic
// for a given input.
func EncodePacket(typ byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, 0, HeaderSize+len(payload)+1)
	frame = append(frame, SyncByte, typ, HeaderByte2, HeaderByte3, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, Checksum(frame))
	return frame, nil
}

// Bytes returns the packet's wire encoding.
func (p *Packet) Bytes() ([]byte, error) {
	return EncodePacket(p.typ, p.payload)
}

// AppendChecksum returns raw frame bytes with the CN105 checksum appended.
// Used by the raw packet injection path, which bypasses the command
// catalog entirely.
func AppendChecksum(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+1)
	out = append(out, raw...)
	return append(out, Checksum(raw))
}
