// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import "time"

// Packet is a decoded CN105 protocol frame. Unknown packet types are
// carried with their raw payload and never interpreted, so new unit
// firmware cannot crash the decoder.
type Packet struct {
	typ       byte
	payload   []byte
	checksum  byte
	timestamp time.Time
}

// NewPacket creates a packet with the given type and payload. The payload
// is copied; the checksum is computed on encode.
func NewPacket(typ byte, payload []byte) *Packet {
	p := &Packet{
		typ:       typ,
		payload:   append([]byte(nil), payload...),
		timestamp: time.Now(),
	}
	p.checksum = Checksum(p.headerAndPayload())
	return p
}

// Type returns the packet type byte.
func (p *Packet) Type() byte {
	return p.typ
}

// Payload returns the packet's payload bytes. Callers must not modify the
// returned slice.
func (p *Packet) Payload() []byte {
	return p.payload
}

// Length returns the payload length.
func (p *Packet) Length() int {
	return len(p.payload)
}

// Checksum returns the packet's checksum byte.
func (p *Packet) Checksum() byte {
	return p.checksum
}

// Timestamp returns the packet's decode (or creation) timestamp.
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// TypeName returns the human-readable name of the packet type.
func (p *Packet) TypeName() string {
	return FormatPacketType(p.typ)
}

func (p *Packet) headerAndPayload() []byte {
	buf := make([]byte, 0, HeaderSize+len(p.payload))
	buf = append(buf, SyncByte, p.typ, HeaderByte2, HeaderByte3, byte(len(p.payload)))
	return append(buf, p.payload...)
}
