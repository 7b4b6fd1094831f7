// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

// Package cn105 implements the Mitsubishi CN105 heat pump serial protocol.
//
// CN105 is the connector/UART interface Mitsubishi indoor units expose for
// their control protocol (2400 baud, 8 data bits, even parity). This package
// provides the frame codec, the command catalog mapping semantic operations
// to wire payloads, a single-flight session manager for the half-duplex
// link, and a desired/observed state synchronizer.
package cn105

// Protocol framing
const (
	SyncByte    = 0xFC
	HeaderByte2 = 0x01 // fixed, meaning unknown (possibly a version marker)
	HeaderByte3 = 0x30

	// Frame layout: sync, type, two header bytes, length, payload, checksum
	HeaderSize     = 5
	MaxPayloadSize = 32 // observed payloads are 16 bytes; leave headroom
	MaxFrameSize   = HeaderSize + MaxPayloadSize + 1
)

// Packet types (controller -> unit)
const (
	TypeConnectRequest  = 0x5A
	TypeExtendedConnect = 0x5B
	TypeSetRequest      = 0x41
	TypeGetRequest      = 0x42
)

// Packet types (unit -> controller)
const (
	TypeConnectAck         = 0x7A
	TypeExtendedConnectAck = 0x7B
	TypeSetAck             = 0x61
	TypeGetResponse        = 0x62
)

// Info modes: GetRequest payload[0] selects which report the unit returns,
// and GetResponse payload[0] echoes it.
const (
	InfoModeSettings = 0x02
	InfoModeRoomTemp = 0x03
	InfoModeTimers   = 0x05
	InfoModeStatus   = 0x06
	InfoModeStandby  = 0x09
)

// Connect handshake payload, captured from a live unit. The unit answers
// with TypeConnectAck once it accepts the controller.
var connectPayload = []byte{0xCA, 0x01}

// Set request field offsets and flag bits. Fields not flagged in the
// control bytes are left untouched on the unit.
const (
	setOffSubcommand = 0  // always 0x01 for settings
	setOffFlags      = 1  // power/mode/temp/fan/vane flag byte
	setOffFlags2     = 2  // wide vane flag byte
	setOffPower      = 3
	setOffMode       = 4
	setOffTempMapped = 5  // 31 - temp, whole degrees
	setOffFan        = 6
	setOffVane       = 7
	setOffWideVane   = 13
	setOffTempDirect = 14 // temp*2 + 128, half degrees
	setPayloadLen    = 16

	flagPower = 0x01
	flagMode  = 0x02
	flagTemp  = 0x04
	flagFan   = 0x08
	flagVane  = 0x10

	flag2WideVane = 0x01
)

// Settings report (GetResponse, info mode 0x02) field offsets.
const (
	rptOffPower      = 3
	rptOffMode       = 4  // bit 0x08 is the i-see sensor flag
	rptOffTempMapped = 5
	rptOffFan        = 6
	rptOffVane       = 7
	rptOffWideVane   = 10 // high nibble is an adjustment flag
	rptOffTempDirect = 11

	modeISeeBit = 0x08
)

// Room temperature report (info mode 0x03) field offsets.
const (
	roomOffTempMapped = 3 // temp - 10, whole degrees
	roomOffTempDirect = 6 // temp*2 + 128, half degrees
)

// Operating status report (info mode 0x06) field offsets.
const (
	statusOffCompressorFreq = 3
	statusOffOperating      = 4
)

// Standby report (info mode 0x09) field offset.
const standbyOffFlag = 3

// Temperature limits supported by the unit, degrees Celsius.
const (
	MinTargetTemp = 16.0
	MaxTargetTemp = 31.0
)
