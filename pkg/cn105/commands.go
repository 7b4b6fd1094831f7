// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import "fmt"

// Command builder functions create Packet structs ready for encoding.
// These are the only place semantic operations are mapped to wire
// payloads, so field offsets and flag bits live here and in constants.go.

// NewConnectRequest creates the connect handshake packet. The unit
// answers with a ConnectAck and accepts settings commands afterwards.
func NewConnectRequest() *Packet {
	return NewPacket(TypeConnectRequest, connectPayload)
}

// NewExtendedConnectRequest creates the extended connect packet, which
// newer units answer with firmware capability information. Units that do
// not know the type simply stay silent, so callers must treat the
// exchange as optional.
func NewExtendedConnectRequest() *Packet {
	return NewPacket(TypeExtendedConnect, []byte{0xC9})
}

// NewGetRequest creates a status poll packet for the given info mode
// (InfoModeSettings, InfoModeRoomTemp, InfoModeStatus, ...).
func NewGetRequest(infoMode byte) *Packet {
	payload := make([]byte, setPayloadLen)
	payload[0] = infoMode
	return NewPacket(TypeGetRequest, payload)
}

// NewSetRequest encodes a partial settings change. Only fields present in
// the delta are flagged in the control bytes; the unit leaves unflagged
// fields untouched. Unrepresentable values fail with ErrValueOutOfRange
// before anything reaches the wire.
func NewSetRequest(delta SettingsDelta) (*Packet, error) {
	if err := delta.Validate(); err != nil {
		return nil, err
	}

	payload := make([]byte, setPayloadLen)
	payload[setOffSubcommand] = 0x01

	if delta.Power != nil {
		payload[setOffFlags] |= flagPower
		if *delta.Power {
			payload[setOffPower] = 0x01
		}
	}
	if delta.Mode != nil {
		payload[setOffFlags] |= flagMode
		payload[setOffMode] = modeCodes[*delta.Mode]
	}
	if delta.TargetTemp != nil {
		payload[setOffFlags] |= flagTemp
		// Both encodings are written; the unit reads whichever its
		// firmware supports and ignores the other.
		payload[setOffTempMapped] = byte(MaxTargetTemp - *delta.TargetTemp)
		payload[setOffTempDirect] = byte(*delta.TargetTemp*2) + 128
	}
	if delta.Fan != nil {
		payload[setOffFlags] |= flagFan
		payload[setOffFan] = fanCodes[*delta.Fan]
	}
	if delta.Vane != nil {
		payload[setOffFlags] |= flagVane
		payload[setOffVane] = vaneCodes[*delta.Vane]
	}
	if delta.WideVane != nil {
		payload[setOffFlags2] |= flag2WideVane
		payload[setOffWideVane] = wideVaneCodes[*delta.WideVane]
	}

	return NewPacket(TypeSetRequest, payload), nil
}

// ResponseTypeFor returns the response packet type that satisfies a
// request of the given type. The second return is false for request types
// with no known response correspondence.
func ResponseTypeFor(requestType byte) (byte, bool) {
	switch requestType {
	case TypeConnectRequest:
		return TypeConnectAck, true
	case TypeExtendedConnect:
		return TypeExtendedConnectAck, true
	case TypeSetRequest:
		return TypeSetAck, true
	case TypeGetRequest:
		return TypeGetResponse, true
	default:
		return 0, false
	}
}

// ReportKind identifies which report shape a GetResponse carried.
type ReportKind int

// Report kinds.
const (
	ReportSettings ReportKind = iota
	ReportRoomTemp
	ReportStatus
	ReportStandby
	ReportUnknown
)

// Report is a decoded unit report. Only the fields for its Kind are
// meaningful; unknown info modes keep their raw payload for pass-through
// debugging and are never interpreted.
type Report struct {
	Kind ReportKind

	// ReportSettings
	Settings Settings
	ISee     bool

	// ReportRoomTemp, degrees Celsius
	RoomTemp float64

	// ReportStatus
	Operating      bool
	CompressorFreq int

	// ReportStandby
	Standby bool

	// ReportUnknown
	InfoMode byte
	Raw      []byte
}

// DecodeReport decodes a GetResponse payload into a semantic report.
// Unknown sub-field byte codes decode to the Unknown sentinels rather
// than erroring, to tolerate unit firmware skew; structural problems
// (wrong packet type, truncated payload) fail with ErrMalformedPayload.
func DecodeReport(p *Packet) (*Report, error) {
	if p.Type() != TypeGetResponse {
		return nil, fmt.Errorf("%w: packet type 0x%02X is not a report", ErrMalformedPayload, p.Type())
	}
	payload := p.Payload()
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty report payload", ErrMalformedPayload)
	}

	switch payload[0] {
	case InfoModeSettings:
		return decodeSettingsReport(payload)
	case InfoModeRoomTemp:
		return decodeRoomTempReport(payload)
	case InfoModeStatus:
		return decodeStatusReport(payload)
	case InfoModeStandby:
		return decodeStandbyReport(payload)
	default:
		return &Report{
			Kind:     ReportUnknown,
			InfoMode: payload[0],
			Raw:      append([]byte(nil), payload...),
		}, nil
	}
}

func decodeSettingsReport(payload []byte) (*Report, error) {
	if len(payload) <= rptOffTempDirect {
		return nil, fmt.Errorf("%w: settings report truncated at %d bytes", ErrMalformedPayload, len(payload))
	}

	r := &Report{Kind: ReportSettings}
	r.Settings.Power = payload[rptOffPower] != 0

	// The i-see sensor adds 0x08 to the mode byte. Auto is itself 0x08,
	// so this is an offset, not a flag bit: Auto+i-see reports as 0x10.
	modeByte := payload[rptOffMode]
	if modeByte > modeISeeBit {
		r.ISee = true
		modeByte -= modeISeeBit
	}
	r.Settings.Mode = decodeMode(modeByte)

	// The direct encoding is offset by 128; a value below that is not a
	// valid direct temperature, so fall back to the mapped byte.
	if direct := payload[rptOffTempDirect]; direct >= 128 {
		r.Settings.TargetTemp = float64(int(direct)-128) / 2
	} else {
		r.Settings.TargetTemp = MaxTargetTemp - float64(payload[rptOffTempMapped])
	}

	r.Settings.Fan = decodeFan(payload[rptOffFan])
	r.Settings.Vane = decodeVane(payload[rptOffVane])
	// High nibble of the wide vane byte is an adjustment flag on some
	// units; only the low nibble selects the position.
	r.Settings.WideVane = decodeWideVane(payload[rptOffWideVane] & 0x0F)
	return r, nil
}

func decodeRoomTempReport(payload []byte) (*Report, error) {
	if len(payload) <= roomOffTempDirect {
		return nil, fmt.Errorf("%w: room temperature report truncated at %d bytes", ErrMalformedPayload, len(payload))
	}
	r := &Report{Kind: ReportRoomTemp}
	if direct := payload[roomOffTempDirect]; direct >= 128 {
		r.RoomTemp = float64(int(direct)-128) / 2
	} else {
		r.RoomTemp = float64(payload[roomOffTempMapped]) + 10
	}
	return r, nil
}

func decodeStatusReport(payload []byte) (*Report, error) {
	if len(payload) <= statusOffOperating {
		return nil, fmt.Errorf("%w: status report truncated at %d bytes", ErrMalformedPayload, len(payload))
	}
	return &Report{
		Kind:           ReportStatus,
		CompressorFreq: int(payload[statusOffCompressorFreq]),
		Operating:      payload[statusOffOperating] != 0,
	}, nil
}

func decodeStandbyReport(payload []byte) (*Report, error) {
	if len(payload) <= standbyOffFlag {
		return nil, fmt.Errorf("%w: standby report truncated at %d bytes", ErrMalformedPayload, len(payload))
	}
	return &Report{
		Kind:    ReportStandby,
		Standby: payload[standbyOffFlag] != 0,
	}, nil
}
