// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string for the
// monitor and send tools.
func FormatPacket(p *Packet) string {
	timestamp := p.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, p.TypeName(), p.Type(), p.Length())
	if p.Length() > 0 {
		result += formatPayload(p)
	}
	return result
}

// FormatPacketType returns the human-readable name for a packet type.
func FormatPacketType(typ byte) string {
	switch typ {
	case TypeConnectRequest:
		return "CONNECT_REQUEST"
	case TypeConnectAck:
		return "CONNECT_ACK"
	case TypeExtendedConnect:
		return "EXTENDED_CONNECT"
	case TypeExtendedConnectAck:
		return "EXTENDED_CONNECT_ACK"
	case TypeSetRequest:
		return "SET_REQUEST"
	case TypeSetAck:
		return "SET_ACK"
	case TypeGetRequest:
		return "GET_REQUEST"
	case TypeGetResponse:
		return "GET_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// FormatInfoMode returns the human-readable name for an info mode byte.
func FormatInfoMode(mode byte) string {
	switch mode {
	case InfoModeSettings:
		return "SETTINGS"
	case InfoModeRoomTemp:
		return "ROOM_TEMP"
	case InfoModeTimers:
		return "TIMERS"
	case InfoModeStatus:
		return "STATUS"
	case InfoModeStandby:
		return "STANDBY"
	default:
		return fmt.Sprintf("INFO_0x%02X", mode)
	}
}

func formatPayload(p *Packet) string {
	payload := p.Payload()

	switch p.Type() {
	case TypeGetRequest:
		return fmt.Sprintf("  Requesting: %s\n", FormatInfoMode(payload[0]))

	case TypeGetResponse:
		report, err := DecodeReport(p)
		if err != nil {
			return fmt.Sprintf("  (undecodable: %v)\n%s", err, hexDump(payload))
		}
		return formatReport(report)

	case TypeSetRequest:
		return formatSetRequest(payload)

	case TypeSetAck:
		return "  (acknowledged)\n"
	}

	return hexDump(payload)
}

func formatReport(r *Report) string {
	switch r.Kind {
	case ReportSettings:
		s := r.Settings
		power := "Off"
		if s.Power {
			power = "On"
		}
		line := fmt.Sprintf("  Settings: power=%s mode=%s target=%.1f°C fan=%s vane=%s widevane=%s",
			power, s.Mode, s.TargetTemp, s.Fan, s.Vane, s.WideVane)
		if r.ISee {
			line += " isee=yes"
		}
		return line + "\n"
	case ReportRoomTemp:
		return fmt.Sprintf("  Room temperature: %.1f°C\n", r.RoomTemp)
	case ReportStatus:
		return fmt.Sprintf("  Status: operating=%t compressor=%dHz\n", r.Operating, r.CompressorFreq)
	case ReportStandby:
		return fmt.Sprintf("  Standby: %t\n", r.Standby)
	default:
		return fmt.Sprintf("  %s report:\n%s", FormatInfoMode(r.InfoMode), hexDump(r.Raw))
	}
}

func formatSetRequest(payload []byte) string {
	if len(payload) < setPayloadLen {
		return hexDump(payload)
	}
	var fields []string
	flags := payload[setOffFlags]
	if flags&flagPower != 0 {
		power := "Off"
		if payload[setOffPower] != 0 {
			power = "On"
		}
		fields = append(fields, "power="+power)
	}
	if flags&flagMode != 0 {
		fields = append(fields, fmt.Sprintf("mode=%s", decodeMode(payload[setOffMode])))
	}
	if flags&flagTemp != 0 {
		temp := MaxTargetTemp - float64(payload[setOffTempMapped])
		if direct := payload[setOffTempDirect]; direct >= 128 {
			temp = float64(int(direct)-128) / 2
		}
		fields = append(fields, fmt.Sprintf("target=%.1f°C", temp))
	}
	if flags&flagFan != 0 {
		fields = append(fields, fmt.Sprintf("fan=%s", decodeFan(payload[setOffFan])))
	}
	if flags&flagVane != 0 {
		fields = append(fields, fmt.Sprintf("vane=%s", decodeVane(payload[setOffVane])))
	}
	if payload[setOffFlags2]&flag2WideVane != 0 {
		fields = append(fields, fmt.Sprintf("widevane=%s", decodeWideVane(payload[setOffWideVane]&0x0F)))
	}
	if len(fields) == 0 {
		return "  Set: (no fields flagged)\n"
	}
	return "  Set: " + strings.Join(fields, " ") + "\n"
}

func hexDump(data []byte) string {
	var b strings.Builder
	b.WriteString("  Payload: ")
	for i, v := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n           ")
		}
		fmt.Fprintf(&b, "%02X ", v)
	}
	b.WriteString("\n")
	return b.String()
}
