// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"bytes"
	"errors"
	"testing"
)

func boolPtr(v bool) *bool { return &v }
func modePtr(v Mode) *Mode { return &v }
func tempPtr(v float64) *float64 { return &v }
func fanPtr(v FanSpeed) *FanSpeed { return &v }
func vanePtr(v Vane) *Vane { return &v }
func widePtr(v WideVane) *WideVane { return &v }

// ============================================================
// Command Builder Tests
// ============================================================

func TestNewConnectRequest_GoldenBytes(t *testing.T) {
	// Full connect frame as captured from a live unit.
	want := []byte{0xFC, 0x5A, 0x01, 0x30, 0x02, 0xCA, 0x01, 0xA8}
	frame, err := NewConnectRequest().Bytes()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("Connect frame mismatch:\n  got  %X\n  want %X", frame, want)
	}
}

func TestNewGetRequest(t *testing.T) {
	pkt := NewGetRequest(InfoModeRoomTemp)
	if pkt.Type() != TypeGetRequest {
		t.Errorf("Type mismatch: got 0x%02X", pkt.Type())
	}
	payload := pkt.Payload()
	if len(payload) != setPayloadLen {
		t.Fatalf("Expected %d-byte payload, got %d", setPayloadLen, len(payload))
	}
	if payload[0] != InfoModeRoomTemp {
		t.Errorf("Info mode mismatch: got 0x%02X", payload[0])
	}
	for i := 1; i < len(payload); i++ {
		if payload[i] != 0 {
			t.Errorf("Byte %d should be zero, got 0x%02X", i, payload[i])
		}
	}
}

func TestNewSetRequest_AllFields(t *testing.T) {
	delta := SettingsDelta{
		Power:      boolPtr(true),
		Mode:       modePtr(ModeHeat),
		TargetTemp: tempPtr(21.5),
		Fan:        fanPtr(FanMed),
		Vane:       vanePtr(VaneSwing),
		WideVane:   widePtr(WideVaneMid),
	}
	pkt, err := NewSetRequest(delta)
	if err != nil {
		t.Fatalf("NewSetRequest error: %v", err)
	}
	p := pkt.Payload()

	if p[setOffSubcommand] != 0x01 {
		t.Errorf("Subcommand byte: got 0x%02X", p[setOffSubcommand])
	}
	if want := byte(flagPower | flagMode | flagTemp | flagFan | flagVane); p[setOffFlags] != want {
		t.Errorf("Flags byte: got 0x%02X, want 0x%02X", p[setOffFlags], want)
	}
	if p[setOffFlags2] != flag2WideVane {
		t.Errorf("Flags2 byte: got 0x%02X, want 0x%02X", p[setOffFlags2], flag2WideVane)
	}
	if p[setOffPower] != 0x01 {
		t.Errorf("Power byte: got 0x%02X", p[setOffPower])
	}
	if p[setOffMode] != 0x01 {
		t.Errorf("Mode byte: got 0x%02X, want 0x01 (heat)", p[setOffMode])
	}
	// 21.5 degrees: mapped encoding truncates to whole degrees, direct
	// encoding keeps the half degree.
	if p[setOffTempMapped] != 9 {
		t.Errorf("Mapped temperature byte: got %d, want 9", p[setOffTempMapped])
	}
	if p[setOffTempDirect] != 2*21+1+128 {
		t.Errorf("Direct temperature byte: got %d, want %d", p[setOffTempDirect], 2*21+1+128)
	}
	if p[setOffFan] != 0x03 {
		t.Errorf("Fan byte: got 0x%02X, want 0x03 (med)", p[setOffFan])
	}
	if p[setOffVane] != 0x07 {
		t.Errorf("Vane byte: got 0x%02X, want 0x07 (swing)", p[setOffVane])
	}
	if p[setOffWideVane] != 0x03 {
		t.Errorf("Wide vane byte: got 0x%02X, want 0x03 (mid)", p[setOffWideVane])
	}
}

func TestNewSetRequest_PartialDeltaFlagsOnlyPresentFields(t *testing.T) {
	pkt, err := NewSetRequest(SettingsDelta{TargetTemp: tempPtr(19)})
	if err != nil {
		t.Fatalf("NewSetRequest error: %v", err)
	}
	p := pkt.Payload()
	if p[setOffFlags] != flagTemp {
		t.Errorf("Flags byte: got 0x%02X, want 0x%02X", p[setOffFlags], flagTemp)
	}
	if p[setOffFlags2] != 0 {
		t.Errorf("Flags2 byte should be zero, got 0x%02X", p[setOffFlags2])
	}
	if p[setOffPower] != 0 || p[setOffMode] != 0 || p[setOffFan] != 0 {
		t.Error("Unflagged field bytes must stay zero")
	}
	if p[setOffTempMapped] != 12 {
		t.Errorf("Mapped temperature byte: got %d, want 12", p[setOffTempMapped])
	}
	if p[setOffTempDirect] != 2*19+128 {
		t.Errorf("Direct temperature byte: got %d, want %d", p[setOffTempDirect], 2*19+128)
	}
}

func TestNewSetRequest_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		delta SettingsDelta
	}{
		{"temperature too low", SettingsDelta{TargetTemp: tempPtr(10)}},
		{"temperature too high", SettingsDelta{TargetTemp: tempPtr(35)}},
		{"unknown mode", SettingsDelta{Mode: modePtr(ModeUnknown)}},
		{"unknown fan", SettingsDelta{Fan: fanPtr(FanSpeed("Turbo"))}},
		{"unknown vane", SettingsDelta{Vane: vanePtr(VaneUnknown)}},
		{"unknown wide vane", SettingsDelta{WideVane: widePtr(WideVaneUnknown)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSetRequest(tt.delta); !errors.Is(err, ErrValueOutOfRange) {
				t.Errorf("Expected ErrValueOutOfRange, got %v", err)
			}
		})
	}
}

func TestResponseTypeFor(t *testing.T) {
	tests := []struct {
		req  byte
		resp byte
		ok   bool
	}{
		{TypeConnectRequest, TypeConnectAck, true},
		{TypeExtendedConnect, TypeExtendedConnectAck, true},
		{TypeSetRequest, TypeSetAck, true},
		{TypeGetRequest, TypeGetResponse, true},
		{0x99, 0, false},
	}
	for _, tt := range tests {
		resp, ok := ResponseTypeFor(tt.req)
		if resp != tt.resp || ok != tt.ok {
			t.Errorf("ResponseTypeFor(0x%02X) = (0x%02X, %v), want (0x%02X, %v)",
				tt.req, resp, ok, tt.resp, tt.ok)
		}
	}
}

// ============================================================
// Report Decode Tests
// ============================================================

func settingsReportPayload() []byte {
	p := make([]byte, setPayloadLen)
	p[0] = InfoModeSettings
	p[rptOffPower] = 0x01
	p[rptOffMode] = 0x03 // cool
	p[rptOffTempMapped] = 11
	p[rptOffFan] = 0x05 // high
	p[rptOffVane] = 0x02
	p[rptOffWideVane] = 0x83         // adjustment flag set in high nibble
	p[rptOffTempDirect] = 2*22 + 128 // 22.0 C
	return p
}

func TestDecodeReport_Settings(t *testing.T) {
	pkt := NewPacket(TypeGetResponse, settingsReportPayload())
	r, err := DecodeReport(pkt)
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.Kind != ReportSettings {
		t.Fatalf("Kind mismatch: got %v", r.Kind)
	}
	want := Settings{
		Power:      true,
		Mode:       ModeCool,
		TargetTemp: 22,
		Fan:        FanHigh,
		Vane:       VanePosition2,
		WideVane:   WideVaneMid,
	}
	if r.Settings != want {
		t.Errorf("Settings mismatch:\n  got  %+v\n  want %+v", r.Settings, want)
	}
	if r.ISee {
		t.Error("ISee should be false")
	}
}

func TestDecodeReport_Settings_ISeeAndMappedTemp(t *testing.T) {
	p := settingsReportPayload()
	p[rptOffMode] = 0x01 | modeISeeBit // heat with i-see sensor
	p[rptOffTempDirect] = 0            // legacy firmware: only mapped encoding
	p[rptOffTempMapped] = 11           // 31 - 11 = 20 C

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if !r.ISee {
		t.Error("ISee should be true")
	}
	if r.Settings.Mode != ModeHeat {
		t.Errorf("Mode mismatch: got %v, want Heat", r.Settings.Mode)
	}
	if r.Settings.TargetTemp != 20 {
		t.Errorf("Target temperature mismatch: got %v, want 20", r.Settings.TargetTemp)
	}
}

func TestDecodeReport_Settings_ISeeWithAutoMode(t *testing.T) {
	// The i-see sensor adds 0x08 to the mode byte rather than setting a
	// bit, so Auto (itself 0x08) with i-see reports as 0x10.
	p := settingsReportPayload()
	p[rptOffMode] = 0x10

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if !r.ISee {
		t.Error("ISee should be true for mode byte 0x10")
	}
	if r.Settings.Mode != ModeAuto {
		t.Errorf("Mode mismatch: got %v, want Auto", r.Settings.Mode)
	}

	// Plain Auto without i-see must stay below the offset threshold.
	p[rptOffMode] = 0x08
	r, err = DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.ISee {
		t.Error("ISee should be false for mode byte 0x08")
	}
	if r.Settings.Mode != ModeAuto {
		t.Errorf("Mode mismatch: got %v, want Auto", r.Settings.Mode)
	}
}

func TestDecodeReport_Settings_UnknownCodes(t *testing.T) {
	p := settingsReportPayload()
	p[rptOffMode] = 0x55
	p[rptOffFan] = 0x44
	p[rptOffVane] = 0x66
	p[rptOffWideVane] = 0x0F

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("Unknown codes must not fail decode: %v", err)
	}
	if r.Settings.Mode != ModeUnknown || r.Settings.Fan != FanUnknown ||
		r.Settings.Vane != VaneUnknown || r.Settings.WideVane != WideVaneUnknown {
		t.Errorf("Expected Unknown sentinels, got %+v", r.Settings)
	}
}

func TestDecodeReport_RoomTemp(t *testing.T) {
	p := make([]byte, setPayloadLen)
	p[0] = InfoModeRoomTemp
	p[roomOffTempDirect] = 2*23 + 1 + 128 // 23.5 C
	p[roomOffTempMapped] = 13

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.Kind != ReportRoomTemp {
		t.Fatalf("Kind mismatch: got %v", r.Kind)
	}
	if r.RoomTemp != 23.5 {
		t.Errorf("Room temperature mismatch: got %v, want 23.5", r.RoomTemp)
	}

	// Legacy firmware leaves the direct byte zero.
	p[roomOffTempDirect] = 0
	r, err = DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.RoomTemp != 23 {
		t.Errorf("Legacy room temperature mismatch: got %v, want 23", r.RoomTemp)
	}

	// A direct byte below the 128 offset is not a valid direct encoding;
	// it must fall back to the mapped byte instead of wrapping.
	p[roomOffTempDirect] = 0x40
	r, err = DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.RoomTemp != 23 {
		t.Errorf("Sub-offset direct byte: got %v, want mapped fallback 23", r.RoomTemp)
	}
}

func TestDecodeReport_Settings_SubOffsetDirectTemp(t *testing.T) {
	p := settingsReportPayload()
	p[rptOffTempDirect] = 0x40 // below the 128 offset, not a direct value
	p[rptOffTempMapped] = 11   // 31 - 11 = 20 C

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.Settings.TargetTemp != 20 {
		t.Errorf("Target temperature: got %v, want mapped fallback 20", r.Settings.TargetTemp)
	}
}

func TestDecodeReport_Status(t *testing.T) {
	p := make([]byte, setPayloadLen)
	p[0] = InfoModeStatus
	p[statusOffCompressorFreq] = 42
	p[statusOffOperating] = 0x01

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.Kind != ReportStatus || r.CompressorFreq != 42 || !r.Operating {
		t.Errorf("Status mismatch: %+v", r)
	}
}

func TestDecodeReport_Standby(t *testing.T) {
	p := make([]byte, setPayloadLen)
	p[0] = InfoModeStandby
	p[standbyOffFlag] = 0x01

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("DecodeReport error: %v", err)
	}
	if r.Kind != ReportStandby || !r.Standby {
		t.Errorf("Standby mismatch: %+v", r)
	}
}

func TestDecodeReport_UnknownInfoMode(t *testing.T) {
	p := make([]byte, setPayloadLen)
	p[0] = 0x20
	p[5] = 0xAB

	r, err := DecodeReport(NewPacket(TypeGetResponse, p))
	if err != nil {
		t.Fatalf("Unknown info mode must not fail decode: %v", err)
	}
	if r.Kind != ReportUnknown || r.InfoMode != 0x20 {
		t.Errorf("Unknown report mismatch: %+v", r)
	}
	if !bytes.Equal(r.Raw, p) {
		t.Error("Raw payload must pass through unchanged")
	}
}

func TestDecodeReport_Malformed(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
	}{
		{"wrong packet type", NewPacket(TypeSetAck, []byte{InfoModeSettings})},
		{"empty payload", NewPacket(TypeGetResponse, nil)},
		{"truncated settings", NewPacket(TypeGetResponse, []byte{InfoModeSettings, 0, 0, 0})},
		{"truncated room temp", NewPacket(TypeGetResponse, []byte{InfoModeRoomTemp, 0, 0})},
		{"truncated status", NewPacket(TypeGetResponse, []byte{InfoModeStatus, 0, 0})},
		{"truncated standby", NewPacket(TypeGetResponse, []byte{InfoModeStandby})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeReport(tt.pkt); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

// ============================================================
// Settings Delta Tests
// ============================================================

func TestSettingsDelta_ApplyAndDiff(t *testing.T) {
	base := Settings{
		Power: true, Mode: ModeHeat, TargetTemp: 20,
		Fan: FanAuto, Vane: VaneAuto, WideVane: WideVaneMid,
	}
	delta := SettingsDelta{Mode: modePtr(ModeCool), TargetTemp: tempPtr(24)}

	next := delta.Apply(base)
	if next.Mode != ModeCool || next.TargetTemp != 24 {
		t.Errorf("Apply result mismatch: %+v", next)
	}
	if next.Power != base.Power || next.Fan != base.Fan {
		t.Error("Apply must not touch absent fields")
	}

	back := Diff(base, next)
	if back.Mode == nil || *back.Mode != ModeCool {
		t.Errorf("Diff missed mode change: %+v", back)
	}
	if back.TargetTemp == nil || *back.TargetTemp != 24 {
		t.Errorf("Diff missed temperature change: %+v", back)
	}
	if back.Power != nil || back.Fan != nil || back.Vane != nil || back.WideVane != nil {
		t.Errorf("Diff flagged unchanged fields: %+v", back)
	}

	if !Diff(base, base).IsEmpty() {
		t.Error("Diff of identical settings must be empty")
	}
}

func TestSettingsDelta_Merge(t *testing.T) {
	older := SettingsDelta{Power: boolPtr(true), TargetTemp: tempPtr(20)}
	newer := SettingsDelta{TargetTemp: tempPtr(22), Fan: fanPtr(FanHigh)}

	merged := older.Merge(newer)
	if merged.Power == nil || !*merged.Power {
		t.Error("Merge dropped the older power field")
	}
	if merged.TargetTemp == nil || *merged.TargetTemp != 22 {
		t.Error("Merge must prefer the newer temperature")
	}
	if merged.Fan == nil || *merged.Fan != FanHigh {
		t.Error("Merge dropped the newer fan field")
	}
}
