// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"context"
	"errors"
	"testing"
)

// newTestSync builds a ready session over a fake transport plus a
// synchronizer seeded or not depending on the test.
func newTestSync(t *testing.T) (*fakeTransport, *Session, *Hub, *Synchronizer) {
	t.Helper()
	f := newFakeTransport()
	f.setResponder(handshakeResponder(t))
	s := NewSession(f, testSessionConfig())
	t.Cleanup(func() { s.Close() })
	if err := s.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake error: %v", err)
	}
	hub := NewHub()
	sy := NewSynchronizer(s, hub, SyncConfig{Logger: quietLogger()})
	return f, s, hub, sy
}

// seed feeds the synchronizer its first settings report, which rebuilds
// desired state from the unit.
func seed(t *testing.T, sy *Synchronizer, s Settings) {
	t.Helper()
	p := make([]byte, setPayloadLen)
	p[0] = InfoModeSettings
	if s.Power {
		p[rptOffPower] = 0x01
	}
	p[rptOffMode] = modeCodes[s.Mode]
	p[rptOffFan] = fanCodes[s.Fan]
	p[rptOffVane] = vaneCodes[s.Vane]
	p[rptOffWideVane] = wideVaneCodes[s.WideVane]
	p[rptOffTempDirect] = byte(s.TargetTemp*2) + 128
	sy.HandleReport(NewPacket(TypeGetResponse, p))
}

func drainEvents(sub *Subscription) []Event {
	var events []Event
	for {
		select {
		case ev := <-sub.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

var baseSettings = Settings{
	Power: true, Mode: ModeHeat, TargetTemp: 20,
	Fan: FanAuto, Vane: VaneAuto, WideVane: WideVaneMid,
}

// ============================================================
// Seeding Tests
// ============================================================

func TestSynchronizer_SeedsDesiredFromFirstReport(t *testing.T) {
	_, _, _, sy := newTestSync(t)

	seed(t, sy, baseSettings)

	st := sy.State()
	if st.Desired != baseSettings {
		t.Errorf("Desired mismatch after seed:\n  got  %+v\n  want %+v", st.Desired, baseSettings)
	}
	if st.Observed != baseSettings {
		t.Errorf("Observed mismatch after seed:\n  got  %+v\n  want %+v", st.Observed, baseSettings)
	}
}

func TestSynchronizer_SetDesiredBeforeSeedRejected(t *testing.T) {
	_, _, _, sy := newTestSync(t)

	err := sy.SetDesired(SettingsDelta{TargetTemp: tempPtr(22)})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected before the first report, got %v", err)
	}
}

func TestSynchronizer_NoReconcileBeforeSeed(t *testing.T) {
	f, _, _, sy := newTestSync(t)
	before := len(f.writtenFrames())

	sy.reconcileOnce(context.Background())

	if len(f.writtenFrames()) != before {
		t.Error("Reconcile must not transmit before the first settings report")
	}
}

// ============================================================
// SetDesired Tests
// ============================================================

func TestSynchronizer_SetDesired_Validation(t *testing.T) {
	_, _, _, sy := newTestSync(t)
	seed(t, sy, baseSettings)

	err := sy.SetDesired(SettingsDelta{TargetTemp: tempPtr(50)})
	if !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("Expected ErrValueOutOfRange, got %v", err)
	}
	if st := sy.State(); st.Desired != baseSettings {
		t.Error("Invalid delta must not touch desired state")
	}
}

func TestSynchronizer_SetDesired_NotConnected(t *testing.T) {
	f := newFakeTransport()
	s := NewSession(f, testSessionConfig())
	defer s.Close()
	sy := NewSynchronizer(s, NewHub(), SyncConfig{Logger: quietLogger()})

	err := sy.SetDesired(SettingsDelta{TargetTemp: tempPtr(22)})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestSynchronizer_SetDesired_EmitsPerFieldEvents(t *testing.T) {
	_, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)
	sub := hub.Subscribe()
	defer sub.Close()

	err := sy.SetDesired(SettingsDelta{
		Mode:       modePtr(ModeCool),
		TargetTemp: tempPtr(24),
		Fan:        fanPtr(FanAuto), // already Auto: no event
	})
	if err != nil {
		t.Fatalf("SetDesired error: %v", err)
	}

	events := drainEvents(sub)
	if len(events) != 2 {
		t.Fatalf("Expected exactly 2 desired events, got %d: %+v", len(events), events)
	}
	fields := map[string]bool{}
	for _, ev := range events {
		if ev.Kind != EventDesiredChange {
			t.Errorf("Kind mismatch: %v", ev.Kind)
		}
		fields[ev.Field] = true
	}
	if !fields["mode"] || !fields["target_temp"] {
		t.Errorf("Expected mode and target_temp events, got %v", fields)
	}
}

func TestSynchronizer_SetDesired_Idempotent(t *testing.T) {
	f, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)
	sub := hub.Subscribe()
	defer sub.Close()

	// Every field already matches desired state.
	err := sy.SetDesired(SettingsDelta{
		Power:      boolPtr(true),
		Mode:       modePtr(ModeHeat),
		TargetTemp: tempPtr(20),
	})
	if err != nil {
		t.Fatalf("SetDesired error: %v", err)
	}
	if events := drainEvents(sub); len(events) != 0 {
		t.Errorf("No-op delta must not notify, got %+v", events)
	}

	// And the next reconcile has nothing to send.
	before := len(f.writtenFrames())
	sy.reconcileOnce(context.Background())
	if len(f.writtenFrames()) != before {
		t.Error("No-op delta must not schedule a command")
	}
}

// ============================================================
// Reconciliation Tests
// ============================================================

func TestSynchronizer_Convergence(t *testing.T) {
	f, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)
	sub := hub.Subscribe()
	defer sub.Close()

	var setPayload []byte
	f.setResponder(func(frame []byte) [][]byte {
		if frame[1] != TypeSetRequest {
			return nil
		}
		setPayload = append([]byte(nil), frame[HeaderSize:len(frame)-1]...)
		return [][]byte{mustEncode(t, TypeSetAck, nil)}
	})

	if err := sy.SetDesired(SettingsDelta{Mode: modePtr(ModeCool), TargetTemp: tempPtr(24)}); err != nil {
		t.Fatalf("SetDesired error: %v", err)
	}
	sy.reconcileOnce(context.Background())

	if setPayload == nil {
		t.Fatal("No set command transmitted")
	}
	// Only the diverging fields are flagged.
	if want := byte(flagMode | flagTemp); setPayload[setOffFlags] != want {
		t.Errorf("Flags byte: got 0x%02X, want 0x%02X", setPayload[setOffFlags], want)
	}
	if setPayload[setOffMode] != 0x03 {
		t.Errorf("Mode byte: got 0x%02X, want 0x03 (cool)", setPayload[setOffMode])
	}

	// Observed state is updated optimistically after the ack.
	st := sy.State()
	if st.Observed.Mode != ModeCool || st.Observed.TargetTemp != 24 {
		t.Errorf("Observed not updated after ack: %+v", st.Observed)
	}
	if st.Desired != st.Observed {
		t.Errorf("Desired and observed must agree after convergence:\n  desired  %+v\n  observed %+v", st.Desired, st.Observed)
	}

	// Events: 2 desired changes, 1 applied command, 2 observed changes.
	events := drainEvents(sub)
	var desired, observed, applied int
	for _, ev := range events {
		switch {
		case ev.Kind == EventDesiredChange:
			desired++
		case ev.Kind == EventObservedChange:
			observed++
		case ev.Kind == EventCommandResolved && ev.Outcome == OutcomeApplied:
			applied++
		default:
			t.Errorf("Unexpected event: %+v", ev)
		}
	}
	if desired != 2 || observed != 2 || applied != 1 {
		t.Errorf("Event counts: desired=%d observed=%d applied=%d, want 2/2/1", desired, observed, applied)
	}

	// A second reconcile is a no-op.
	before := len(f.writtenFrames())
	sy.reconcileOnce(context.Background())
	if len(f.writtenFrames()) != before {
		t.Error("Converged state must not retransmit")
	}
}

func TestSynchronizer_Supersession(t *testing.T) {
	f, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)
	sub := hub.Subscribe()
	defer sub.Close()

	f.setResponder(func(frame []byte) [][]byte {
		if frame[1] != TypeSetRequest {
			return nil
		}
		return [][]byte{mustEncode(t, TypeSetAck, nil)}
	})

	// Two desired changes land before the reconcile tick; the first queued
	// command must resolve as superseded, not vanish.
	if err := sy.SetDesired(SettingsDelta{TargetTemp: tempPtr(22)}); err != nil {
		t.Fatalf("SetDesired error: %v", err)
	}
	if err := sy.SetDesired(SettingsDelta{TargetTemp: tempPtr(24)}); err != nil {
		t.Fatalf("SetDesired error: %v", err)
	}
	sy.reconcileOnce(context.Background())

	events := drainEvents(sub)
	var superseded, applied []Event
	for _, ev := range events {
		if ev.Kind != EventCommandResolved {
			continue
		}
		switch ev.Outcome {
		case OutcomeSuperseded:
			superseded = append(superseded, ev)
		case OutcomeApplied:
			applied = append(applied, ev)
		}
	}
	if len(superseded) != 1 {
		t.Fatalf("Expected 1 superseded command, got %d", len(superseded))
	}
	if superseded[0].Delta.TargetTemp == nil || *superseded[0].Delta.TargetTemp != 22 {
		t.Errorf("Superseded delta mismatch: %+v", superseded[0].Delta)
	}
	if len(applied) != 1 {
		t.Fatalf("Expected 1 applied command, got %d", len(applied))
	}
	if applied[0].Delta.TargetTemp == nil || *applied[0].Delta.TargetTemp != 24 {
		t.Errorf("Applied delta mismatch: %+v", applied[0].Delta)
	}
	if st := sy.State(); st.Observed.TargetTemp != 24 {
		t.Errorf("Observed temperature: got %v, want 24", st.Observed.TargetTemp)
	}
}

func TestSynchronizer_CommandFailureResolvesFailed(t *testing.T) {
	f, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)
	sub := hub.Subscribe()
	defer sub.Close()

	f.setResponder(handshakeResponder(t)) // silent for set requests

	if err := sy.SetDesired(SettingsDelta{TargetTemp: tempPtr(24)}); err != nil {
		t.Fatalf("SetDesired error: %v", err)
	}
	sy.reconcileOnce(context.Background())

	var failed *Event
	for _, ev := range drainEvents(sub) {
		if ev.Kind == EventCommandResolved && ev.Outcome == OutcomeFailed {
			e := ev
			failed = &e
		}
	}
	if failed == nil {
		t.Fatal("Expected a failed command resolution")
	}
	if !errors.Is(failed.Err, ErrCommandFailed) {
		t.Errorf("Expected ErrCommandFailed in the event, got %v", failed.Err)
	}
	// Observed state is untouched on failure.
	if st := sy.State(); st.Observed.TargetTemp != 20 {
		t.Errorf("Observed temperature: got %v, want 20", st.Observed.TargetTemp)
	}
}

// ============================================================
// Report Folding Tests
// ============================================================

func TestSynchronizer_ReportCorrectsOptimisticState(t *testing.T) {
	f, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)

	f.setResponder(func(frame []byte) [][]byte {
		if frame[1] != TypeSetRequest {
			return nil
		}
		return [][]byte{mustEncode(t, TypeSetAck, nil)}
	})
	if err := sy.SetDesired(SettingsDelta{TargetTemp: tempPtr(24)}); err != nil {
		t.Fatalf("SetDesired error: %v", err)
	}
	sy.reconcileOnce(context.Background())
	if st := sy.State(); st.Observed.TargetTemp != 24 {
		t.Fatalf("Optimistic update missing: %v", st.Observed.TargetTemp)
	}

	// The unit acked but silently kept 20. The next report is the truth
	// and subscribers see the corrected value.
	sub := hub.Subscribe()
	defer sub.Close()
	corrected := baseSettings
	seed(t, sy, corrected)

	if st := sy.State(); st.Observed.TargetTemp != 20 {
		t.Errorf("Report must correct observed state: got %v, want 20", st.Observed.TargetTemp)
	}
	events := drainEvents(sub)
	var found bool
	for _, ev := range events {
		if ev.Kind == EventObservedChange && ev.Field == "target_temp" {
			found = true
			if v, ok := ev.New.(float64); !ok || v != 20 {
				t.Errorf("Corrected value mismatch: %v", ev.New)
			}
		}
	}
	if !found {
		t.Error("No corrected target_temp event published")
	}
}

func TestSynchronizer_UnchangedReportIsSilent(t *testing.T) {
	_, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)
	sub := hub.Subscribe()
	defer sub.Close()

	seed(t, sy, baseSettings) // identical report

	if events := drainEvents(sub); len(events) != 0 {
		t.Errorf("Identical report must not notify, got %+v", events)
	}
}

func TestSynchronizer_ExtraReports(t *testing.T) {
	_, _, hub, sy := newTestSync(t)
	sub := hub.Subscribe()
	defer sub.Close()

	room := make([]byte, setPayloadLen)
	room[0] = InfoModeRoomTemp
	room[roomOffTempDirect] = 2*21 + 1 + 128 // 21.5 C
	sy.HandleReport(NewPacket(TypeGetResponse, room))

	status := make([]byte, setPayloadLen)
	status[0] = InfoModeStatus
	status[statusOffCompressorFreq] = 33
	status[statusOffOperating] = 0x01
	sy.HandleReport(NewPacket(TypeGetResponse, status))

	standby := make([]byte, setPayloadLen)
	standby[0] = InfoModeStandby
	standby[standbyOffFlag] = 0x01
	sy.HandleReport(NewPacket(TypeGetResponse, standby))

	st := sy.State()
	if st.RoomTemp != 21.5 {
		t.Errorf("Room temperature: got %v, want 21.5", st.RoomTemp)
	}
	if !st.Operating || st.CompressorFreq != 33 {
		t.Errorf("Status mismatch: operating=%v freq=%d", st.Operating, st.CompressorFreq)
	}
	if !st.Standby {
		t.Error("Standby flag not folded")
	}

	fields := map[string]int{}
	for _, ev := range drainEvents(sub) {
		fields[ev.Field]++
	}
	for _, f := range []string{"room_temp", "operating", "compressor_freq", "standby"} {
		if fields[f] != 1 {
			t.Errorf("Expected exactly 1 %s event, got %d", f, fields[f])
		}
	}
}

func TestSynchronizer_IgnoresUndecodableReports(t *testing.T) {
	_, _, hub, sy := newTestSync(t)
	seed(t, sy, baseSettings)
	sub := hub.Subscribe()
	defer sub.Close()

	// Truncated settings report and a non-report type: both ignored.
	sy.HandleReport(NewPacket(TypeGetResponse, []byte{InfoModeSettings, 0x00}))
	sy.HandleReport(NewPacket(TypeSetAck, nil))

	if st := sy.State(); st.Observed != baseSettings {
		t.Errorf("Observed changed on garbage input: %+v", st.Observed)
	}
	if events := drainEvents(sub); len(events) != 0 {
		t.Errorf("Garbage input must not notify, got %+v", events)
	}
}

// ============================================================
// Poll Tests
// ============================================================

func TestSynchronizer_PollFoldsResponse(t *testing.T) {
	f, _, _, sy := newTestSync(t)
	seed(t, sy, baseSettings)

	f.setResponder(func(frame []byte) [][]byte {
		if frame[1] != TypeGetRequest {
			return nil
		}
		room := make([]byte, setPayloadLen)
		room[0] = InfoModeRoomTemp
		room[roomOffTempDirect] = 2*19 + 128
		return [][]byte{mustEncode(t, TypeGetResponse, room)}
	})

	sy.pollOnce(context.Background(), InfoModeRoomTemp)

	if st := sy.State(); st.RoomTemp != 19 {
		t.Errorf("Room temperature: got %v, want 19", st.RoomTemp)
	}
}
