// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reconcile loop defaults.
const (
	DefaultReconcileInterval = 1 * time.Second
	DefaultPollInterval      = 5 * time.Second
	DefaultConnectRetryDelay = 2 * time.Second
)

// SyncConfig configures a Synchronizer. Zero values select the defaults.
type SyncConfig struct {
	// ReconcileInterval is the period of the desired/observed
	// reconciliation tick.
	ReconcileInterval time.Duration

	// PollInterval is the status poll cadence. Polling is independent of
	// command traffic: a set command does not suppress the next poll, so
	// a command the unit silently lost is corrected by the next report.
	PollInterval time.Duration

	// ConnectRetryDelay paces handshake attempts while disconnected.
	ConnectRetryDelay time.Duration

	Clock  Clock
	Logger logrus.FieldLogger
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = DefaultReconcileInterval
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ConnectRetryDelay == 0 {
		c.ConnectRetryDelay = DefaultConnectRetryDelay
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// pendingCommand is a queued settings change awaiting transmission.
// Every pending command resolves to applied, superseded, or failed; no
// command is dropped silently.
type pendingCommand struct {
	delta     SettingsDelta
	createdAt time.Time
	attempts  int
}

// EngineState is the engine's externally visible state snapshot.
type EngineState struct {
	Desired    Settings        `json:"desired"`
	Observed   Settings        `json:"observed"`
	Connection ConnectionState `json:"-"`
	Connected  bool            `json:"connected"`

	RoomTemp       float64 `json:"room_temperature_c"`
	Operating      bool    `json:"operating"`
	CompressorFreq int     `json:"compressor_frequency"`
	Standby        bool    `json:"standby"`
}

// Synchronizer reconciles locally desired settings with the unit's
// reported state. It exclusively owns Desired, Observed, and the pending
// command; the session manager is only ever called with the lock
// released, so API calls never wait behind a serial exchange.
type Synchronizer struct {
	cfg     SyncConfig
	session *Session
	hub     *Hub
	log     logrus.FieldLogger

	// mu guards the state records below. It is held only for short
	// edits, never across a serial exchange.
	mu       sync.Mutex
	desired  Settings
	observed Settings
	extra    struct {
		roomTemp       float64
		operating      bool
		compressorFreq int
		standby        bool
	}
	// seeded is set once the first settings report arrives. Desired is
	// rebuilt from that report, so a fresh boot never reconciles the
	// unit toward zero values.
	seeded  bool
	pending *pendingCommand

	// lastConnect paces handshake retries independently of the poll tick.
	lastConnect time.Time
}

// NewSynchronizer creates a synchronizer over the given session,
// publishing notifications to hub.
func NewSynchronizer(session *Session, hub *Hub, cfg SyncConfig) *Synchronizer {
	s := &Synchronizer{
		cfg:     cfg.withDefaults(),
		session: session,
		hub:     hub,
	}
	s.log = s.cfg.Logger.WithField("component", "cn105.sync")
	return s
}

// State returns a snapshot of desired, observed, and connection state.
func (s *Synchronizer) State() EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.session.State()
	return EngineState{
		Desired:        s.desired,
		Observed:       s.observed,
		Connection:     st,
		Connected:      st == StateReady,
		RoomTemp:       s.extra.roomTemp,
		Operating:      s.extra.operating,
		CompressorFreq: s.extra.compressorFreq,
		Standby:        s.extra.standby,
	}
}

// SetDesired applies a partial settings change to the desired state. The
// change is validated synchronously; nothing invalid ever reaches the
// wire. A delta that matches current desired state is a no-op: no
// command is scheduled and no notification fires. The actual transmission
// happens on the next reconcile tick.
func (s *Synchronizer) SetDesired(delta SettingsDelta) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	if s.session.State() != StateReady {
		return ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		// Desired is rebuilt from the unit's first settings report;
		// until it arrives there is nothing sound to apply a delta to.
		return ErrNotConnected
	}
	next := delta.Apply(s.desired)
	if next == s.desired {
		return nil
	}
	old := s.desired
	s.desired = next
	events := fieldEvents(EventDesiredChange, old, next)

	// Queue the command covering the current divergence. A queued
	// command not yet on the wire is superseded, not amended, when a
	// newer change lands on the same fields.
	divergence := Diff(s.observed, s.desired)
	if s.pending != nil && !deltaEqual(s.pending.delta, divergence) {
		events = append(events, Event{
			Kind:    EventCommandResolved,
			Outcome: OutcomeSuperseded,
			Delta:   s.pending.delta,
		})
		s.pending = nil
	}
	if s.pending == nil && !divergence.IsEmpty() {
		s.pending = &pendingCommand{delta: divergence, createdAt: s.cfg.Clock.Now()}
	}

	for _, ev := range events {
		s.hub.Publish(ev)
	}
	return nil
}

// Run drives the reconcile and poll loops until the context is canceled.
// The two cadences are independent by design.
func (s *Synchronizer) Run(ctx context.Context) error {
	reconcile := s.cfg.Clock.NewTicker(s.cfg.ReconcileInterval)
	defer reconcile.Stop()
	poll := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	pollModes := []byte{InfoModeSettings, InfoModeRoomTemp, InfoModeStatus, InfoModeStandby}
	pollIdx := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconcile.C():
			s.reconcileOnce(ctx)
		case <-poll.C():
			if !s.ensureConnected(ctx) {
				continue
			}
			s.pollOnce(ctx, pollModes[pollIdx])
			pollIdx = (pollIdx + 1) % len(pollModes)
		}
	}
}

// ensureConnected re-runs the handshake when the link is down or faulted.
// A faulted link is only recoverable through a full handshake restart.
func (s *Synchronizer) ensureConnected(ctx context.Context) bool {
	switch s.session.State() {
	case StateReady:
		return true
	case StateHandshaking:
		return false
	}
	now := s.cfg.Clock.Now()
	if !s.lastConnect.IsZero() && now.Sub(s.lastConnect) < s.cfg.ConnectRetryDelay {
		return false
	}
	s.lastConnect = now
	if err := s.session.Handshake(ctx); err != nil {
		s.log.WithError(err).Warn("handshake failed")
		return false
	}
	return true
}

// reconcileOnce pushes the divergence between desired and observed state
// to the unit as a single set command covering only the differing fields.
func (s *Synchronizer) reconcileOnce(ctx context.Context) {
	if s.session.State() != StateReady {
		return
	}

	s.mu.Lock()
	if !s.seeded {
		s.mu.Unlock()
		return
	}
	delta := Diff(s.observed, s.desired)
	if delta.IsEmpty() {
		s.pending = nil
		s.mu.Unlock()
		return
	}
	if s.pending != nil && !deltaEqual(s.pending.delta, delta) {
		// Desired moved again before the queued command went out; the
		// queued command is superseded, not silently replaced.
		s.hub.Publish(Event{
			Kind:    EventCommandResolved,
			Outcome: OutcomeSuperseded,
			Delta:   s.pending.delta,
		})
		s.pending = nil
	}
	if s.pending == nil {
		s.pending = &pendingCommand{delta: delta, createdAt: s.cfg.Clock.Now()}
	}
	cmd := s.pending
	cmd.attempts++
	s.mu.Unlock()

	req, err := NewSetRequest(cmd.delta)
	if err != nil {
		// Unrepresentable desired state; surface and drop the command.
		s.resolvePending(cmd, OutcomeFailed, err)
		return
	}

	// The lock is never held across the serial exchange.
	_, err = s.session.Do(ctx, req)
	if err != nil {
		if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrLinkFaulted) {
			s.log.WithError(err).Debug("set deferred, link not ready")
			return
		}
		s.log.WithError(err).Warn("set command failed")
		s.resolvePending(cmd, OutcomeFailed, err)
		return
	}

	// Acknowledged: optimistically fold the delta into observed state.
	// The next status report re-derives the truth and overwrites this if
	// the unit rejected part of the command.
	s.mu.Lock()
	old := s.observed
	s.observed = cmd.delta.Apply(s.observed)
	events := fieldEvents(EventObservedChange, old, s.observed)
	if s.pending == cmd {
		s.pending = nil
	}
	s.mu.Unlock()

	s.hub.Publish(Event{Kind: EventCommandResolved, Outcome: OutcomeApplied, Delta: cmd.delta})
	for _, ev := range events {
		s.hub.Publish(ev)
	}
}

func (s *Synchronizer) resolvePending(cmd *pendingCommand, outcome CommandOutcome, err error) {
	s.mu.Lock()
	if s.pending == cmd {
		s.pending = nil
	}
	s.mu.Unlock()
	s.hub.Publish(Event{Kind: EventCommandResolved, Outcome: outcome, Delta: cmd.delta, Err: err})
}

// pollOnce issues one status poll and folds the report into observed
// state.
func (s *Synchronizer) pollOnce(ctx context.Context, infoMode byte) {
	resp, err := s.session.Do(ctx, NewGetRequest(infoMode))
	if err != nil {
		s.log.WithError(err).WithField("info_mode", infoMode).Debug("status poll failed")
		return
	}
	s.HandleReport(resp)
}

// HandleReport folds a report packet into observed state and notifies
// subscribers once per field that actually changed value. It is also the
// unsolicited report path: the unit may emit reports unprompted and they
// are treated identically to poll responses.
func (s *Synchronizer) HandleReport(pkt *Packet) {
	if pkt.Type() != TypeGetResponse {
		return
	}
	report, err := DecodeReport(pkt)
	if err != nil {
		s.log.WithError(err).Debug("undecodable report")
		return
	}

	s.mu.Lock()
	var events []Event
	switch report.Kind {
	case ReportSettings:
		old := s.observed
		next := report.Settings
		if !s.seeded {
			s.desired = next
			s.seeded = true
		}
		// The unit is the source of truth for settings it reports; an
		// optimistic value that disagrees is corrected here and the
		// corrected value is what subscribers see.
		s.observed = next
		events = fieldEvents(EventObservedChange, old, next)
	case ReportRoomTemp:
		if s.extra.roomTemp != report.RoomTemp {
			events = append(events, Event{
				Kind: EventObservedChange, Field: "room_temp",
				Old: s.extra.roomTemp, New: report.RoomTemp,
			})
			s.extra.roomTemp = report.RoomTemp
		}
	case ReportStatus:
		if s.extra.operating != report.Operating {
			events = append(events, Event{
				Kind: EventObservedChange, Field: "operating",
				Old: s.extra.operating, New: report.Operating,
			})
			s.extra.operating = report.Operating
		}
		if s.extra.compressorFreq != report.CompressorFreq {
			events = append(events, Event{
				Kind: EventObservedChange, Field: "compressor_freq",
				Old: s.extra.compressorFreq, New: report.CompressorFreq,
			})
			s.extra.compressorFreq = report.CompressorFreq
		}
	case ReportStandby:
		if s.extra.standby != report.Standby {
			events = append(events, Event{
				Kind: EventObservedChange, Field: "standby",
				Old: s.extra.standby, New: report.Standby,
			})
			s.extra.standby = report.Standby
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.hub.Publish(ev)
	}
}

// fieldEvents emits one event per field that differs between two
// settings snapshots. No-op transitions produce no events.
func fieldEvents(kind EventKind, old, next Settings) []Event {
	var events []Event
	add := func(field string, o, n interface{}) {
		events = append(events, Event{Kind: kind, Field: field, Old: o, New: n})
	}
	if old.Power != next.Power {
		add("power", old.Power, next.Power)
	}
	if old.Mode != next.Mode {
		add("mode", old.Mode, next.Mode)
	}
	if old.TargetTemp != next.TargetTemp {
		add("target_temp", old.TargetTemp, next.TargetTemp)
	}
	if old.Fan != next.Fan {
		add("fan", old.Fan, next.Fan)
	}
	if old.Vane != next.Vane {
		add("vane", old.Vane, next.Vane)
	}
	if old.WideVane != next.WideVane {
		add("wide_vane", old.WideVane, next.WideVane)
	}
	return events
}

func deltaEqual(a, b SettingsDelta) bool {
	eqBool := func(x, y *bool) bool {
		return (x == nil) == (y == nil) && (x == nil || *x == *y)
	}
	eqMode := func(x, y *Mode) bool {
		return (x == nil) == (y == nil) && (x == nil || *x == *y)
	}
	eqFloat := func(x, y *float64) bool {
		return (x == nil) == (y == nil) && (x == nil || *x == *y)
	}
	eqFan := func(x, y *FanSpeed) bool {
		return (x == nil) == (y == nil) && (x == nil || *x == *y)
	}
	eqVane := func(x, y *Vane) bool {
		return (x == nil) == (y == nil) && (x == nil || *x == *y)
	}
	eqWide := func(x, y *WideVane) bool {
		return (x == nil) == (y == nil) && (x == nil || *x == *y)
	}
	return eqBool(a.Power, b.Power) && eqMode(a.Mode, b.Mode) &&
		eqFloat(a.TargetTemp, b.TargetTemp) && eqFan(a.Fan, b.Fan) &&
		eqVane(a.Vane, b.Vane) && eqWide(a.WideVane, b.WideVane)
}
