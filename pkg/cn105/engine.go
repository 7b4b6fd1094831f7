// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"context"

	"github.com/sirupsen/logrus"
)

// EngineConfig bundles session and synchronizer configuration.
type EngineConfig struct {
	Session SessionConfig
	Sync    SyncConfig
	Logger  logrus.FieldLogger
}

// Engine is the protocol engine facade: a session manager, a
// synchronizer, and a notification hub wired together over one transport.
// External collaborators (REST, WebSocket, MQTT, debug tools) talk only
// to this type.
type Engine struct {
	session *Session
	sync    *Synchronizer
	hub     *Hub
}

// NewEngine wires an engine over the given transport. The transport is
// owned by the engine from this point on; Close releases it.
func NewEngine(transport Transport, cfg EngineConfig) *Engine {
	if cfg.Logger != nil {
		if cfg.Session.Logger == nil {
			cfg.Session.Logger = cfg.Logger
		}
		if cfg.Sync.Logger == nil {
			cfg.Sync.Logger = cfg.Logger
		}
	}

	e := &Engine{hub: NewHub()}

	userReport := cfg.Session.OnReport
	cfg.Session.OnReport = func(pkt *Packet) {
		if e.sync != nil {
			e.sync.HandleReport(pkt)
		}
		if userReport != nil {
			userReport(pkt)
		}
	}
	userState := cfg.Session.OnStateChange
	cfg.Session.OnStateChange = func(st ConnectionState) {
		e.hub.Publish(Event{Kind: EventConnectionChange, State: st})
		if userState != nil {
			userState(st)
		}
	}

	e.session = NewSession(transport, cfg.Session)
	e.sync = NewSynchronizer(e.session, e.hub, cfg.Sync)
	return e
}

// Run performs the initial handshake and drives the reconcile/poll loops
// until the context is canceled. Handshake failures are retried by the
// loop itself, so Run only returns on cancellation.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.session.Handshake(ctx); err != nil {
		// The unit may not be listening yet; the poll loop keeps
		// retrying the handshake at its own cadence.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return e.sync.Run(ctx)
}

// State returns the engine's state snapshot.
func (e *Engine) State() EngineState {
	return e.sync.State()
}

// SetDesired applies a partial settings change to desired state.
func (e *Engine) SetDesired(delta SettingsDelta) error {
	return e.sync.SetDesired(delta)
}

// Subscribe registers a notification subscriber.
func (e *Engine) Subscribe() *Subscription {
	return e.hub.Subscribe()
}

// Stats returns the session's link counters.
func (e *Engine) Stats() *Stats {
	return e.session.Stats()
}

// Inject transmits pre-framed raw bytes through the session's
// single-flight path. Debug tooling only.
func (e *Engine) Inject(ctx context.Context, raw []byte) (*Packet, error) {
	return e.session.Inject(ctx, raw)
}

// Connection returns the current connection state.
func (e *Engine) Connection() ConnectionState {
	return e.session.State()
}

// Close releases the transport.
func (e *Engine) Close() error {
	return e.session.Close()
}
