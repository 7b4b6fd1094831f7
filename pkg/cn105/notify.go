// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind distinguishes the notification streams the engine publishes.
type EventKind string

// Event kinds.
const (
	EventObservedChange   EventKind = "observed"
	EventDesiredChange    EventKind = "desired"
	EventConnectionChange EventKind = "connection"
	EventCommandResolved  EventKind = "command"
)

// CommandOutcome is the terminal state of a pending command. Every
// pending command resolves to exactly one outcome; none are dropped
// silently.
type CommandOutcome string

// Command outcomes.
const (
	OutcomeApplied    CommandOutcome = "applied"
	OutcomeSuperseded CommandOutcome = "superseded"
	OutcomeFailed     CommandOutcome = "failed"
)

// Event is a single engine notification. Field/Old/New are set for
// observed and desired change events, State for connection events, and
// Outcome/Delta/Err for command resolution events.
type Event struct {
	Kind  EventKind
	Time  time.Time
	Field string
	Old   interface{}
	New   interface{}

	State ConnectionState

	Outcome CommandOutcome
	Delta   SettingsDelta
	Err     error
}

// Hub fans engine notifications out to subscribers. Publishing never
// blocks: a subscriber that stops draining its channel loses events and
// the loss is counted, so a stuck REST or WebSocket client cannot stall
// the reconcile loop.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	dropped atomic.Uint64
}

// Subscription is one subscriber's event stream.
type Subscription struct {
	hub *Hub
	ch  chan Event
}

// Events returns the subscriber's event channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close removes the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s]; ok {
		delete(s.hub.subs, s)
		close(s.ch)
	}
}

// NewHub creates an empty notification hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber with a buffered event channel.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{hub: h, ch: make(chan Event, 32)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Publish delivers an event to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events lost to slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
