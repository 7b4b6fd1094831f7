// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport is the byte link to the heat pump, normally a serial port.
// The session manager is its exclusive owner: no other component reads or
// writes it directly.
type Transport = io.ReadWriteCloser

// ConnectionState is the process-wide link state, owned by the session
// manager and transitioned only through defined events.
type ConnectionState int

// Connection states.
const (
	StateDisconnected ConnectionState = iota
	StateHandshaking
	StateReady
	StateFaulted
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session timing and retry defaults. The response timeout reflects the
// observed turnaround of real units at 2400 baud with margin.
const (
	DefaultResponseTimeout = 750 * time.Millisecond
	DefaultRetries         = 3
	DefaultFaultThreshold  = 3
)

// SessionConfig configures a Session. Zero values select the defaults.
type SessionConfig struct {
	// Timeout is the per-attempt response timeout. It is re-armed on
	// every retransmission, never accumulated across retries.
	Timeout time.Duration

	// Retries is the number of retransmissions after the initial send.
	Retries int

	// FaultThreshold is the number of consecutive failed commands after
	// which the link transitions to Faulted. A single command failure
	// never faults the link by itself.
	FaultThreshold int

	Clock  Clock
	Logger logrus.FieldLogger

	// OnReport receives frames that decode successfully but do not
	// correspond to the outstanding request. The unit emits periodic
	// reports unprompted; they are routed here, straight to the
	// synchronizer's observed-state update path.
	OnReport func(*Packet)

	// OnStateChange is invoked after every connection state transition.
	OnStateChange func(ConnectionState)
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultResponseTimeout
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.FaultThreshold == 0 {
		c.FaultThreshold = DefaultFaultThreshold
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

type rxItem struct {
	pkt *Packet
	err error
}

// Session drives the half-duplex serial link: it frames and transmits one
// request at a time, matches responses by packet type correspondence,
// retries on timeout or checksum failure up to the retry ceiling, and
// owns the process-wide connection state. All request/response buffers
// are scoped to a single exchange.
type Session struct {
	cfg       SessionConfig
	transport Transport
	decoder   *Decoder
	stats     *Stats
	log       logrus.FieldLogger

	// mu serializes exchanges: at most one frame is in flight at a time.
	// Concurrent callers queue on the mutex, never interleave.
	mu sync.Mutex

	// consecutiveFails is guarded by mu.
	consecutiveFails int

	stateMu sync.Mutex
	state   ConnectionState

	waiterMu sync.Mutex
	waiter   chan rxItem

	closed     atomic.Bool
	readerDone chan struct{}
}

// NewSession creates a session over the given transport and starts its
// reader. The caller must Close the session to release the transport.
func NewSession(transport Transport, cfg SessionConfig) *Session {
	s := &Session{
		cfg:        cfg.withDefaults(),
		transport:  transport,
		decoder:    NewDecoder(),
		stats:      &Stats{},
		state:      StateDisconnected,
		readerDone: make(chan struct{}),
	}
	s.log = s.cfg.Logger.WithField("component", "cn105.session")
	go s.reader()
	return s
}

// Stats returns the session's link counters.
func (s *Session) Stats() *Stats {
	return s.stats
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(next ConnectionState) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()
	if prev == next {
		return
	}
	s.log.WithFields(logrus.Fields{"from": prev.String(), "to": next.String()}).Info("connection state change")
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(next)
	}
}

// Close releases the transport and terminates the reader. Any in-flight
// exchange fails with ErrSessionClosed.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.transport.Close()
	s.setState(StateDisconnected)
	<-s.readerDone
	return err
}

// reader pumps transport bytes through the frame decoder and routes
// completed frames either to the waiting exchange or, when nothing is
// outstanding, to the unsolicited report path.
func (s *Session) reader() {
	defer close(s.readerDone)
	buf := make([]byte, 64)
	for {
		n, err := s.transport.Read(buf)
		for i := 0; i < n; i++ {
			pkt, decodeErr := s.decoder.DecodeByte(buf[i])
			if skipped := s.decoder.TakeSkippedBytes(); skipped > 0 {
				s.stats.skippedBytes.Add(uint64(skipped))
			}
			if decodeErr != nil {
				if errors.Is(decodeErr, ErrChecksumMismatch) {
					s.stats.checksumErrors.Add(1)
				}
				s.deliver(rxItem{err: decodeErr})
				continue
			}
			if pkt != nil {
				s.stats.framesDecoded.Add(1)
				s.deliver(rxItem{pkt: pkt})
			}
		}
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.log.WithError(err).Warn("transport read failed")
			s.deliver(rxItem{err: fmt.Errorf("%w: %v", ErrSessionClosed, err)})
			s.setState(StateDisconnected)
			return
		}
	}
}

func (s *Session) deliver(item rxItem) {
	s.waiterMu.Lock()
	w := s.waiter
	s.waiterMu.Unlock()
	if w != nil {
		select {
		case w <- item:
			return
		default:
			// Waiter buffer full; fall through so packets still reach
			// the unsolicited path instead of being lost.
		}
	}
	if item.pkt != nil {
		s.routeUnsolicited(item.pkt)
	} else if item.err != nil {
		s.log.WithError(item.err).Debug("decode error with no outstanding request")
	}
}

func (s *Session) routeUnsolicited(pkt *Packet) {
	s.stats.unsolicited.Add(1)
	s.log.WithField("type", pkt.TypeName()).Debug("unsolicited frame")
	if s.cfg.OnReport != nil {
		s.cfg.OnReport(pkt)
	}
}

func (s *Session) registerWaiter() chan rxItem {
	w := make(chan rxItem, 8)
	s.waiterMu.Lock()
	s.waiter = w
	s.waiterMu.Unlock()
	return w
}

func (s *Session) unregisterWaiter() {
	s.waiterMu.Lock()
	s.waiter = nil
	s.waiterMu.Unlock()
}

// Handshake performs the connect exchange. It must succeed once after
// link (re)establishment before any settings command is accepted, and is
// also the recovery path out of the Faulted state.
func (s *Session) Handshake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setState(StateHandshaking)
	frame, err := NewConnectRequest().Bytes()
	if err != nil {
		return err
	}
	if _, err := s.exchange(ctx, frame, TypeConnectAck, s.cfg.Retries); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("handshake: %w", err)
	}

	// Extended connect is best-effort: older units never answer it.
	if frame, err := NewExtendedConnectRequest().Bytes(); err == nil {
		if _, err := s.exchange(ctx, frame, TypeExtendedConnectAck, 0); err != nil {
			s.log.Debug("no extended connect response, continuing")
		}
	}

	s.consecutiveFails = 0
	s.setState(StateReady)
	return nil
}

// Do transmits a semantic request and waits for its matching response.
// Requests issued while the session is not Ready fail immediately with
// ErrNotConnected rather than queuing indefinitely. Concurrent callers
// are serialized; only one request is ever outstanding.
func (s *Session) Do(ctx context.Context, req *Packet) (*Packet, error) {
	matchType, ok := ResponseTypeFor(req.Type())
	if !ok {
		return nil, fmt.Errorf("%w: no response correspondence for type 0x%02X", ErrMalformedPayload, req.Type())
	}
	frame, err := req.Bytes()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateReady:
	case StateFaulted:
		return nil, ErrLinkFaulted
	default:
		return nil, ErrNotConnected
	}

	resp, err := s.exchange(ctx, frame, matchType, s.cfg.Retries)
	if err != nil {
		if errors.Is(err, ErrCommandFailed) {
			s.stats.commandsFailed.Add(1)
			s.consecutiveFails++
			if s.consecutiveFails >= s.cfg.FaultThreshold {
				s.setState(StateFaulted)
			}
		}
		return nil, err
	}
	s.consecutiveFails = 0
	return resp, nil
}

// Inject transmits pre-framed raw bytes through the single-flight path
// and returns the next frame the unit sends within one timeout, or nil if
// it stays silent. This is the debug injector entry point: no retries, no
// handshake gate, no interpretation.
func (s *Session) Inject(ctx context.Context, raw []byte) (*Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.registerWaiter()
	defer s.unregisterWaiter()

	if _, err := s.transport.Write(raw); err != nil {
		return nil, fmt.Errorf("inject write: %w", err)
	}
	timer := s.cfg.Clock.NewTimer(s.cfg.Timeout)
	defer timer.Stop()
	for {
		select {
		case item := <-w:
			if item.err != nil {
				if errors.Is(item.err, ErrSessionClosed) {
					return nil, item.err
				}
				continue
			}
			return item.pkt, nil
		case <-timer.C():
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// exchange runs one request through the Sent -> AwaitingResponse cycle,
// retransmitting the identical frame on timeout or response checksum
// failure up to the given retry ceiling. The timeout timer is re-armed on
// every retransmission. Callers must hold s.mu.
func (s *Session) exchange(ctx context.Context, frame []byte, matchType byte, retries int) (*Packet, error) {
	w := s.registerWaiter()
	defer s.unregisterWaiter()

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			s.stats.retransmits.Add(1)
			s.log.WithFields(logrus.Fields{"attempt": attempt, "want": FormatPacketType(matchType)}).Debug("retransmitting")
		}
		if _, err := s.transport.Write(frame); err != nil {
			return nil, fmt.Errorf("transport write: %w", err)
		}

		timer := s.cfg.Clock.NewTimer(s.cfg.Timeout)
		resp, err := s.await(ctx, w, timer, matchType)
		timer.Stop()
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, errAttemptFailed) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: no %s after %d attempts", ErrCommandFailed, FormatPacketType(matchType), retries+1)
}

// errAttemptFailed marks a single attempt as retryable.
var errAttemptFailed = errors.New("attempt failed")

func (s *Session) await(ctx context.Context, w chan rxItem, timer Timer, matchType byte) (*Packet, error) {
	for {
		select {
		case item := <-w:
			if item.err != nil {
				if errors.Is(item.err, ErrSessionClosed) {
					return nil, item.err
				}
				if errors.Is(item.err, ErrChecksumMismatch) {
					// The response may have been ours; retransmit.
					return nil, fmt.Errorf("%w: %v", errAttemptFailed, item.err)
				}
				// Other decode noise: keep waiting on the same timer.
				continue
			}
			if item.pkt.Type() == matchType {
				return item.pkt, nil
			}
			s.routeUnsolicited(item.pkt)
		case <-timer.C():
			s.stats.timeouts.Add(1)
			return nil, fmt.Errorf("%w: response timeout", errAttemptFailed)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
