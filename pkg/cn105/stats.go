// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import "sync/atomic"

// Stats tracks link-level counters across the life of a session. All
// counters are monotonically increasing and safe for concurrent use.
type Stats struct {
	framesDecoded  atomic.Uint64
	checksumErrors atomic.Uint64
	skippedBytes   atomic.Uint64
	retransmits    atomic.Uint64
	timeouts       atomic.Uint64
	commandsFailed atomic.Uint64
	unsolicited    atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	FramesDecoded  uint64 `json:"frames_decoded"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	SkippedBytes   uint64 `json:"skipped_bytes"`
	Retransmits    uint64 `json:"retransmits"`
	Timeouts       uint64 `json:"timeouts"`
	CommandsFailed uint64 `json:"commands_failed"`
	Unsolicited    uint64 `json:"unsolicited_reports"`
}

// Snapshot returns a consistent-enough copy of all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesDecoded:  s.framesDecoded.Load(),
		ChecksumErrors: s.checksumErrors.Load(),
		SkippedBytes:   s.skippedBytes.Load(),
		Retransmits:    s.retransmits.Load(),
		Timeouts:       s.timeouts.Load(),
		CommandsFailed: s.commandsFailed.Load(),
		Unsolicited:    s.unsolicited.Load(),
	}
}

// FramesDecoded returns the count of valid frames decoded.
func (s *Stats) FramesDecoded() uint64 { return s.framesDecoded.Load() }

// ChecksumErrors returns the count of frames rejected for bad checksums.
func (s *Stats) ChecksumErrors() uint64 { return s.checksumErrors.Load() }

// Retransmits returns the count of request retransmissions.
func (s *Stats) Retransmits() uint64 { return s.retransmits.Load() }

// Timeouts returns the count of response timeouts.
func (s *Stats) Timeouts() uint64 { return s.timeouts.Load() }

// CommandsFailed returns the count of requests that exhausted retries.
func (s *Stats) CommandsFailed() uint64 { return s.commandsFailed.Load() }

// Unsolicited returns the count of reports that arrived with no
// outstanding request.
func (s *Stats) Unsolicited() uint64 { return s.unsolicited.Load() }

// SkippedBytes returns the count of bytes discarded during stream
// resynchronization.
func (s *Stats) SkippedBytes() uint64 { return s.skippedBytes.Load() }
