// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

import "errors"

// Frame codec errors.
var (
	// ErrIncomplete signals that the input window holds fewer bytes than a
	// complete frame. It is a flow-control signal, not a failure: the
	// caller should read more bytes and try again.
	ErrIncomplete = errors.New("cn105: incomplete frame")

	// ErrUnknownSync signals that the input window does not begin with the
	// sync byte. The caller should discard one byte and resynchronize.
	ErrUnknownSync = errors.New("cn105: missing sync byte")

	ErrChecksumMismatch = errors.New("cn105: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("cn105: payload too large")
)

// Command catalog errors.
var (
	ErrMalformedPayload = errors.New("cn105: malformed payload")
	ErrValueOutOfRange  = errors.New("cn105: value out of range")
)

// Session errors.
var (
	// ErrNotConnected is returned for settings commands issued before the
	// connect handshake has completed, or after the link has faulted.
	ErrNotConnected = errors.New("cn105: not connected")

	// ErrCommandFailed is returned when a request exhausted its retry
	// ceiling without a matching response.
	ErrCommandFailed = errors.New("cn105: command failed after retries")

	// ErrLinkFaulted is returned when repeated consecutive command
	// failures have faulted the link. Recovery requires a new handshake.
	ErrLinkFaulted = errors.New("cn105: link faulted")

	ErrSessionClosed = errors.New("cn105: session closed")
)
