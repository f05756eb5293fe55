// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"errors"
	"fmt"
)

// Errors reported by the connect and send paths. These never cross the
// public API as failures; they appear in state notifications and determine
// the boolean results of Send and TryConnect.
var (
	// ErrConnectTimeout indicates a connect or accept attempt that did not
	// complete within the configured timeout.
	ErrConnectTimeout = errors.New("connect timed out")

	// ErrSendTimeout indicates the send guard could not be acquired within
	// the send timeout. The payload was not written.
	ErrSendTimeout = errors.New("send guard timed out")
)

// A ProtocolReason classifies a frame-level protocol violation.
type ProtocolReason int

const (
	// InvalidToken means the first two bytes of a frame did not match the
	// frame token, typically because the stream is misaligned or corrupted.
	InvalidToken ProtocolReason = 1 + iota

	// UnexpectedEndOfStream means the stream ended before a complete frame
	// was read.
	UnexpectedEndOfStream

	// OversizeMessage means a payload length exceeded MaxPayloadSize.
	OversizeMessage
)

func (r ProtocolReason) String() string {
	switch r {
	case InvalidToken:
		return "INVALID_TOKEN"
	case UnexpectedEndOfStream:
		return "UNEXPECTED_END_OF_STREAM"
	case OversizeMessage:
		return "OVERSIZE_MESSAGE"
	default:
		return fmt.Sprintf("reason %d", int(r))
	}
}

// ProtocolError is the concrete type of frame decoding and encoding errors.
type ProtocolError struct {
	Reason ProtocolReason
	Detail string // additional context, may be empty
}

// Error satisfies the error interface.
func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol error: %v", e.Reason)
	}
	return fmt.Sprintf("protocol error: %v: %s", e.Reason, e.Detail)
}
