package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope is returned when a frame is not a JSON envelope
	// with an event name.
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")

	// ErrUnknownEvent is returned for an event name outside the protocol.
	ErrUnknownEvent = errors.New("protocol: unknown event")

	// ErrReservedEvent is returned when a client sends an event only the
	// server may produce.
	ErrReservedEvent = errors.New("protocol: reserved event")

	// ErrMalformedPayload is returned when a payload cannot be decoded or
	// lacks a required field.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

// PayloadError describes a rejected payload.
type PayloadError struct {
	Event string
	Field string // JSON path of the offending field, empty if the payload itself is unreadable
	Err   error
}

func (e *PayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: %s: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("protocol: %s: field %s: %v", e.Event, e.Field, e.Err)
}

// Unwrap reports ErrMalformedPayload alongside the cause.
func (e *PayloadError) Unwrap() []error {
	return []error{ErrMalformedPayload, e.Err}
}

// Error codes carried by the error event.
const (
	CodeMalformedEnvelope = "malformed_envelope"
	CodeUnknownEvent      = "unknown_event"
	CodeReservedEvent     = "reserved_event"
	CodeMalformedPayload  = "malformed_payload"
	CodeInternal          = "internal"
)

// ErrorCode maps a Decode error to the code sent back to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedEnvelope):
		return CodeMalformedEnvelope
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, ErrReservedEvent):
		return CodeReservedEvent
	case errors.Is(err, ErrMalformedPayload):
		return CodeMalformedPayload
	default:
		return CodeInternal
	}
}
