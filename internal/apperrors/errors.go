// Package apperrors holds the failure taxonomy shared by the capture
// controller and the transcription relay.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by where it occurred in the pipeline
type Kind string

const (
	KindDeviceAccessDenied     Kind = "device_access_denied"
	KindSourceNotSupported     Kind = "source_not_supported"
	KindNoAudioTrackCaptured   Kind = "no_audio_track"
	KindEncodingFailure        Kind = "encoding_failure"
	KindRelayInvocationFailure Kind = "relay_invocation_failure"
	KindUpstreamAPIFailure     Kind = "upstream_api_failure"
	KindEmptyTranscript        Kind = "empty_transcript"
	KindConfig                 Kind = "config"
	KindInvalidRequest         Kind = "invalid_request"
	KindStorage                Kind = "storage"
	KindUnknown                Kind = "unknown"
)

// Error is a classified failure. Message is safe to show to the user;
// Cause is for logs only.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns the text surfaced in notifications and relay responses
func (e *Error) UserMessage() string {
	return e.Message
}

// Soft reports whether the failure is a warning rather than a hard error
func (e *Error) Soft() bool {
	return e.Kind == KindEmptyTranscript
}

// New creates an error without an underlying cause
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. An already classified error is returned unchanged so
// the kind assigned closest to the failure wins.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// IsKind checks whether the first classified error in the chain has the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage extracts the user-facing text from err, falling back to err.Error()
func UserMessage(err error) string {
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
