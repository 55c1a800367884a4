package core

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies engine errors by the remediation they call for.
type Kind int

const (
	// KindUnknown is an error the engine did not classify.
	KindUnknown Kind = iota
	// KindValidation is a rejected request.
	KindValidation
	// KindProtocol is a violation of the stream protocol. Fatal.
	KindProtocol
	// KindChunk is a per-chunk synthesis failure. Not fatal.
	KindChunk
	// KindTransport is a network failure after the stream was open.
	KindTransport
	// KindTimeout is a stream that did not open or produce a first byte in time.
	KindTimeout
	// KindPlatform is a playback primitive or sink failure.
	KindPlatform
	// KindIncomplete is an asset with missing chunks.
	KindIncomplete
	// KindPersistence is an upload or work-creation failure.
	KindPersistence
	// KindCancelled is a user-initiated stop.
	KindCancelled
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProtocol:
		return "protocol"
	case KindChunk:
		return "chunk"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindPlatform:
		return "platform"
	case KindIncomplete:
		return "incomplete"
	case KindPersistence:
		return "persistence"
	case KindCancelled:
		return "cancelled"
	case KindUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

var (
	// ErrProtocolViolation indicates an out-of-order, duplicate or otherwise invalid event sequence.
	ErrProtocolViolation = errors.New("stream protocol violation")
	// ErrIncompleteStream indicates the stream ended before a complete event was seen.
	ErrIncompleteStream = errors.New("stream ended without completion")
	// ErrIncompleteAsset indicates at least one chunk is missing from the asset.
	ErrIncompleteAsset = errors.New("incomplete asset")
	// ErrTimeout indicates the stream did not open or deliver its first byte in time.
	ErrTimeout = errors.New("synthesis stream timed out")
	// ErrPlatformUnsupported indicates progressive playback is not available.
	ErrPlatformUnsupported = errors.New("progressive playback unsupported")
	// ErrSessionClosed indicates an operation on a session that already reached a terminal state.
	ErrSessionClosed = errors.New("session closed")
)

// Error is a classified engine error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err under kind. A nil err stays nil and an already
// classified error keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies any error, falling back on the well-known sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	switch {
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, ErrIncompleteStream):
		return KindProtocol
	case errors.Is(err, ErrIncompleteAsset):
		return KindIncomplete
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrPlatformUnsupported):
		return KindPlatform
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindUnknown
	}
}
