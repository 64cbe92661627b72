package registry

import (
	"errors"
	"fmt"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/protocol"
)

var (
	// ErrStoreUnavailable is returned when a session could not be read from
	// the store. It is distinct from a session that was never saved.
	ErrStoreUnavailable = errors.New("registry: store unavailable")

	// ErrSerialization is returned when a stored snapshot or an event could
	// not be encoded or decoded.
	ErrSerialization = errors.New("registry: serialization fault")

	// ErrDuplicateRequest is reserved for request-id based idempotency.
	// No operation returns it yet.
	ErrDuplicateRequest = errors.New("registry: duplicate request")

	// ErrClosed is returned by operations on a closed registry.
	ErrClosed = errors.New("registry: closed")
)

// SessionError wraps an error with session context.
type SessionError struct {
	SessionID string
	Op        string // Operation that failed
	Err       error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("registry: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("registry: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

func newSessionError(sessionID, op string, err error) *SessionError {
	return &SessionError{SessionID: sessionID, Op: op, Err: err}
}

// Kind classifies errors for clients and metrics.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindStoreUnavailable Kind = "store_unavailable"
	KindSerialization    Kind = "serialization"
	KindDuplicateRequest Kind = "duplicate_request"
	KindClosed           Kind = "closed"
	KindInternal         Kind = "internal"
)

// KindOf returns the class of err. It returns "" for a nil error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, lobby.ErrCollectionNotFound),
		errors.Is(err, lobby.ErrDocumentNotFound):
		return KindNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrSerialization),
		errors.Is(err, lobby.ErrUnknownDocumentType),
		errors.Is(err, lobby.ErrMissingPayload),
		errors.Is(err, protocol.ErrMalformedMessage),
		errors.Is(err, protocol.ErrUnknownMessage):
		return KindSerialization
	case errors.Is(err, ErrDuplicateRequest):
		return KindDuplicateRequest
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindInternal
	}
}
