package errors

import (
	"errors"
	"fmt"

	"github.com/corvidbase/pgwire/codes"
)

// Sentinel error kinds returned by the protocol engine, converter layer, and
// pool. Callers compare against these with errors.Is; several carry
// additional context accessible through errors.As on the concrete type.
var (
	// ErrTransportClosed is returned when the transport closes mid-frame.
	ErrTransportClosed = errors.New("pgwire: transport closed")
	// ErrTransportTimeout is returned when a transport read/write exceeds its
	// configured deadline.
	ErrTransportTimeout = errors.New("pgwire: transport timeout")
	// ErrProtocolViolation is returned when the backend sends a message the
	// state machine did not expect in the current phase.
	ErrProtocolViolation = errors.New("pgwire: protocol violation")
	// ErrUnsupportedAuth is returned when the backend requests an
	// authentication method this driver does not implement.
	ErrUnsupportedAuth = errors.New("pgwire: unsupported authentication method")
	// ErrQueryCanceled matches, under errors.Is, the ServerError of a query
	// the backend canceled (SQLSTATE 57014), as after a CancelRequest.
	ErrQueryCanceled = errors.New("pgwire: query canceled")
	// ErrConnectionLost is returned for all futures outstanding on a
	// connection that transitioned to Fatal.
	ErrConnectionLost = errors.New("pgwire: connection lost")
	// ErrMissingRowMeta is returned when a row has no row description to
	// resolve a column by name against.
	ErrMissingRowMeta = errors.New("pgwire: row has no column metadata")
	// ErrColumnNotPresent is returned when a name-based column lookup finds
	// no matching column.
	ErrColumnNotPresent = errors.New("pgwire: column not present")
	// ErrInvalidConvertDataType indicates a converter bug: a non-null raw
	// value converted to a null application value.
	ErrInvalidConvertDataType = errors.New("pgwire: converter returned null for non-null input")
	// ErrPoolClosed is returned by pool operations once the pool has been
	// closed.
	ErrPoolClosed = errors.New("pgwire: pool closed")
	// ErrBorrowTimeout is returned when a borrow could not be satisfied
	// within its timeout.
	ErrBorrowTimeout = errors.New("pgwire: borrow timeout")
	// ErrValidationFailed is returned after three successive validation
	// query failures while serving a single borrow.
	ErrValidationFailed = errors.New("pgwire: connection validation failed")
)

// AuthFailed wraps the ErrorResponse fields the backend sent in response to
// an authentication attempt.
type AuthFailed struct {
	Fields Error
}

func (e *AuthFailed) Error() string {
	return fmt.Sprintf("pgwire: authentication failed: %s", e.Fields.Error())
}

func (e *AuthFailed) Unwrap() error { return e.Fields }

// ServerError is a per-query error surfaced to the caller without the
// connection transitioning to Fatal.
type ServerError struct {
	Fields Error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("pgwire: server error: %s", e.Fields.Error())
}

func (e *ServerError) Unwrap() error { return e.Fields }

// Is reports a server error carrying SQLSTATE 57014 (query_canceled) as
// ErrQueryCanceled.
func (e *ServerError) Is(target error) bool {
	return target == ErrQueryCanceled && e.Fields.Code == codes.QueryCanceled
}

// NoConversion is returned when no converter is registered for a type
// identifier, and the identifier does not denote a derivable array type.
type NoConversion struct {
	Type string
}

func (e *NoConversion) Error() string {
	return fmt.Sprintf("pgwire: no converter registered for type %q", e.Type)
}

// ConvertToFailed wraps an error raised while converting a raw wire value
// into an application value.
type ConvertToFailed struct {
	Type  string
	OID   uint32
	Cause error
}

func (e *ConvertToFailed) Error() string {
	return fmt.Sprintf("pgwire: failed to convert oid %d to %s: %s", e.OID, e.Type, e.Cause)
}

func (e *ConvertToFailed) Unwrap() error { return e.Cause }
