package errors

import (
	"errors"
	"fmt"

	"github.com/corvidbase/pgwire/codes"
)

// Error contains all Postgres wire protocol error fields as received inside
// an ErrorResponse message. See
// https://www.postgresql.org/docs/current/static/protocol-error-fields.html
// for the full list of fields, most of which are optional.
type Error struct {
	Code           codes.Code
	Message        string
	Detail         string
	Hint           string
	Severity       Severity
	ConstraintName string
	Position       int32
	Source         *Source
}

func (e Error) Error() string {
	if e.Code == "" {
		return e.Message
	}

	return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.Code)
}

// Source represents whenever possible the source of a given error.
type Source struct {
	File     string
	Line     int32
	Function string
}

// Flatten returns a flattened error which could be used to construct Postgres
// wire error messages, or to describe a ServerError received from the backend.
func Flatten(err error) Error {
	if err == nil {
		return Error{
			Code:     codes.Internal,
			Message:  "unknown error, an internal process attempted to throw an error",
			Severity: LevelFatal,
		}
	}

	var server Error
	if errors.As(err, &server) {
		return server
	}

	result := Error{
		Code:     GetCode(err),
		Message:  err.Error(),
		Severity: DefaultSeverity(GetSeverity(err)),
		Detail:   GetDetail(err),
		Hint:     GetHint(err),
		Source:   GetSource(err),
	}

	return result
}
