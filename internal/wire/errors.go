package wire

import (
	stderrors "errors"
	"fmt"
	"reflect"

	"github.com/corvidbase/pgwire/codes"
	pgerr "github.com/corvidbase/pgwire/errors"
)

// ErrMissingNulTerminator is thrown when no NUL terminator is found while
// interpreting a message field as a string.
var ErrMissingNulTerminator = stderrors.New("NUL terminator not found")

// NewMissingNulTerminator constructs a decorated ErrMissingNulTerminator.
func NewMissingNulTerminator() error {
	return pgerr.WithSeverity(pgerr.WithCode(ErrMissingNulTerminator, codes.DataCorrupted), pgerr.LevelFatal)
}

// ErrInsufficientData is thrown when a message field is shorter than the
// fixed-width primitive being read from it.
var ErrInsufficientData = stderrors.New("insufficient data")

// NewInsufficientData constructs a decorated ErrInsufficientData.
func NewInsufficientData(length int) error {
	err := fmt.Errorf("length: %d %w", length, ErrInsufficientData)
	return pgerr.WithSeverity(pgerr.WithCode(err, codes.DataCorrupted), pgerr.LevelFatal)
}

// ErrMessageSizeExceeded is thrown when a frame's declared length exceeds the
// reader's configured maximum.
var ErrMessageSizeExceeded = MessageSizeExceeded{Message: "maximum message size exceeded"}

// MessageSizeExceeded indicates that a frame length limit was exceeded. Size
// and Max are the offending frame size and the configured limit.
type MessageSizeExceeded struct {
	Message string
	Size    int
	Max     int
}

func (err MessageSizeExceeded) Error() string { return err.Message }

func (err MessageSizeExceeded) Is(target error) bool {
	return reflect.TypeOf(target) == reflect.TypeOf(err)
}

// NewMessageSizeExceeded constructs a decorated MessageSizeExceeded.
func NewMessageSizeExceeded(max, size int) error {
	err := MessageSizeExceeded{
		Message: fmt.Sprintf("message size %d, bigger than maximum allowed message size %d", size, max),
		Size:    size,
		Max:     max,
	}

	return pgerr.WithSeverity(pgerr.WithCode(err, codes.ProgramLimitExceeded), pgerr.LevelError)
}

// UnwrapMessageSizeExceeded attempts to unwrap err as a MessageSizeExceeded.
func UnwrapMessageSizeExceeded(err error) (result MessageSizeExceeded, _ bool) {
	return result, stderrors.As(err, &result)
}
