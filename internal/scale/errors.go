package scale

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedReply means the buffer ended before the schema did.
	ErrTruncatedReply = errors.New("truncated reply")

	ErrInvalidDiscriminant = errors.New("invalid option discriminant")
	ErrInvalidBool         = errors.New("invalid bool byte")
	ErrTrailingBytes       = errors.New("trailing bytes after record")
	ErrContractError       = errors.New("contract returned an error")
)

// DecodeError reports where in which schema decoding failed.
type DecodeError struct {
	Schema string
	Field  string // empty for envelope or length checks
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s at offset %d: %v", e.Schema, e.Offset, e.Err)
	}
	return fmt.Sprintf("decode %s field %s at offset %d: %v", e.Schema, e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
