package telemetry

import (
	"errors"
	"fmt"
)

// ErrTooShort is matched by every *DecodeError.
var ErrTooShort = errors.New("telemetry: frame too short")

// ErrUnknownKind is returned by Decode for a kind outside the closed set.
var ErrUnknownKind = errors.New("telemetry: unknown frame kind")

// DecodeError reports a buffer shorter than its frame layout. The frame
// should be dropped; the stream itself is unaffected.
type DecodeError struct {
	Kind Kind
	Need int
	Got  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("telemetry: %s frame too short: need %d bytes, got %d", e.Kind, e.Need, e.Got)
}

// Is reports whether target is ErrTooShort.
func (e *DecodeError) Is(target error) bool {
	return target == ErrTooShort
}
