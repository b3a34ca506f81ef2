package player

import (
	"errors"
	"fmt"
)

var (
	// ErrWouldBlock signals a transient absence of data; the caller should
	// retry once the source has been fed more input. It is never surfaced
	// outside the engine.
	ErrWouldBlock = errors.New("would block")

	// ErrEndOfStream is the terminal per-track signal.
	ErrEndOfStream = errors.New("end of stream")
)

// DiscontinuityError marks the boundary between non-contiguous runs of access
// units on one track. It is returned by Source.DequeueAccessUnit in place of
// a buffer, and delivered to decoders as the reply to an input request that
// arrived while the track was flushing.
type DiscontinuityError struct {
	Kind DiscontinuityKind
}

func (e *DiscontinuityError) Error() string {
	return fmt.Sprintf("discontinuity (%s)", e.Kind)
}

// AsDiscontinuity reports whether err is a DiscontinuityError and returns its
// kind.
func AsDiscontinuity(err error) (DiscontinuityKind, bool) {
	var de *DiscontinuityError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}
