package player

// Source is the lazy supplier of format metadata and timestamped access
// units per track. All methods are called from the controller's loop
// goroutine only and must not block.
type Source interface {
	// Start tells the source playback is beginning.
	Start()

	// Format returns the codec parameters for the track, or nil if the
	// track has not been discovered (yet). Sources may discover tracks
	// lazily mid-play; the controller retries via its scan loop.
	Format(t Track) *Format

	// FeedMore lets the source ingest more input. It returns true iff more
	// data may still be produced later; false means the underlying stream
	// is exhausted.
	FeedMore() bool

	// DequeueAccessUnit returns the next access unit for the track, or a
	// nil buffer with one of:
	//   - ErrWouldBlock: nothing buffered right now, retry later
	//   - *DiscontinuityError: a discontinuity boundary was reached
	//   - ErrEndOfStream: the track is exhausted
	DequeueAccessUnit(t Track) (*Buffer, error)
}
