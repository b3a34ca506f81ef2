// Package source provides the engine's data sources: a push-fed streaming
// source for producers that deliver access units asynchronously, and an
// MPEG-TS source that demuxes a transport stream and discovers tracks lazily
// from the program map.
package source

import (
	"sync"

	"stream-player/internal/player"
)

// item is one queue element: a buffer, or a nil buffer with a marker error
// (discontinuity, end of stream).
type item struct {
	buf *player.Buffer
	err error
}

type pushTrack struct {
	format *player.Format
	queue  []item
}

// PushSource implements player.Source for producers that push data in:
// another goroutine feeds formats, access units, and discontinuity markers,
// and the controller drains them. The zero value is not usable; call
// NewPushSource.
type PushSource struct {
	mu     sync.Mutex
	tracks [2]pushTrack
	open   bool
}

// NewPushSource returns an empty, open source.
func NewPushSource() *PushSource {
	return &PushSource{open: true}
}

// SetFormat advertises the track. Safe to call mid-play; the controller's
// scan loop picks newly advertised tracks up.
func (s *PushSource) SetFormat(t player.Track, f *player.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[t].format = f
}

// Push appends one access unit to the track's queue.
func (s *PushSource) Push(t player.Track, buf *player.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.tracks[t].queue = append(s.tracks[t].queue, item{buf: buf})
}

// PushDiscontinuity appends a discontinuity marker to the track's queue.
func (s *PushSource) PushDiscontinuity(t player.Track, kind player.DiscontinuityKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.tracks[t].queue = append(s.tracks[t].queue, item{err: &player.DiscontinuityError{Kind: kind}})
}

// Close marks the producer finished. Queued data still drains; after that,
// dequeues return ErrEndOfStream.
func (s *PushSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

// Start implements player.Source.
func (s *PushSource) Start() {}

// Format implements player.Source.
func (s *PushSource) Format(t player.Track) *player.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[t].format
}

// FeedMore implements player.Source. A push source has nothing to ingest on
// demand; it reports whether the producer may still deliver data.
func (s *PushSource) FeedMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return true
	}
	return len(s.tracks[player.TrackAudio].queue) > 0 || len(s.tracks[player.TrackVideo].queue) > 0
}

// DequeueAccessUnit implements player.Source.
func (s *PushSource) DequeueAccessUnit(t player.Track) (*player.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.tracks[t].queue
	if len(q) == 0 {
		if s.open {
			return nil, player.ErrWouldBlock
		}
		return nil, player.ErrEndOfStream
	}

	head := q[0]
	s.tracks[t].queue = q[1:]

	if head.err != nil {
		return nil, head.err
	}
	return head.buf, nil
}
