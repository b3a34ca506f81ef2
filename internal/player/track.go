package player

import "fmt"

// Track selects one of the two elementary streams of a presentation.
type Track uint8

const (
	TrackVideo Track = iota
	TrackAudio

	trackCount = 2
)

// Peer returns the other track.
func (t Track) Peer() Track {
	if t == TrackAudio {
		return TrackVideo
	}
	return TrackAudio
}

// IsAudio reports whether t is the audio track.
func (t Track) IsAudio() bool { return t == TrackAudio }

func (t Track) String() string {
	switch t {
	case TrackAudio:
		return "audio"
	case TrackVideo:
		return "video"
	default:
		return fmt.Sprintf("track(%d)", uint8(t))
	}
}

// FlushStatus is the per-track flush/shutdown state machine.
type FlushStatus uint8

const (
	// FlushNone is the steady state.
	FlushNone FlushStatus = iota

	// FlushAwaitingDiscontinuity means the peer track started flushing and
	// this track holds until its own discontinuity arrives.
	FlushAwaitingDiscontinuity

	// FlushingDecoder means a flush was issued and the decoder's ack is
	// outstanding; the decoder survives the flush.
	FlushingDecoder

	// FlushingDecoderShutdown is like FlushingDecoder, but the decoder must
	// be shut down once the flush is acknowledged (format change).
	FlushingDecoderShutdown

	// ShuttingDownDecoder means shutdown was issued and its ack is
	// outstanding.
	ShuttingDownDecoder

	// Flushed means the flush was acknowledged; the decoder is still alive.
	Flushed

	// ShutDown means the shutdown was acknowledged and the decoder handle
	// was cleared.
	ShutDown
)

// flushing reports whether s is a state with a decoder flush outstanding,
// and if so whether the decoder must be shut down on completion.
func (s FlushStatus) flushing() (needShutdown, ok bool) {
	switch s {
	case FlushingDecoder:
		return false, true
	case FlushingDecoderShutdown:
		return true, true
	default:
		return false, false
	}
}

// terminal reports whether s is a settled post-flush state.
func (s FlushStatus) terminal() bool {
	return s == Flushed || s == ShutDown
}

func (s FlushStatus) String() string {
	switch s {
	case FlushNone:
		return "none"
	case FlushAwaitingDiscontinuity:
		return "awaiting-discontinuity"
	case FlushingDecoder:
		return "flushing-decoder"
	case FlushingDecoderShutdown:
		return "flushing-decoder-shutdown"
	case ShuttingDownDecoder:
		return "shutting-down-decoder"
	case Flushed:
		return "flushed"
	case ShutDown:
		return "shut-down"
	default:
		return fmt.Sprintf("flush-status(%d)", uint8(s))
	}
}
