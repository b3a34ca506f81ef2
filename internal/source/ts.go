package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/asticode/go-astits"

	"stream-player/internal/player"
)

// feedBatchSize is how many demuxed items one FeedMore call ingests at most,
// keeping each call short so the loop stays responsive.
const feedBatchSize = 32

// TSSource implements player.Source over an MPEG transport stream. Tracks
// are discovered lazily from the program map: Format returns nil until a PMT
// for the track's stream type has been parsed, which is exactly the case the
// controller's scan retry loop exists for. A PMT update that changes a
// track's stream type is surfaced as a format-change discontinuity.
type TSSource struct {
	dmx    *astits.Demuxer
	closer io.Closer
	push   *PushSource

	pids  [2]uint16
	types [2]astits.StreamType
	done  bool
}

// NewTS returns a source demuxing r. The reader is drained incrementally by
// FeedMore, never in bulk.
func NewTS(r io.Reader) *TSSource {
	s := &TSSource{
		dmx:  astits.NewDemuxer(context.Background(), r),
		push: NewPushSource(),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// NewTSFile opens path and returns a source demuxing it.
func NewTSFile(path string) (*TSSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transport stream: %w", err)
	}
	return NewTS(f), nil
}

// Start implements player.Source.
func (s *TSSource) Start() {}

// Format implements player.Source.
func (s *TSSource) Format(t player.Track) *player.Format {
	return s.push.Format(t)
}

// FeedMore implements player.Source. It pulls a bounded batch of demuxed
// data into the per-track queues and reports whether the stream may still
// produce more.
func (s *TSSource) FeedMore() bool {
	if s.done {
		return s.push.FeedMore()
	}

	for i := 0; i < feedBatchSize; i++ {
		d, err := s.dmx.NextData()
		if err != nil {
			// Any demux error ends ingestion; queued data still drains.
			s.finish()
			break
		}

		if d.PMT != nil {
			s.applyPMT(d.PMT)
			continue
		}
		if d.PES != nil {
			s.enqueuePES(d.PID, d.PES)
		}
	}

	return s.push.FeedMore()
}

// DequeueAccessUnit implements player.Source.
func (s *TSSource) DequeueAccessUnit(t player.Track) (*player.Buffer, error) {
	return s.push.DequeueAccessUnit(t)
}

func (s *TSSource) finish() {
	s.done = true
	s.push.Close()
	if s.closer != nil {
		s.closer.Close()
		s.closer = nil
	}
}

// applyPMT maps the program's elementary streams onto the two tracks: the
// first audio stream and the first video stream win. A changed stream type
// on an already-mapped track is a format change.
func (s *TSSource) applyPMT(pmt *astits.PMTData) {
	var seen [2]bool
	for _, es := range pmt.ElementaryStreams {
		t, ok := trackForStreamType(es.StreamType)
		if !ok || seen[t] {
			continue
		}
		seen[t] = true

		if s.push.Format(t) == nil {
			s.pids[t] = es.ElementaryPID
			s.types[t] = es.StreamType
			s.push.SetFormat(t, s.formatFor(t, es.StreamType))
			continue
		}

		if s.pids[t] == es.ElementaryPID && s.types[t] == es.StreamType {
			continue
		}

		// The program was remapped under us: new PID or codec for a track
		// already playing.
		s.pids[t] = es.ElementaryPID
		s.types[t] = es.StreamType
		s.push.PushDiscontinuity(t, player.DiscontinuityFormatChange)
		s.push.SetFormat(t, s.formatFor(t, es.StreamType))
	}
}

func (s *TSSource) enqueuePES(pid uint16, pes *astits.PESData) {
	var t player.Track
	switch pid {
	case s.pids[player.TrackAudio]:
		t = player.TrackAudio
	case s.pids[player.TrackVideo]:
		t = player.TrackVideo
	default:
		return
	}
	if s.push.Format(t) == nil {
		return
	}
	if len(pes.Data) == 0 {
		return
	}

	buf := &player.Buffer{Data: pes.Data}
	if oh := pes.Header.OptionalHeader; oh != nil &&
		(oh.PTSDTSIndicator == astits.PTSDTSIndicatorOnlyPTS ||
			oh.PTSDTSIndicator == astits.PTSDTSIndicatorBothPresent) {
		buf.PTS = oh.PTS.Duration()
	}

	s.push.Push(t, buf)
}

func (s *TSSource) formatFor(t player.Track, st astits.StreamType) *player.Format {
	return &player.Format{
		Track: t,
		Codec: codecName(st),
		// Fixed defaults for sink setup; the stream's own audio
		// parameters are not parsed, and the pass-through decoder reports
		// these values as its output format.
		SampleRate:   48000,
		ChannelCount: 2,
	}
}

// trackForStreamType maps the elementary stream types the engine plays onto
// a track. Unhandled types (private data, subtitles, SCTE) are skipped.
func trackForStreamType(st astits.StreamType) (player.Track, bool) {
	switch st {
	case astits.StreamTypeAACAudio, astits.StreamTypeMPEG1Audio:
		return player.TrackAudio, true
	case astits.StreamTypeH264Video, astits.StreamTypeH265Video, astits.StreamTypeMPEG2Video:
		return player.TrackVideo, true
	}
	return 0, false
}

func codecName(st astits.StreamType) string {
	switch st {
	case astits.StreamTypeAACAudio:
		return "aac"
	case astits.StreamTypeMPEG1Audio:
		return "mp2"
	case astits.StreamTypeH264Video:
		return "h264"
	case astits.StreamTypeH265Video:
		return "h265"
	case astits.StreamTypeMPEG2Video:
		return "mpeg2"
	default:
		return "raw"
	}
}
