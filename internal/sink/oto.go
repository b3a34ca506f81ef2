package sink

import (
	"errors"
	"sync"

	"github.com/hajimehoshi/oto"
)

// otoBufferSize is the platform buffer handed to oto; large enough to ride
// out scheduling jitter at 48 kHz stereo.
const otoBufferSize = 8192

// bytesPerSample is the sample width the engine renders (signed 16-bit).
const bytesPerSample = 2

// ErrSinkClosed is returned when writing to a sink that is not open.
var ErrSinkClosed = errors.New("audio sink is not open")

// Oto implements player.AudioSink and io.Writer over the oto platform audio
// library. The sink plays whatever is written to it; Start is a no-op kept
// for the sink contract.
type Oto struct {
	mu     sync.Mutex
	player *oto.Player
}

// NewOto returns an unopened platform sink.
func NewOto() *Oto {
	return &Oto{}
}

// Open implements player.AudioSink.
func (s *Oto) Open(sampleRate, channelCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		s.player.Close()
		s.player = nil
	}

	p, err := oto.NewPlayer(sampleRate, channelCount, bytesPerSample, otoBufferSize)
	if err != nil {
		return err
	}
	s.player = p
	return nil
}

// Start implements player.AudioSink. oto players play as data is written.
func (s *Oto) Start() {}

// Close implements player.AudioSink.
func (s *Oto) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
}

// Write implements io.Writer, pushing PCM samples to the platform.
func (s *Oto) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return 0, ErrSinkClosed
	}
	return s.player.Write(p)
}
