package control

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"stream-player/internal/codec"
	"stream-player/internal/looper"
	"stream-player/internal/platform/metrics"
	"stream-player/internal/player"
	"stream-player/internal/render"
	"stream-player/internal/sink"
	"stream-player/internal/source"
)

// Session is one playback pipeline: its own looper, controller, source, and
// sink. Sessions are independent; stopping one never touches another.
type Session struct {
	ID   string
	Path string

	loop   *looper.Looper
	player *player.Player
	events *player.EventSink

	mu        sync.Mutex
	collected []player.Event
	started   bool
}

// newSession builds and wires a session playing the transport stream at
// path. audio selects the sink: "oto" for platform output, anything else a
// null sink.
func newSession(path, audio string, log *slog.Logger, met *metrics.Metrics) (*Session, error) {
	src, err := source.NewTSFile(path)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sessionLog := log.With(slog.String("session", id))

	loop := looper.New(sessionLog)
	if err := loop.Start(context.Background()); err != nil {
		return nil, err
	}

	var audioSink player.AudioSink
	if audio == "oto" {
		audioSink = sink.NewOto()
	} else {
		audioSink = sink.NewNull()
	}

	events := player.NewEventSink(16)

	pl := player.New(player.Config{
		Loop: loop,
		NewDecoder: func(notify player.DecoderNotify, surface player.VideoSurface) player.Decoder {
			return codec.New(loop, sessionLog, notify, surface)
		},
		NewRenderer: func(s player.AudioSink, notify player.RendererNotify) player.Renderer {
			return render.New(loop, sessionLog, s, notify)
		},
		Logger:  sessionLog,
		Metrics: met,
	})

	pl.SetDataSource(src)
	pl.SetAudioSink(audioSink)
	pl.SetListener(events)

	s := &Session{
		ID:     id,
		Path:   path,
		loop:   loop,
		player: pl,
		events: events,
	}
	go s.collect()
	return s, nil
}

// collect drains playback events into the session's history until the sink
// closes.
func (s *Session) collect() {
	for ev := range s.events.Events() {
		s.mu.Lock()
		s.collected = append(s.collected, ev)
		s.mu.Unlock()
	}
}

// Start begins playback. Only the first call has an effect.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.player.Start()
}

// Reset asynchronously tears playback down.
func (s *Session) Reset() {
	s.player.Reset()
}

// Events returns a copy of the events observed so far.
func (s *Session) Events() []player.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]player.Event, len(s.collected))
	copy(out, s.collected)
	return out
}

// Stop kills the session's loop and releases the event sink.
func (s *Session) Stop() {
	s.loop.Stop()
	s.events.Close()
}
