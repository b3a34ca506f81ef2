package player

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"stream-player/internal/looper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// srcItem is one scripted source element: a buffer or a marker error.
type srcItem struct {
	buf *Buffer
	err error
}

// fakeSource is a scriptable in-memory source.
type fakeSource struct {
	mu        sync.Mutex
	formats   [trackCount]*Format
	queues    [trackCount][]srcItem
	more      bool
	started   bool
	dequeues  int
	feedCalls int
}

func (s *fakeSource) setFormat(t Track, f *Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formats[t] = f
}

func (s *fakeSource) push(t Track, pts time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[t] = append(s.queues[t], srcItem{buf: &Buffer{Data: []byte{0x42}, PTS: pts}})
}

func (s *fakeSource) pushErr(t Track, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[t] = append(s.queues[t], srcItem{err: err})
}

func (s *fakeSource) dequeueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dequeues
}

func (s *fakeSource) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *fakeSource) Format(t Track) *Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formats[t]
}

func (s *fakeSource) FeedMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedCalls++
	return s.more
}

func (s *fakeSource) feedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedCalls
}

func (s *fakeSource) DequeueAccessUnit(t Track) (*Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dequeues++

	q := s.queues[t]
	if len(q) == 0 {
		if s.more {
			return nil, ErrWouldBlock
		}
		return nil, ErrEndOfStream
	}

	head := q[0]
	s.queues[t] = q[1:]
	if head.err != nil {
		return nil, head.err
	}
	return head.buf, nil
}

// fakeDecoder records the controller's calls; tests drive its notifications
// by hand through the notify channel it was constructed with.
type fakeDecoder struct {
	mu        sync.Mutex
	notify    DecoderNotify
	format    *Format
	flushes   int
	resumes   int
	shutdowns int
}

func (d *fakeDecoder) Configure(f *Format) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.format = f
}

func (d *fakeDecoder) SignalFlush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
}

func (d *fakeDecoder) SignalResume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumes++
}

func (d *fakeDecoder) InitiateShutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdowns++
}

func (d *fakeDecoder) counts() (flushes, resumes, shutdowns int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes, d.resumes, d.shutdowns
}

func (d *fakeDecoder) configuredFormat() *Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// fakeRenderer records the controller's calls; tests drive its notifications
// by hand.
type fakeRenderer struct {
	mu          sync.Mutex
	notify      RendererNotify
	queued      [trackCount]int
	eosQueued   [trackCount]int
	flushed     [trackCount]int
	timeDiscs   int
	sinkChanges int
	stopped     bool
}

func (r *fakeRenderer) QueueBuffer(t Track, buf *Buffer, done func()) {
	r.mu.Lock()
	r.queued[t]++
	r.mu.Unlock()
	done()
}

func (r *fakeRenderer) QueueEOS(t Track, reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eosQueued[t]++
}

func (r *fakeRenderer) Flush(t Track) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed[t]++
}

func (r *fakeRenderer) SignalTimeDiscontinuity() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeDiscs++
}

func (r *fakeRenderer) SignalAudioSinkChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinkChanges++
}

func (r *fakeRenderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

func (r *fakeRenderer) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// fakeSink records open/close parameters.
type fakeSink struct {
	mu           sync.Mutex
	opens        int
	closes       int
	starts       int
	sampleRate   int
	channelCount int
	openErr      error
}

func (s *fakeSink) Open(sampleRate, channelCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opens++
	s.sampleRate = sampleRate
	s.channelCount = channelCount
	return nil
}

func (s *fakeSink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
}

type stateSnapshot struct {
	flush           [trackCount]FlushStatus
	eos             [trackCount]bool
	scanPending     bool
	scanGeneration  int32
	resetInProgress bool
	resetPostponed  bool
	hasDecoder      [trackCount]bool
	hasRenderer     bool
	hasSource       bool
}

// harness wires a Player to fakes on a live looper.
type harness struct {
	t      *testing.T
	loop   *looper.Looper
	player *Player
	src    *fakeSource
	sink   *fakeSink
	events *EventSink

	mu       sync.Mutex
	decoders []*fakeDecoder
	renderer *fakeRenderer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		loop:   looper.New(testLogger()),
		src:    &fakeSource{},
		sink:   &fakeSink{},
		events: NewEventSink(16),
	}
	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("starting looper: %v", err)
	}
	t.Cleanup(h.loop.Stop)

	h.player = New(Config{
		Loop: h.loop,
		NewDecoder: func(notify DecoderNotify, surface VideoSurface) Decoder {
			d := &fakeDecoder{notify: notify}
			h.mu.Lock()
			h.decoders = append(h.decoders, d)
			h.mu.Unlock()
			return d
		},
		NewRenderer: func(sink AudioSink, notify RendererNotify) Renderer {
			r := &fakeRenderer{notify: notify}
			h.mu.Lock()
			h.renderer = r
			h.mu.Unlock()
			return r
		},
		Logger: testLogger(),
	})

	h.player.SetDataSource(h.src)
	h.player.SetListener(h.events)
	return h
}

// sync drains the loop in rounds: handlers post follow-up messages while
// handling (flush ack posts a reset, shutdown ack posts a rescan), and one
// barrier only covers messages queued before it.
func (h *harness) sync() {
	for i := 0; i < 3; i++ {
		h.loop.Sync()
	}
}

func (h *harness) state() stateSnapshot {
	var snap stateSnapshot
	done := make(chan struct{})
	h.loop.Post(h.player.id, inspectMsg{fn: func(p *Player) {
		for t := Track(0); t < trackCount; t++ {
			snap.flush[t] = p.tracks[t].flush
			snap.eos[t] = p.tracks[t].eos
			snap.hasDecoder[t] = p.tracks[t].decoder != nil
		}
		snap.scanPending = p.scanPending
		snap.scanGeneration = p.scanGeneration
		snap.resetInProgress = p.resetInProgress
		snap.resetPostponed = p.resetPostponed
		snap.hasRenderer = p.renderer != nil
		snap.hasSource = p.source != nil
		close(done)
	}})
	<-done
	return snap
}

func (h *harness) decoder(i int) *fakeDecoder {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.decoders) {
		h.t.Fatalf("decoder %d not created yet (have %d)", i, len(h.decoders))
	}
	return h.decoders[i]
}

func (h *harness) decoderCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.decoders)
}

func (h *harness) rend() *fakeRenderer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.renderer == nil {
		h.t.Fatal("renderer not created yet")
	}
	return h.renderer
}

// fill requests one access unit through the decoder's notify channel and
// returns the recorded reply. replied is false when the controller absorbed
// the request (would-block).
func (h *harness) fill(d *fakeDecoder) (buf *Buffer, err error, replied bool) {
	var (
		mu   sync.Mutex
		rb   *Buffer
		re   error
		seen bool
	)
	d.notify(FillThisBuffer{Reply: func(b *Buffer, e error) {
		mu.Lock()
		defer mu.Unlock()
		rb, re, seen = b, e, true
	}})
	h.sync()

	mu.Lock()
	defer mu.Unlock()
	return rb, re, seen
}

func (h *harness) waitEvent(kind EventKind) Event {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.events.Events():
			if !ok {
				h.t.Fatalf("event sink closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func (h *harness) expectNoEvent(d time.Duration) {
	h.t.Helper()
	select {
	case ev := <-h.events.Events():
		h.t.Fatalf("unexpected event %s", ev.Kind)
	case <-time.After(d):
	}
}

func audioFormat(codec string, rate, channels int) *Format {
	return &Format{Track: TrackAudio, Codec: codec, SampleRate: rate, ChannelCount: channels}
}

func videoFormat() *Format {
	return &Format{Track: TrackVideo, Codec: "raw", Width: 320, Height: 240}
}

func TestPlayer_no_tracks_completes_immediately(t *testing.T) {
	h := newHarness(t)
	h.src.more = false

	h.player.Start()
	h.sync()

	ev := h.waitEvent(EventPlaybackComplete)
	if ev.Ext1 != 0 || ev.Ext2 != 0 {
		t.Errorf("expected PLAYBACK_COMPLETE(0,0), got (%d,%d)", ev.Ext1, ev.Ext2)
	}
	if n := h.decoderCount(); n != 0 {
		t.Errorf("no decoders should exist, got %d", n)
	}

	h.src.mu.Lock()
	started := h.src.started
	h.src.mu.Unlock()
	if !started {
		t.Error("source should have been started")
	}
}

func TestPlayer_audio_only_clean_eos(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	for i := 0; i < 3; i++ {
		h.src.push(TrackAudio, time.Duration(i)*20*time.Millisecond)
	}
	h.src.more = false

	h.player.Start()
	h.sync()

	if n := h.decoderCount(); n != 1 {
		t.Fatalf("expected 1 decoder, got %d", n)
	}
	dec := h.decoder(0)
	if f := dec.configuredFormat(); f == nil || f.Codec != "pcm" {
		t.Fatalf("decoder configured with %+v", f)
	}

	// Drain the three access units.
	for i := 0; i < 3; i++ {
		buf, err, replied := h.fill(dec)
		if !replied || err != nil || buf == nil {
			t.Fatalf("fill %d: buf=%v err=%v replied=%v", i, buf, err, replied)
		}
		dec.notify(DrainThisBuffer{Buffer: buf, Done: func() {}})
	}
	h.sync()

	if got := h.rend().queued[TrackAudio]; got != 3 {
		t.Errorf("renderer should have 3 audio buffers, got %d", got)
	}

	// Next request hits end of stream; the decoder reports EOS.
	_, err, replied := h.fill(dec)
	if !replied || err != ErrEndOfStream {
		t.Fatalf("expected EOS reply, got err=%v replied=%v", err, replied)
	}
	dec.notify(DecoderEOS{Err: ErrEndOfStream})
	h.sync()

	if got := h.rend().eosQueued[TrackAudio]; got != 1 {
		t.Fatalf("renderer should have audio EOS queued, got %d", got)
	}

	h.rend().notify(RendererEOS{Track: TrackAudio})
	h.sync()

	h.waitEvent(EventPlaybackComplete)
}

func TestPlayer_format_change_rebuilds_audio_decoder(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.push(TrackAudio, 0)
	h.src.push(TrackAudio, 20*time.Millisecond)
	h.src.pushErr(TrackAudio, &DiscontinuityError{Kind: DiscontinuityFormatChange})
	h.src.more = false

	h.player.Start()
	h.sync()

	dec := h.decoder(0)
	for i := 0; i < 2; i++ {
		if _, err, replied := h.fill(dec); !replied || err != nil {
			t.Fatalf("fill %d: err=%v replied=%v", i, err, replied)
		}
	}

	// The third request dequeues the format-change discontinuity.
	_, err, replied := h.fill(dec)
	if !replied {
		t.Fatal("discontinuity reply missing")
	}
	if kind, ok := AsDiscontinuity(err); !ok || kind != DiscontinuityFormatChange {
		t.Fatalf("expected format-change discontinuity, got %v", err)
	}

	snap := h.state()
	if snap.flush[TrackAudio] != FlushingDecoderShutdown {
		t.Fatalf("flushing_audio = %s, want %s", snap.flush[TrackAudio], FlushingDecoderShutdown)
	}
	if snap.flush[TrackVideo] != Flushed {
		t.Fatalf("flushing_video = %s, want %s (no video decoder)", snap.flush[TrackVideo], Flushed)
	}
	if flushes, _, _ := dec.counts(); flushes != 1 {
		t.Fatalf("decoder flushes = %d, want 1", flushes)
	}
	if got := h.rend().flushed[TrackAudio]; got != 1 {
		t.Fatalf("renderer audio flushes = %d, want 1", got)
	}

	// New metadata becomes available while the old decoder tears down.
	h.src.setFormat(TrackAudio, audioFormat("aac", 48000, 2))

	dec.notify(FlushCompleted{})
	h.sync()

	snap = h.state()
	if snap.flush[TrackAudio] != ShuttingDownDecoder {
		t.Fatalf("flushing_audio = %s, want %s", snap.flush[TrackAudio], ShuttingDownDecoder)
	}
	if _, _, shutdowns := dec.counts(); shutdowns != 1 {
		t.Fatalf("decoder shutdowns = %d, want 1", shutdowns)
	}

	dec.notify(ShutdownCompleted{})
	h.sync()

	snap = h.state()
	if snap.flush[TrackAudio] != FlushNone || snap.flush[TrackVideo] != FlushNone {
		t.Fatalf("states not reset: audio=%s video=%s", snap.flush[TrackAudio], snap.flush[TrackVideo])
	}
	if got := h.rend().timeDiscs; got != 1 {
		t.Fatalf("time discontinuity signals = %d, want 1", got)
	}

	// The rescan builds a fresh decoder from the new metadata.
	if n := h.decoderCount(); n != 2 {
		t.Fatalf("expected 2 decoders after format change, got %d", n)
	}
	if f := h.decoder(1).configuredFormat(); f == nil || f.Codec != "aac" {
		t.Fatalf("new decoder configured with %+v", f)
	}
}

func TestPlayer_reset_during_flush_is_postponed(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.pushErr(TrackAudio, &DiscontinuityError{Kind: DiscontinuityTime})
	h.src.more = false

	h.player.Start()
	h.sync()
	dec := h.decoder(0)

	// Dequeue the discontinuity: a plain flush, no shutdown.
	if _, err, _ := h.fill(dec); err == nil {
		t.Fatal("expected discontinuity reply")
	}
	if snap := h.state(); snap.flush[TrackAudio] != FlushingDecoder {
		t.Fatalf("flushing_audio = %s, want %s", snap.flush[TrackAudio], FlushingDecoder)
	}

	h.player.Reset()
	h.sync()

	snap := h.state()
	if !snap.resetPostponed {
		t.Fatal("reset should be postponed while flushing")
	}
	if snap.resetInProgress {
		t.Fatal("reset must not be in progress yet")
	}

	// Flush completes; the postponed reset re-runs and shuts the decoder
	// down.
	dec.notify(FlushCompleted{})
	h.sync()

	snap = h.state()
	if snap.resetPostponed {
		t.Fatal("postponed flag should have been consumed")
	}
	if !snap.resetInProgress {
		t.Fatal("reset should now be in progress")
	}
	if snap.flush[TrackAudio] != FlushingDecoderShutdown {
		t.Fatalf("flushing_audio = %s, want %s", snap.flush[TrackAudio], FlushingDecoderShutdown)
	}

	dec.notify(FlushCompleted{})
	h.sync()
	dec.notify(ShutdownCompleted{})
	h.sync()

	ev := h.waitEvent(EventResetComplete)
	if ev.Ext1 != 0 || ev.Ext2 != 0 {
		t.Errorf("expected RESET_COMPLETE(0,0), got (%d,%d)", ev.Ext1, ev.Ext2)
	}

	snap = h.state()
	if snap.hasDecoder[TrackAudio] || snap.hasDecoder[TrackVideo] {
		t.Error("decoders should be cleared after reset")
	}
	if snap.hasRenderer || snap.hasSource {
		t.Error("renderer and source should be cleared after reset")
	}
	if !h.rend().isStopped() {
		t.Error("renderer should be stopped")
	}
	if _, _, shutdowns := h.decoder(0).counts(); shutdowns != 1 {
		t.Errorf("decoder shutdowns = %d, want exactly 1", shutdowns)
	}
}

func TestPlayer_concurrent_format_changes_gate_on_both_tracks(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.setFormat(TrackVideo, videoFormat())
	h.src.pushErr(TrackAudio, &DiscontinuityError{Kind: DiscontinuityFormatChange})
	h.src.pushErr(TrackVideo, &DiscontinuityError{Kind: DiscontinuityFormatChange})
	h.src.more = false

	h.player.Start()
	h.sync()

	if n := h.decoderCount(); n != 2 {
		t.Fatalf("expected 2 decoders, got %d", n)
	}

	var audioDec, videoDec *fakeDecoder
	for i := 0; i < 2; i++ {
		d := h.decoder(i)
		if d.configuredFormat().Track == TrackAudio {
			audioDec = d
		} else {
			videoDec = d
		}
	}

	// Audio hits its discontinuity first; video holds.
	h.fill(audioDec)
	snap := h.state()
	if snap.flush[TrackAudio] != FlushingDecoderShutdown {
		t.Fatalf("flushing_audio = %s", snap.flush[TrackAudio])
	}
	if snap.flush[TrackVideo] != FlushAwaitingDiscontinuity {
		t.Fatalf("flushing_video = %s, want %s", snap.flush[TrackVideo], FlushAwaitingDiscontinuity)
	}

	// Video dequeues its own discontinuity before audio's flush completes.
	h.fill(videoDec)
	snap = h.state()
	if snap.flush[TrackVideo] != FlushingDecoderShutdown {
		t.Fatalf("flushing_video = %s, want %s", snap.flush[TrackVideo], FlushingDecoderShutdown)
	}

	// Completing audio alone must not finish the flush.
	audioDec.notify(FlushCompleted{})
	audioDec.notify(ShutdownCompleted{})
	h.sync()

	snap = h.state()
	if snap.flush[TrackAudio] != ShutDown {
		t.Fatalf("flushing_audio = %s, want %s", snap.flush[TrackAudio], ShutDown)
	}
	if got := h.rend().timeDiscs; got != 0 {
		t.Fatal("flush must not finish while video is still flushing")
	}

	videoDec.notify(FlushCompleted{})
	videoDec.notify(ShutdownCompleted{})
	h.sync()

	snap = h.state()
	if snap.flush[TrackAudio] != FlushNone || snap.flush[TrackVideo] != FlushNone {
		t.Fatalf("states not reset: audio=%s video=%s", snap.flush[TrackAudio], snap.flush[TrackVideo])
	}
	if got := h.rend().timeDiscs; got != 1 {
		t.Fatalf("time discontinuity signals = %d, want 1", got)
	}
}

func TestPlayer_audio_sink_reopened_on_output_format_change(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.more = false

	h.player.Start()
	h.sync()
	dec := h.decoder(0)

	dec.notify(OutputFormatChanged{SampleRate: 48000, ChannelCount: 2})
	h.sync()

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if h.sink.closes != 1 || h.sink.opens != 1 || h.sink.starts != 1 {
		t.Fatalf("sink closes=%d opens=%d starts=%d, want 1/1/1",
			h.sink.closes, h.sink.opens, h.sink.starts)
	}
	if h.sink.sampleRate != 48000 || h.sink.channelCount != 2 {
		t.Errorf("sink reopened at %d Hz %d ch, want 48000 Hz 2 ch",
			h.sink.sampleRate, h.sink.channelCount)
	}
	if got := h.rend().sinkChanges; got != 1 {
		t.Errorf("renderer sink-changed signals = %d, want 1", got)
	}
}

func TestPlayer_no_input_delivered_while_flushing(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.pushErr(TrackAudio, &DiscontinuityError{Kind: DiscontinuityTime})
	h.src.push(TrackAudio, 0)
	h.src.more = false

	h.player.Start()
	h.sync()
	dec := h.decoder(0)

	h.fill(dec)
	if snap := h.state(); snap.flush[TrackAudio] != FlushingDecoder {
		t.Fatalf("flushing_audio = %s", snap.flush[TrackAudio])
	}

	before := h.src.dequeueCount()
	buf, err, replied := h.fill(dec)
	if !replied || buf != nil {
		t.Fatalf("expected immediate error reply, got buf=%v replied=%v", buf, replied)
	}
	if _, ok := AsDiscontinuity(err); !ok {
		t.Fatalf("expected discontinuity reply while flushing, got %v", err)
	}
	if after := h.src.dequeueCount(); after != before {
		t.Error("source must not be touched while the track is flushing")
	}
}

func TestPlayer_stale_scan_generation_is_dropped(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.pushErr(TrackAudio, &DiscontinuityError{Kind: DiscontinuityFormatChange})
	h.src.more = false

	h.player.Start()
	h.sync()
	dec := h.decoder(0)

	h.fill(dec)
	gen := h.state().scanGeneration

	// A scan queued before the flush carries the old generation and must
	// have no effect: the source is not consulted and no decoder is built.
	feeds := h.src.feedCount()
	h.loop.Post(h.player.id, scanSourcesMsg{generation: gen - 1})
	h.sync()

	if n := h.decoderCount(); n != 1 {
		t.Fatalf("stale scan built a decoder: %d decoders", n)
	}
	if got := h.src.feedCount(); got != feeds {
		t.Errorf("stale scan touched the source: feed calls %d -> %d", feeds, got)
	}
}

func TestPlayer_lazy_track_discovery_retries_scan(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.more = true

	h.player.Start()
	h.sync()

	if n := h.decoderCount(); n != 0 {
		t.Fatalf("no decoder should exist before the source advertises one, got %d", n)
	}
	if snap := h.state(); !snap.scanPending {
		t.Fatal("a delayed rescan should be pending")
	}

	// The source discovers its audio track mid-play; the retry picks it up.
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))

	deadline := time.Now().Add(2 * time.Second)
	for h.decoderCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scan retry never instantiated the audio decoder")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlayer_reset_with_no_decoders_completes_directly(t *testing.T) {
	h := newHarness(t)
	h.src.more = false

	h.player.Start()
	h.sync()
	h.waitEvent(EventPlaybackComplete)

	h.player.Reset()
	h.sync()

	h.waitEvent(EventResetComplete)
	if snap := h.state(); snap.hasSource || snap.hasRenderer {
		t.Error("source and renderer should be cleared")
	}
}

func TestPlayer_more_data_queued_is_noop(t *testing.T) {
	h := newHarness(t)
	h.src.more = false

	h.player.MoreDataQueued()
	h.sync()

	h.expectNoEvent(50 * time.Millisecond)
	if snap := h.state(); snap.scanPending {
		t.Error("more-data nudge must not schedule work")
	}
}

func TestPlayer_resume_after_plain_flush(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.pushErr(TrackAudio, &DiscontinuityError{Kind: DiscontinuityTime})
	h.src.push(TrackAudio, 0)
	h.src.more = false

	h.player.Start()
	h.sync()
	dec := h.decoder(0)

	h.fill(dec)
	dec.notify(FlushCompleted{})
	h.sync()

	if _, resumes, shutdowns := dec.counts(); resumes != 1 || shutdowns != 0 {
		t.Fatalf("resumes=%d shutdowns=%d, want 1/0", resumes, shutdowns)
	}
	if n := h.decoderCount(); n != 1 {
		t.Fatalf("plain flush must keep the decoder, got %d", n)
	}

	// Input flows again after the resume.
	buf, err, replied := h.fill(dec)
	if !replied || err != nil || buf == nil {
		t.Fatalf("post-resume fill: buf=%v err=%v replied=%v", buf, err, replied)
	}
}

func TestPlayer_playback_complete_requires_all_tracks(t *testing.T) {
	h := newHarness(t)
	h.player.SetAudioSink(h.sink)
	h.src.setFormat(TrackAudio, audioFormat("pcm", 44100, 2))
	h.src.setFormat(TrackVideo, videoFormat())
	h.src.more = false

	h.player.Start()
	h.sync()

	if n := h.decoderCount(); n != 2 {
		t.Fatalf("expected 2 decoders, got %d", n)
	}

	h.rend().notify(RendererEOS{Track: TrackAudio})
	h.sync()
	h.expectNoEvent(50 * time.Millisecond)

	h.rend().notify(RendererEOS{Track: TrackVideo})
	h.sync()
	h.waitEvent(EventPlaybackComplete)
}
