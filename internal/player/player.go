// Package player implements the orchestration core of the streaming engine:
// a controller that pulls compressed access units from a Source, hands them
// to per-track Decoders, forwards decoded buffers to a Renderer, and manages
// the life-cycle events (start, format change, end of stream, flush, reset)
// that traverse those stages.
//
// The controller runs entirely on one looper handler. Its fields are mutated
// only between message dispatches; collaborators communicate with it by
// posting messages, never by calling into it directly.
package player

import (
	"fmt"
	"log/slog"
	"time"

	"stream-player/internal/looper"
	"stream-player/internal/platform/metrics"
)

// scanRetryDelay is how long the controller waits before re-scanning a
// source that has not advertised all of its tracks yet.
const scanRetryDelay = 100 * time.Millisecond

// Config carries the controller's collaborator factories and ambient
// dependencies. Loop, NewDecoder, and NewRenderer are required; Logger and
// Metrics may be nil.
type Config struct {
	Loop        *looper.Looper
	NewDecoder  DecoderFactory
	NewRenderer RendererFactory
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

type trackState struct {
	decoder Decoder
	flush   FlushStatus
	eos     bool
}

// Player is the controller state machine. All exported methods are
// non-blocking: they post a message to the loop and return.
type Player struct {
	loop *looper.Looper
	id   looper.HandlerID
	log  *slog.Logger
	met  *metrics.Metrics

	newDecoder  DecoderFactory
	newRenderer RendererFactory

	source   Source
	renderer Renderer
	surface  VideoSurface
	sink     AudioSink
	listener *EventSink

	tracks [trackCount]trackState

	scanPending     bool
	scanGeneration  int32
	resetInProgress bool
	resetPostponed  bool
}

// New registers a controller on loop and returns it.
func New(cfg Config) *Player {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Player{
		loop:        cfg.Loop,
		log:         log.With(slog.String("component", "player")),
		met:         cfg.Metrics,
		newDecoder:  cfg.NewDecoder,
		newRenderer: cfg.NewRenderer,
	}
	p.id = cfg.Loop.RegisterHandler(p)
	return p
}

// SetDataSource supplies the source. Setting a second source is a contract
// violation and aborts.
func (p *Player) SetDataSource(src Source) {
	p.loop.Post(p.id, setSourceMsg{source: src})
}

// SetVideoSurface supplies the video output target.
func (p *Player) SetVideoSurface(s VideoSurface) {
	p.loop.Post(p.id, setSurfaceMsg{surface: s})
}

// SetAudioSink supplies the audio output target. Without a sink no audio
// decoder is ever created.
func (p *Player) SetAudioSink(s AudioSink) {
	p.loop.Post(p.id, setSinkMsg{sink: s})
}

// SetListener supplies the event sink. The engine does not own it; a closed
// sink silently drops deliveries.
func (p *Player) SetListener(l *EventSink) {
	p.loop.Post(p.id, setListenerMsg{listener: l})
}

// Start begins playback of the configured source.
func (p *Player) Start() {
	p.loop.Post(p.id, startMsg{})
}

// MoreDataQueued lets push-style sources nudge the loop when input arrived.
// Decoders re-request input on their own, so the message is a no-op today.
func (p *Player) MoreDataQueued() {
	p.loop.Post(p.id, moreDataQueuedMsg{})
}

// Reset tears playback down. A reset arriving while a flush is in flight is
// deferred until the flush completes; the client sees EventResetComplete
// exactly once either way.
func (p *Player) Reset() {
	p.loop.Post(p.id, resetMsg{})
}

// HandleMessage implements looper.Handler. It is the only place controller
// state is mutated.
func (p *Player) HandleMessage(msg any) {
	switch m := msg.(type) {
	case setSourceMsg:
		if p.source != nil {
			panic("player: data source already set")
		}
		p.source = m.source

	case setSurfaceMsg:
		p.surface = m.surface

	case setSinkMsg:
		p.sink = m.sink

	case setListenerMsg:
		p.listener = m.listener

	case startMsg:
		p.onStart()

	case scanSourcesMsg:
		p.onScanSources(m.generation)

	case decoderNotifyMsg:
		p.onDecoderNotify(m.track, m.event)

	case rendererNotifyMsg:
		p.onRendererNotify(m.event)

	case moreDataQueuedMsg:
		// Sources nudge the loop when input arrives; nothing to do here.

	case resetMsg:
		p.onReset()

	case inspectMsg:
		m.fn(p)

	default:
		panic(fmt.Sprintf("player: unexpected message %T", msg))
	}
}

func (p *Player) onStart() {
	p.tracks[TrackAudio].eos = false
	p.tracks[TrackVideo].eos = false

	p.source.Start()

	p.renderer = p.newRenderer(p.sink, func(ev RendererEvent) {
		p.loop.Post(p.id, rendererNotifyMsg{event: ev})
	})

	p.postScanSources()
}

func (p *Player) onScanSources(generation int32) {
	if generation != p.scanGeneration {
		// Obsolete scan, overtaken by a flush.
		return
	}

	p.scanPending = false

	p.instantiateDecoder(TrackVideo)
	if p.sink != nil {
		p.instantiateDecoder(TrackAudio)
	}

	if !p.source.FeedMore() {
		if p.tracks[TrackAudio].decoder == nil && p.tracks[TrackVideo].decoder == nil {
			// Not decoding anything (no tracks found) and the input
			// just ran out.
			p.notifyListener(EventPlaybackComplete, 0, 0)
		}
		return
	}

	if p.tracks[TrackAudio].decoder == nil || p.tracks[TrackVideo].decoder == nil {
		p.loop.PostDelayed(p.id, scanSourcesMsg{generation: generation}, scanRetryDelay)
		p.scanPending = true
	}
}

func (p *Player) onDecoderNotify(t Track, ev DecoderEvent) {
	switch e := ev.(type) {
	case FillThisBuffer:
		err := p.feedDecoderInput(t, e)
		if err == ErrWouldBlock {
			if p.source.FeedMore() {
				p.loop.Post(p.id, decoderNotifyMsg{track: t, event: ev})
			}
		}

	case DecoderEOS:
		p.renderer.QueueEOS(t, e.Err)

	case FlushCompleted:
		needShutdown, ok := p.tracks[t].flush.flushing()
		if !ok {
			panic(fmt.Sprintf("player: %s flush completed in state %s", t, p.tracks[t].flush))
		}
		p.tracks[t].flush = Flushed

		p.log.Debug("decoder flush completed", slog.String("track", t.String()))

		if needShutdown {
			p.log.Debug("initiating decoder shutdown", slog.String("track", t.String()))
			p.tracks[t].decoder.InitiateShutdown()
			p.tracks[t].flush = ShuttingDownDecoder
		}

		p.finishFlushIfPossible()

	case OutputFormatChanged:
		if !t.IsAudio() {
			panic("player: output format change on video track")
		}

		p.log.Debug("audio output format changed",
			slog.Int("sample_rate", e.SampleRate),
			slog.Int("channel_count", e.ChannelCount))

		p.sink.Close()
		if err := p.sink.Open(e.SampleRate, e.ChannelCount); err != nil {
			panic(fmt.Sprintf("player: reopening audio sink: %v", err))
		}
		p.sink.Start()

		p.renderer.SignalAudioSinkChanged()

	case ShutdownCompleted:
		p.log.Debug("decoder shutdown completed", slog.String("track", t.String()))

		if p.tracks[t].flush != ShuttingDownDecoder {
			panic(fmt.Sprintf("player: %s shutdown completed in state %s", t, p.tracks[t].flush))
		}
		p.tracks[t].decoder = nil
		p.tracks[t].flush = ShutDown

		p.finishFlushIfPossible()

	case DrainThisBuffer:
		p.renderer.QueueBuffer(t, e.Buffer, e.Done)

	default:
		panic(fmt.Sprintf("player: unexpected decoder event %T", ev))
	}
}

func (p *Player) onRendererNotify(ev RendererEvent) {
	switch e := ev.(type) {
	case RendererEOS:
		p.tracks[e.Track].eos = true

		p.log.Debug("reached EOS", slog.String("track", e.Track.String()))

		audio, video := &p.tracks[TrackAudio], &p.tracks[TrackVideo]
		if (audio.eos || audio.decoder == nil) && (video.eos || video.decoder == nil) {
			p.notifyListener(EventPlaybackComplete, 0, 0)
		}

	case RendererFlushComplete:
		// Flush completion is driven by the decoders; this is informational.
		p.log.Debug("renderer flush completed", slog.String("track", e.Track.String()))

	default:
		panic(fmt.Sprintf("player: unexpected renderer event %T", ev))
	}
}

func (p *Player) onReset() {
	if p.tracks[TrackAudio].flush != FlushNone || p.tracks[TrackVideo].flush != FlushNone {
		// A flush is in flight; run the reset once it completes.
		p.log.Debug("postponing reset")
		p.resetPostponed = true
		return
	}

	if p.tracks[TrackAudio].decoder == nil && p.tracks[TrackVideo].decoder == nil {
		p.finishReset()
		return
	}

	if p.tracks[TrackAudio].decoder != nil {
		p.flushDecoder(TrackAudio, true)
	}
	if p.tracks[TrackVideo].decoder != nil {
		p.flushDecoder(TrackVideo, true)
	}

	p.resetInProgress = true
}

// feedDecoderInput answers an input request from the track's decoder. It
// returns ErrWouldBlock without replying when the source has nothing
// buffered; every other outcome is delivered through req.Reply.
func (p *Player) feedDecoderInput(t Track, req FillThisBuffer) error {
	if _, flushing := p.tracks[t].flush.flushing(); flushing {
		req.Reply(nil, &DiscontinuityError{Kind: DiscontinuityTime})
		return nil
	}

	buf, err := p.source.DequeueAccessUnit(t)
	if err == ErrWouldBlock {
		return err
	}
	if err != nil {
		if kind, ok := AsDiscontinuity(err); ok {
			formatChange := kind == DiscontinuityFormatChange

			p.log.Debug("discontinuity",
				slog.String("track", t.String()),
				slog.String("kind", kind.String()))
			if p.met != nil {
				p.met.IncDiscontinuities(t.String(), kind.String())
			}

			p.flushDecoder(t, formatChange)
		}

		req.Reply(nil, err)
		return nil
	}

	if p.met != nil {
		p.met.IncAccessUnitsFed(t.String())
	}

	req.Reply(buf, nil)
	return nil
}

// flushDecoder starts a flush on t and places the peer track in a holding
// state so that both tracks settle the discontinuity together.
func (p *Player) flushDecoder(t Track, needShutdown bool) {
	// Don't continue to scan sources until the flush is done. Any queued
	// scan is now stale, so the pending flag must drop with it or the
	// post-flush rescan would be suppressed.
	p.scanGeneration++
	p.scanPending = false

	p.tracks[t].decoder.SignalFlush()
	p.renderer.Flush(t)

	newStatus := FlushingDecoder
	if needShutdown {
		newStatus = FlushingDecoderShutdown
	}

	if s := p.tracks[t].flush; s != FlushNone && s != FlushAwaitingDiscontinuity {
		panic(fmt.Sprintf("player: flushing %s track in state %s", t, s))
	}
	p.tracks[t].flush = newStatus

	if p.met != nil {
		p.met.IncFlushes(t.String())
	}

	peer := t.Peer()
	if p.tracks[peer].flush == FlushNone {
		if p.tracks[peer].decoder != nil {
			p.tracks[peer].flush = FlushAwaitingDiscontinuity
		} else {
			p.tracks[peer].flush = Flushed
		}
	}
}

func (p *Player) finishFlushIfPossible() {
	if !p.tracks[TrackAudio].flush.terminal() || !p.tracks[TrackVideo].flush.terminal() {
		return
	}

	p.log.Debug("both tracks are flushed now")

	p.renderer.SignalTimeDiscontinuity()

	scanSourcesAgain := false
	for t := Track(0); t < trackCount; t++ {
		if p.tracks[t].flush == ShutDown {
			scanSourcesAgain = true
		} else if p.tracks[t].decoder != nil {
			p.tracks[t].decoder.SignalResume()
		}
	}

	p.tracks[TrackAudio].flush = FlushNone
	p.tracks[TrackVideo].flush = FlushNone

	switch {
	case p.resetInProgress:
		p.log.Debug("reset completed")
		p.resetInProgress = false
		p.finishReset()

	case p.resetPostponed:
		p.loop.Post(p.id, resetMsg{})
		p.resetPostponed = false

	case scanSourcesAgain:
		p.postScanSources()
	}
}

func (p *Player) finishReset() {
	if p.tracks[TrackAudio].decoder != nil || p.tracks[TrackVideo].decoder != nil {
		panic("player: finishing reset with a live decoder")
	}

	if p.renderer != nil {
		p.renderer.Stop()
		p.renderer = nil
	}
	p.source = nil

	// A scan still queued from start must not reach the cleared source.
	p.scanGeneration++
	p.scanPending = false

	if p.met != nil {
		p.met.IncResetCompletions()
	}

	p.notifyListener(EventResetComplete, 0, 0)
}

func (p *Player) postScanSources() {
	if p.scanPending {
		return
	}
	p.loop.Post(p.id, scanSourcesMsg{generation: p.scanGeneration})
	p.scanPending = true
}

// instantiateDecoder builds a decoder for t if the source has advertised the
// track's format. It is a no-op while the decoder exists or the format is
// still unknown.
func (p *Player) instantiateDecoder(t Track) {
	if p.tracks[t].decoder != nil {
		return
	}

	format := p.source.Format(t)
	if format == nil {
		return
	}

	notify := func(ev DecoderEvent) {
		p.loop.Post(p.id, decoderNotifyMsg{track: t, event: ev})
	}

	var surface VideoSurface
	if !t.IsAudio() {
		surface = p.surface
	}

	dec := p.newDecoder(notify, surface)
	dec.Configure(format)
	p.tracks[t].decoder = dec

	p.log.Info("decoder created",
		slog.String("track", t.String()),
		slog.String("codec", format.Codec))
	if p.met != nil {
		p.met.IncDecodersCreated(t.String())
	}
}

func (p *Player) notifyListener(kind EventKind, ext1, ext2 int) {
	if kind == EventPlaybackComplete && p.met != nil {
		p.met.IncPlaybackCompletions()
	}
	if p.listener == nil {
		return
	}
	p.listener.send(Event{Kind: kind, Ext1: ext1, Ext2: ext2})
}
