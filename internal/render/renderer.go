// Package render implements the engine's renderer: it schedules decoded
// buffers for presentation, paces them by their timestamps against an anchor
// clock, writes audio through to the sink, and reports per-track EOS and
// flush completion back to the controller.
package render

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"stream-player/internal/looper"
	"stream-player/internal/player"
)

type entry struct {
	buf  *player.Buffer
	done func()
}

type trackQueue struct {
	entries   []entry
	eosQueued bool
	eosSent   bool
	draining  bool

	// gen invalidates delayed drain messages scheduled before a flush.
	gen int32
}

// Renderer implements player.Renderer on a looper handler. Audio buffers are
// written to the sink as they drain; video buffers are paced by PTS against
// an anchor established on the first buffer after a time discontinuity.
type Renderer struct {
	loop   *looper.Looper
	id     looper.HandlerID
	log    *slog.Logger
	sink   player.AudioSink
	notify player.RendererNotify

	queues [2]trackQueue

	anchorPTS   time.Duration
	anchorTime  time.Time
	anchorValid bool
}

type queueBufferMsg struct {
	track player.Track
	e     entry
}

type queueEOSMsg struct {
	track player.Track
}

type flushTrackMsg struct {
	track player.Track
}

type timeDiscontinuityMsg struct{}

type sinkChangedMsg struct{}

type drainMsg struct {
	track player.Track
	gen   int32
}

type stopMsg struct{}

// New registers a renderer on loop. sink may be nil when the client supplied
// no audio output; notify receives the renderer's events.
func New(loop *looper.Looper, log *slog.Logger, sink player.AudioSink, notify player.RendererNotify) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	r := &Renderer{
		loop:   loop,
		log:    log.With(slog.String("component", "renderer")),
		sink:   sink,
		notify: notify,
	}
	r.id = loop.RegisterHandler(r)
	return r
}

// QueueBuffer implements player.Renderer.
func (r *Renderer) QueueBuffer(t player.Track, buf *player.Buffer, done func()) {
	r.loop.Post(r.id, queueBufferMsg{track: t, e: entry{buf: buf, done: done}})
}

// QueueEOS implements player.Renderer.
func (r *Renderer) QueueEOS(t player.Track, reason error) {
	r.log.Debug("EOS queued",
		slog.String("track", t.String()),
		slog.String("reason", reason.Error()))
	r.loop.Post(r.id, queueEOSMsg{track: t})
}

// Flush implements player.Renderer.
func (r *Renderer) Flush(t player.Track) {
	r.loop.Post(r.id, flushTrackMsg{track: t})
}

// SignalTimeDiscontinuity implements player.Renderer.
func (r *Renderer) SignalTimeDiscontinuity() {
	r.loop.Post(r.id, timeDiscontinuityMsg{})
}

// SignalAudioSinkChanged implements player.Renderer.
func (r *Renderer) SignalAudioSinkChanged() {
	r.loop.Post(r.id, sinkChangedMsg{})
}

// Stop implements player.Renderer.
func (r *Renderer) Stop() {
	r.loop.Post(r.id, stopMsg{})
}

// HandleMessage implements looper.Handler.
func (r *Renderer) HandleMessage(msg any) {
	switch m := msg.(type) {
	case queueBufferMsg:
		q := &r.queues[m.track]
		q.entries = append(q.entries, m.e)
		r.scheduleDrain(m.track)

	case queueEOSMsg:
		q := &r.queues[m.track]
		q.eosQueued = true
		r.maybeNotifyEOS(m.track)

	case flushTrackMsg:
		r.onFlush(m.track)

	case timeDiscontinuityMsg:
		r.anchorValid = false

	case sinkChangedMsg:
		// The sink was reopened; what was written before the change is
		// gone, so re-anchor on the next buffer.
		r.anchorValid = false

	case drainMsg:
		if m.gen != r.queues[m.track].gen {
			// Scheduled before a flush.
			return
		}
		r.queues[m.track].draining = false
		r.drain(m.track)

	case stopMsg:
		r.loop.UnregisterHandler(r.id)

	default:
		panic(fmt.Sprintf("render: unexpected message %T", msg))
	}
}

func (r *Renderer) onFlush(t player.Track) {
	q := &r.queues[t]
	for _, e := range q.entries {
		// Dropped entries are still consumed so output slots recycle.
		e.done()
	}
	q.entries = nil
	q.eosQueued = false
	q.eosSent = false
	q.draining = false
	q.gen++

	r.notify(player.RendererFlushComplete{Track: t})
}

// scheduleDrain arranges for the track's head entry to be presented at its
// due time. The anchor maps media time to wall-clock time; the first buffer
// after a discontinuity (re)establishes it.
func (r *Renderer) scheduleDrain(t player.Track) {
	q := &r.queues[t]
	if q.draining || len(q.entries) == 0 {
		return
	}

	head := q.entries[0].buf
	if !r.anchorValid {
		r.anchorPTS = head.PTS
		r.anchorTime = time.Now()
		r.anchorValid = true
	}

	delay := head.PTS - r.anchorPTS - time.Since(r.anchorTime)
	if delay < 0 {
		delay = 0
	}

	q.draining = true
	r.loop.PostDelayed(r.id, drainMsg{track: t, gen: q.gen}, delay)
}

func (r *Renderer) drain(t player.Track) {
	q := &r.queues[t]
	if len(q.entries) == 0 {
		return
	}

	e := q.entries[0]
	q.entries = q.entries[1:]

	if t.IsAudio() {
		if w, ok := r.sink.(io.Writer); ok {
			if _, err := w.Write(e.buf.Data); err != nil {
				r.log.Warn("audio sink write failed", slog.String("error", err.Error()))
			}
		}
	}

	e.done()

	r.maybeNotifyEOS(t)
	r.scheduleDrain(t)
}

// maybeNotifyEOS reports EOS once the track's queue has fully drained after
// QueueEOS.
func (r *Renderer) maybeNotifyEOS(t player.Track) {
	q := &r.queues[t]
	if !q.eosQueued || q.eosSent || len(q.entries) > 0 {
		return
	}
	q.eosSent = true
	r.notify(player.RendererEOS{Track: t})
}
