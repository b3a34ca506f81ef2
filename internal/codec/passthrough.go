// Package codec provides the engine's software decoder: a pass-through codec
// for raw elementary streams (PCM audio, uncompressed video). It exists to
// run the full decoder protocol — input requests, output draining, EOS,
// flush and shutdown acknowledgements — on a looper handler, the same way a
// platform codec adapter would.
package codec

import (
	"fmt"
	"log/slog"

	"stream-player/internal/looper"
	"stream-player/internal/player"
)

// maxPendingOutputs bounds how many decoded buffers may sit unconsumed at
// the renderer before the codec stops requesting input.
const maxPendingOutputs = 4

// Passthrough implements player.Decoder. All state lives behind its looper
// handler; the exported methods only post messages.
type Passthrough struct {
	loop    *looper.Looper
	id      looper.HandlerID
	log     *slog.Logger
	notify  player.DecoderNotify
	surface player.VideoSurface

	format         *player.Format
	running        bool
	flushing       bool
	inputPending   bool
	pendingOutputs int
	sawEOS         bool
}

type configureMsg struct {
	format *player.Format
}

type flushMsg struct{}

type resumeMsg struct{}

type shutdownMsg struct{}

// inputMsg carries the controller's reply to an input request.
type inputMsg struct {
	buf *player.Buffer
	err error
}

// drainedMsg reports that the renderer consumed one decoded buffer.
type drainedMsg struct{}

// New registers a pass-through decoder on loop. notify receives the codec's
// events; surface is retained for video decoders and unused otherwise.
func New(loop *looper.Looper, log *slog.Logger, notify player.DecoderNotify, surface player.VideoSurface) *Passthrough {
	if log == nil {
		log = slog.Default()
	}
	d := &Passthrough{
		loop:    loop,
		log:     log.With(slog.String("component", "codec")),
		notify:  notify,
		surface: surface,
	}
	d.id = loop.RegisterHandler(d)
	return d
}

// Configure implements player.Decoder.
func (d *Passthrough) Configure(f *player.Format) {
	d.loop.Post(d.id, configureMsg{format: f})
}

// SignalFlush implements player.Decoder.
func (d *Passthrough) SignalFlush() {
	d.loop.Post(d.id, flushMsg{})
}

// SignalResume implements player.Decoder.
func (d *Passthrough) SignalResume() {
	d.loop.Post(d.id, resumeMsg{})
}

// InitiateShutdown implements player.Decoder.
func (d *Passthrough) InitiateShutdown() {
	d.loop.Post(d.id, shutdownMsg{})
}

// HandleMessage implements looper.Handler.
func (d *Passthrough) HandleMessage(msg any) {
	switch m := msg.(type) {
	case configureMsg:
		d.onConfigure(m.format)

	case flushMsg:
		d.flushing = true
		d.sawEOS = false
		d.inputPending = false
		d.pendingOutputs = 0
		d.notify(player.FlushCompleted{})

	case resumeMsg:
		d.flushing = false
		d.requestInput()

	case shutdownMsg:
		d.running = false
		d.notify(player.ShutdownCompleted{})
		d.loop.UnregisterHandler(d.id)

	case inputMsg:
		d.onInput(m.buf, m.err)

	case drainedMsg:
		if d.pendingOutputs > 0 {
			d.pendingOutputs--
		}
		d.requestInput()

	default:
		panic(fmt.Sprintf("codec: unexpected message %T", msg))
	}
}

func (d *Passthrough) onConfigure(f *player.Format) {
	d.format = f
	d.running = true

	d.log.Debug("configured",
		slog.String("track", f.Track.String()),
		slog.String("codec", f.Codec))

	// A real codec discovers its output format during configuration; report
	// it so the audio sink gets (re)opened with the right parameters.
	if f.Track.IsAudio() {
		d.notify(player.OutputFormatChanged{
			SampleRate:   f.SampleRate,
			ChannelCount: f.ChannelCount,
		})
	}

	d.requestInput()
}

// requestInput asks the controller for one access unit, keeping at most one
// request in flight and respecting the output back-pressure bound.
func (d *Passthrough) requestInput() {
	if !d.running || d.flushing || d.sawEOS || d.inputPending {
		return
	}
	if d.pendingOutputs >= maxPendingOutputs {
		return
	}

	d.inputPending = true
	d.notify(player.FillThisBuffer{
		Reply: func(buf *player.Buffer, err error) {
			d.loop.Post(d.id, inputMsg{buf: buf, err: err})
		},
	})
}

func (d *Passthrough) onInput(buf *player.Buffer, err error) {
	d.inputPending = false

	if d.flushing || !d.running {
		// The reply crossed a flush or shutdown; drop it.
		return
	}

	if err != nil {
		if _, ok := player.AsDiscontinuity(err); ok {
			// The flush signal is already on its way; stop requesting
			// and wait for it.
			return
		}
		d.sawEOS = true
		d.notify(player.DecoderEOS{Err: err})
		return
	}

	// Pass-through decode: the access unit is the decoded frame.
	d.pendingOutputs++
	d.notify(player.DrainThisBuffer{
		Buffer: buf,
		Done: func() {
			d.loop.Post(d.id, drainedMsg{})
		},
	})

	d.requestInput()
}
