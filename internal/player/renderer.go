package player

// RendererEvent is the closed set of notifications a renderer emits to the
// controller.
type RendererEvent interface {
	isRendererEvent()
}

// RendererEOS reports that one track finished presenting its final buffer.
type RendererEOS struct {
	Track Track
}

// RendererFlushComplete acknowledges Flush for one track.
type RendererFlushComplete struct {
	Track Track
}

func (RendererEOS) isRendererEvent()           {}
func (RendererFlushComplete) isRendererEvent() {}

// RendererNotify is the upward channel a renderer emits events on.
type RendererNotify func(ev RendererEvent)

// Renderer schedules decoded buffers for presentation. All methods are
// non-blocking.
type Renderer interface {
	// QueueBuffer schedules buf on the track; done is called once the
	// buffer has been presented (or dropped by a flush).
	QueueBuffer(t Track, buf *Buffer, done func())

	// QueueEOS marks the end of the track; reason is the terminating
	// condition, normally ErrEndOfStream. The renderer reports
	// RendererEOS once everything queued before it has been presented.
	QueueEOS(t Track, reason error)

	// Flush drops everything queued on the track and acknowledges with
	// RendererFlushComplete.
	Flush(t Track)

	// SignalTimeDiscontinuity resets the presentation clock; the next
	// queued buffer re-anchors it.
	SignalTimeDiscontinuity()

	// SignalAudioSinkChanged tells the renderer the audio sink was
	// reopened with new parameters.
	SignalAudioSinkChanged()

	// Stop releases the renderer's resources. Called once, on reset.
	Stop()
}

// RendererFactory constructs a renderer over the audio sink, wired to
// notify. sink may be nil when the client never supplied one.
type RendererFactory func(sink AudioSink, notify RendererNotify) Renderer

// AudioSink is the opaque audio output target supplied by the client. The
// controller reopens it when an audio decoder reports a new output format.
type AudioSink interface {
	Open(sampleRate, channelCount int) error
	Start()
	Close()
}
