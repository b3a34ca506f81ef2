package player

// VideoSurface is the opaque output target for decoded video, supplied by
// the client before start and passed through to the video decoder.
type VideoSurface interface{}

// InputReply delivers the controller's answer to an input request: either an
// access unit, or a nil buffer with ErrWouldBlock never (absorbed upstream),
// a *DiscontinuityError, or ErrEndOfStream. Implementations must hand the
// result back to the decoder asynchronously (post a message), never process
// it inline.
type InputReply func(buf *Buffer, err error)

// DecoderEvent is the closed set of notifications a decoder emits to the
// controller.
type DecoderEvent interface {
	isDecoderEvent()
}

// FillThisBuffer asks the controller for the next access unit.
type FillThisBuffer struct {
	Reply InputReply
}

// DrainThisBuffer offers a decoded buffer. Done must be called when the
// buffer has been consumed so the decoder can recycle the output slot.
type DrainThisBuffer struct {
	Buffer *Buffer
	Done   func()
}

// DecoderEOS reports that the decoder drained its final input. Err carries
// the terminating condition, normally ErrEndOfStream.
type DecoderEOS struct {
	Err error
}

// FlushCompleted acknowledges SignalFlush.
type FlushCompleted struct{}

// ShutdownCompleted acknowledges InitiateShutdown. After emitting it the
// decoder is dead and its handle may be dropped.
type ShutdownCompleted struct{}

// OutputFormatChanged reports the actual output format of an audio decoder;
// the controller reopens the audio sink accordingly.
type OutputFormatChanged struct {
	SampleRate   int
	ChannelCount int
}

func (FillThisBuffer) isDecoderEvent()      {}
func (DrainThisBuffer) isDecoderEvent()     {}
func (DecoderEOS) isDecoderEvent()          {}
func (FlushCompleted) isDecoderEvent()      {}
func (ShutdownCompleted) isDecoderEvent()   {}
func (OutputFormatChanged) isDecoderEvent() {}

// DecoderNotify is the upward channel a decoder emits events on. It is safe
// to call from the loop goroutine; implementations post to the controller's
// handler.
type DecoderNotify func(ev DecoderEvent)

// Decoder adapts a codec. All methods are non-blocking: they enqueue work
// and return, with completions reported through the notify channel the
// decoder was constructed with.
type Decoder interface {
	// Configure prepares the codec with the track's format. The decoder
	// starts requesting input once configured.
	Configure(f *Format)

	// SignalFlush discards all buffered data; the decoder acknowledges
	// with FlushCompleted and stops requesting input.
	SignalFlush()

	// SignalResume restarts input requests after a flush.
	SignalResume()

	// InitiateShutdown tears the codec down; acknowledged with
	// ShutdownCompleted.
	InitiateShutdown()
}

// DecoderFactory constructs a decoder wired to notify. surface is nil for
// audio decoders.
type DecoderFactory func(notify DecoderNotify, surface VideoSurface) Decoder
