// Package sink provides audio sink implementations for the player engine: a
// null sink for headless runs and tests, and a PCM sink backed by the oto
// platform audio library.
package sink

import "sync"

// Null implements player.AudioSink and io.Writer, discarding everything. It
// records its open parameters so tests can assert sink reconfiguration.
type Null struct {
	mu           sync.Mutex
	opened       bool
	started      bool
	sampleRate   int
	channelCount int
	opens        int
	closes       int
}

// NewNull returns a sink that accepts and discards audio.
func NewNull() *Null {
	return &Null{}
}

// Open implements player.AudioSink.
func (s *Null) Open(sampleRate, channelCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	s.started = false
	s.sampleRate = sampleRate
	s.channelCount = channelCount
	s.opens++
	return nil
}

// Start implements player.AudioSink.
func (s *Null) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// Close implements player.AudioSink.
func (s *Null) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.started = false
	s.closes++
}

// Write implements io.Writer.
func (s *Null) Write(p []byte) (int, error) {
	return len(p), nil
}

// Params returns the parameters of the last Open and how many opens and
// closes the sink has seen.
func (s *Null) Params() (sampleRate, channelCount, opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate, s.channelCount, s.opens, s.closes
}
