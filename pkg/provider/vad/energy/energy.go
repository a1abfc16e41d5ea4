// Package energy provides a [vad.Engine] backed by a simple amplitude
// detector. No model, no inference: a frame is speech when its mean absolute
// sample amplitude, normalized to [0.0, 1.0], crosses the configured
// threshold. This matches how voice-channel captures behave in practice —
// Opus silence frames decode to near-zero PCM, so a small threshold separates
// speech from comfort noise reliably.
//
// Sessions apply hysteresis: speech starts when the level reaches
// SpeechThreshold and ends only when it drops below SilenceThreshold, which
// suppresses flapping on breathy trailing syllables.
package energy

import (
	"fmt"
	"sync"

	"github.com/speakswap/speakswap/pkg/provider/vad"
)

// DefaultSpeechThreshold is the normalized amplitude above which a frame
// counts as speech. Tuned against 16-bit voice-channel captures.
const DefaultSpeechThreshold = 0.015

// Compile-time interface assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Engine creates amplitude-based VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns a new amplitude VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements [vad.Engine]. FrameSizeMs is not enforced: the
// detector is stateless per frame, so any frame length yields a valid level.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %v out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %v out of range [0,%v]", cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	s := &Session{cfg: cfg}
	if s.cfg.SpeechThreshold == 0 {
		s.cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if s.cfg.SilenceThreshold == 0 {
		s.cfg.SilenceThreshold = s.cfg.SpeechThreshold
	}
	return s, nil
}

// Session is an amplitude VAD session for a single stream.
// Safe for concurrent use, though streams normally feed it from one goroutine.
type Session struct {
	mu       sync.Mutex
	cfg      vad.Config
	inSpeech bool
	closed   bool
}

// ProcessFrame implements [vad.SessionHandle]. The returned event's
// Probability field carries the frame's normalized mean absolute amplitude,
// so callers that apply their own thresholds can use it directly.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, fmt.Errorf("energy: session closed")
	}
	if len(frame)%2 != 0 {
		return vad.VADEvent{}, fmt.Errorf("energy: frame length %d not a multiple of 2", len(frame))
	}

	level := Level(frame)

	ev := vad.VADEvent{Probability: level}
	switch {
	case !s.inSpeech && level >= s.cfg.SpeechThreshold:
		s.inSpeech = true
		ev.Type = vad.VADSpeechStart
	case s.inSpeech && level >= s.cfg.SilenceThreshold:
		ev.Type = vad.VADSpeechContinue
	case s.inSpeech:
		s.inSpeech = false
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
}

// Close implements [vad.SessionHandle]. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Level returns the mean absolute amplitude of a 16-bit signed little-endian
// PCM buffer, normalized to [0.0, 1.0]. Empty buffers yield 0.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(n) / 32768.0
}
