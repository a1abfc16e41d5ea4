package relay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/vad"
	"github.com/speakswap/speakswap/pkg/provider/vad/energy"
)

// Segmentation defaults. All three are runtime-adjustable per session.
const (
	DefaultSpeechThreshold   = energy.DefaultSpeechThreshold
	DefaultSilenceDuration   = 700 * time.Millisecond
	DefaultMinSpeechDuration = 500 * time.Millisecond
)

// Utterance is one sealed stretch of speech handed to the pipeline. It carries
// the processing generation claimed at seal time so the completion handler can
// clear exactly the flag it set.
type Utterance struct {
	Participant string
	Language    string
	PCM         []byte
	Format      audio.Format
	Generation  uint64
	SealedAt    time.Time
}

// Duration returns the audio length of the utterance.
func (u Utterance) Duration() time.Duration {
	bytesPerSecond := u.Format.SampleRate * u.Format.Channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(len(u.PCM)) * time.Second / time.Duration(bytesPerSecond)
}

// capture is the per-participant rolling buffer between seals.
type capture struct {
	vadSession   vad.SessionHandle
	buf          []byte
	start        time.Time // first voiced frame since the last seal
	lastActivity time.Time // most recent voiced frame
}

// SegmenterConfig tunes a [Segmenter]. Zero values select the defaults above.
type SegmenterConfig struct {
	SpeechThreshold   float64
	SilenceDuration   time.Duration
	MinSpeechDuration time.Duration

	// Format is the capture format of incoming frames.
	Format audio.Format

	// Clock is injectable for tests. Defaults to [time.Now].
	Clock func() time.Time
}

// Segmenter converts the continuous per-participant frame stream into discrete
// utterances using energy-based silence detection. OnFrame is called on the
// transport receive path and never blocks or performs I/O; sealed utterances
// go to the dispatch queue.
type Segmenter struct {
	session *SessionState
	queue   *Queue
	engine  vad.Engine
	format  audio.Format
	clock   func() time.Time

	mu         sync.Mutex
	threshold  float64
	silenceDur time.Duration
	minSpeech  time.Duration
	captures   map[string]*capture
}

// NewSegmenter creates a Segmenter feeding queue. engine supplies the
// per-participant frame detectors.
func NewSegmenter(session *SessionState, queue *Queue, engine vad.Engine, cfg SegmenterConfig) *Segmenter {
	s := &Segmenter{
		session:    session,
		queue:      queue,
		engine:     engine,
		format:     cfg.Format,
		clock:      cfg.Clock,
		threshold:  cfg.SpeechThreshold,
		silenceDur: cfg.SilenceDuration,
		minSpeech:  cfg.MinSpeechDuration,
		captures:   make(map[string]*capture),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.threshold == 0 {
		s.threshold = DefaultSpeechThreshold
	}
	if s.silenceDur == 0 {
		s.silenceDur = DefaultSilenceDuration
	}
	if s.minSpeech == 0 {
		s.minSpeech = DefaultMinSpeechDuration
	}
	return s
}

// SetThreshold adjusts the speech threshold at runtime. Values outside (0, 1]
// are rejected.
func (s *Segmenter) SetThreshold(v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("relay: speech threshold %.4f out of range (0, 1]", v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = v
	return nil
}

// Threshold returns the current speech threshold.
func (s *Segmenter) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// SetTiming adjusts the silence and minimum-speech durations at runtime.
// Non-positive values leave the corresponding setting unchanged.
func (s *Segmenter) SetTiming(silence, minSpeech time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if silence > 0 {
		s.silenceDur = silence
	}
	if minSpeech > 0 {
		s.minSpeech = minSpeech
	}
}

// OnFrame consumes one PCM frame for a participant. It runs synchronously on
// the transport receive goroutine and returns immediately.
func (s *Segmenter) OnFrame(participant string, frame []byte) {
	if !s.session.IsActive(participant) {
		// A participant deactivated mid-utterance is dropped here; buffered
		// but unsealed audio is discarded, not flushed.
		s.mu.Lock()
		s.drop(participant)
		s.mu.Unlock()
		return
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.captures[participant]
	if !ok {
		c = &capture{}
		s.captures[participant] = c
	}

	level := s.frameLevel(participant, c, frame)
	voiced := level > s.threshold
	if voiced {
		if c.start.IsZero() {
			c.start = now
		}
		c.lastActivity = now
	}

	// Unvoiced frames are buffered too so short inter-word pauses stay inside
	// one utterance.
	c.buf = append(c.buf, frame...)

	if c.lastActivity.IsZero() {
		// No voice yet. Keep only one silence window of pre-roll so an idle
		// participant streaming below the threshold cannot grow the buffer
		// without bound.
		if max := s.prerollLimit(); max > 0 && len(c.buf) > max {
			c.buf = c.buf[len(c.buf)-max:]
		}
		return
	}
	silence := now.Sub(c.lastActivity)
	if silence < s.silenceDur || len(c.buf) == 0 {
		return
	}
	if speech := c.lastActivity.Sub(c.start); speech < s.minSpeech {
		// Too short to be an utterance: a cough, a keyboard knock. Discard
		// the burst so the buffer does not grow across stray noise.
		c.buf = nil
		c.start = time.Time{}
		c.lastActivity = time.Time{}
		return
	}

	gen, ok := s.session.BeginProcessing(participant)
	if !ok {
		// A run is already in flight for this speaker; keep buffering until
		// it completes or the stale timeout reclaims the flag.
		return
	}

	sealed := c.buf
	c.buf = nil
	c.start = time.Time{}
	c.lastActivity = time.Time{}

	s.queue.Push(Utterance{
		Participant: participant,
		Language:    s.session.Language(participant),
		PCM:         sealed,
		Format:      s.format,
		Generation:  gen,
		SealedAt:    now,
	})
}

// prerollLimit is the most unvoiced audio retained before voice onset, one
// silence window's worth of samples. Caller holds s.mu.
func (s *Segmenter) prerollLimit() int {
	bytesPerSecond := s.format.SampleRate * s.format.Channels * 2
	n := int(time.Duration(bytesPerSecond) * s.silenceDur / time.Second)
	return n - n%2
}

// frameLevel runs the frame through the participant's VAD session and returns
// the speech probability (the normalized mean-absolute amplitude for the
// energy engine). Falls back to a direct level computation when the engine
// cannot provide a session. Caller holds s.mu.
func (s *Segmenter) frameLevel(participant string, c *capture, frame []byte) float64 {
	if c.vadSession == nil && s.engine != nil {
		sess, err := s.engine.NewSession(vad.Config{
			SampleRate:       s.format.SampleRate,
			SpeechThreshold:  s.threshold,
			SilenceThreshold: s.threshold,
		})
		if err != nil {
			slog.Warn("segmenter: vad session unavailable, using direct level",
				"participant", participant, "error", err)
		} else {
			c.vadSession = sess
		}
	}
	if c.vadSession != nil {
		ev, err := c.vadSession.ProcessFrame(frame)
		if err == nil {
			return ev.Probability
		}
	}
	return energy.Level(frame)
}

// drop discards any buffered audio for a participant. Caller holds s.mu.
func (s *Segmenter) drop(participant string) {
	c, ok := s.captures[participant]
	if !ok {
		return
	}
	if c.vadSession != nil {
		_ = c.vadSession.Close()
	}
	delete(s.captures, participant)
}

// Reset discards all capture state, e.g. when the voice connection drops.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.captures {
		s.drop(id)
	}
}
