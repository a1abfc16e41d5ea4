// Package relay implements the speech-to-speech translation core: per-speaker
// utterance segmentation, the session state machine, the dispatch queue, and
// the pipeline worker that turns sealed utterances into translated speech.
package relay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/speakswap/speakswap/internal/lang"
	"github.com/speakswap/speakswap/internal/observe"
)

// DefaultProcessingTimeout bounds how long a participant's processing flag may
// stay set before it is considered stale and forcibly cleared.
const DefaultProcessingTimeout = 10 * time.Second

// participantState is the single per-participant record tracked by
// [SessionState]. All fields are guarded by the SessionState mutex.
type participantState struct {
	active   bool
	language string

	processing bool
	generation uint64
	deadline   time.Time
}

// SessionOption configures a [SessionState].
type SessionOption func(*SessionState)

// WithProcessingTimeout overrides [DefaultProcessingTimeout].
func WithProcessingTimeout(d time.Duration) SessionOption {
	return func(s *SessionState) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock injects a clock for tests. The default is [time.Now].
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionState) {
		s.clock = now
	}
}

// WithSessionMetrics attaches metrics; the active-participant gauge follows
// activations and deactivations.
func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(s *SessionState) {
		s.metrics = m
	}
}

// SessionState tracks which participants take part in a translation session,
// each participant's language, and a per-participant processing flag that
// serializes utterances from the same speaker.
//
// The frame callback, command handlers and pipeline goroutines all touch this
// state; every accessor takes the internal mutex, so no caller ever observes a
// torn read of a participant's language or flags.
type SessionState struct {
	mu           sync.Mutex
	participants map[string]*participantState

	defaultLanguage string
	timeout         time.Duration
	clock           func() time.Time
	metrics         *observe.Metrics
}

// NewSessionState creates an empty session. defaultLanguage is the short code
// assigned to participants activated without an explicit language; it must be
// a supported code.
func NewSessionState(defaultLanguage string, opts ...SessionOption) (*SessionState, error) {
	if err := lang.Validate(defaultLanguage); err != nil {
		return nil, err
	}
	s := &SessionState{
		participants:    make(map[string]*participantState),
		defaultLanguage: defaultLanguage,
		timeout:         DefaultProcessingTimeout,
		clock:           time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// get returns the record for id, creating it if needed. Caller holds s.mu.
func (s *SessionState) get(id string) *participantState {
	p, ok := s.participants[id]
	if !ok {
		p = &participantState{language: s.defaultLanguage}
		s.participants[id] = p
	}
	return p
}

// Activate marks a participant as part of the translation session. A
// participant activated for the first time gets the session default language.
// Re-activating keeps any previously configured language.
func (s *SessionState) Activate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(id)
	if !p.active && s.metrics != nil {
		s.metrics.ActiveParticipants.Add(context.Background(), 1)
	}
	p.active = true
}

// Deactivate removes a participant from the session. Their configured language
// is kept so a re-join does not lose it. An in-flight pipeline run is not
// cancelled; deactivation only stops new utterances from being sealed.
func (s *SessionState) Deactivate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[id]; ok {
		if p.active && s.metrics != nil {
			s.metrics.ActiveParticipants.Add(context.Background(), -1)
		}
		p.active = false
	}
}

// DeactivateAll ends the session for every participant.
func (s *SessionState) DeactivateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.active && s.metrics != nil {
			s.metrics.ActiveParticipants.Add(context.Background(), -1)
		}
		p.active = false
	}
}

// IsActive reports whether the participant is currently part of the session.
func (s *SessionState) IsActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	return ok && p.active
}

// SetLanguage configures a participant's language. Returns
// [lang.ErrUnsupported] (wrapped) when code is not in the supported set; the
// participant's previous language is kept in that case. Setting a language
// does not activate the participant.
func (s *SessionState) SetLanguage(id, code string) error {
	if err := lang.Validate(code); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(id).language = code
	return nil
}

// Language returns the participant's configured language, or the session
// default for unknown participants.
func (s *SessionState) Language(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[id]; ok {
		return p.language
	}
	return s.defaultLanguage
}

// DefaultLanguage returns the session-wide default language.
func (s *SessionState) DefaultLanguage() string {
	return s.defaultLanguage
}

// ActiveCount returns the number of currently active participants.
func (s *SessionState) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.participants {
		if p.active {
			n++
		}
	}
	return n
}

// Participants returns a snapshot of active participants and their languages.
func (s *SessionState) Participants() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for id, p := range s.participants {
		if p.active {
			out[id] = p.language
		}
	}
	return out
}

// TargetLanguages returns the distinct languages of active participants other
// than speaker, excluding source. The result is sorted for determinism.
func (s *SessionState) TargetLanguages(speaker, source string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for id, p := range s.participants {
		if id == speaker || !p.active || p.language == source {
			continue
		}
		seen[p.language] = true
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Processing reports whether a pipeline run is in flight for the participant.
// A flag held past the processing timeout is considered stale: it is forcibly
// cleared, the generation advances so the stale run's completion is ignored,
// and false is returned. This is the recovery path for a wedged pipeline.
func (s *SessionState) Processing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok || !p.processing {
		return false
	}
	if s.clock().After(p.deadline) {
		p.processing = false
		p.generation++
		return false
	}
	return true
}

// BeginProcessing attempts to claim the participant's processing slot. It
// returns a generation token and true on success; false when a non-stale run
// is already in flight. Stale flags are cleared the same way as [Processing].
func (s *SessionState) BeginProcessing(id string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(id)
	if p.processing {
		if !s.clock().After(p.deadline) {
			return 0, false
		}
		// Stale flag: reclaim the slot for the new run.
		p.generation++
	}
	p.processing = true
	p.generation++
	p.deadline = s.clock().Add(s.timeout)
	return p.generation, true
}

// EndProcessing clears the processing flag, but only when gen matches the
// current generation. A run whose flag was reclaimed after the stale timeout
// cannot clear the flag of the run that superseded it.
func (s *SessionState) EndProcessing(id string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return
	}
	if p.processing && p.generation == gen {
		p.processing = false
	}
}
