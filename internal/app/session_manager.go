package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/speakswap/speakswap/internal/bot/commands"
	"github.com/speakswap/speakswap/internal/conversation"
	"github.com/speakswap/speakswap/internal/observe"
	"github.com/speakswap/speakswap/internal/relay"
	"github.com/speakswap/speakswap/internal/resilience"
	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/tts"
)

// Compile-time interface assertion: the slash commands drive the manager.
var _ commands.Controller = (*SessionManager)(nil)

// SessionInfo holds metadata about the active voice session.
type SessionInfo struct {
	// VoiceChannelID is the voice channel the relay is connected to.
	VoiceChannelID string

	// TextChannelID receives translation notices.
	TextChannelID string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager manages the lifecycle of the voice session: connecting to
// the audio platform, feeding participant frames into the segmenter, running
// the dispatch queue, and posting translation notices. Only one session can
// be active at a time. All exported methods are safe for concurrent use.
type SessionManager struct {
	mu      sync.Mutex
	active  bool
	info    SessionInfo
	conn    audio.Connection
	player  *relay.Player
	cancel  context.CancelFunc
	readers map[string]bool

	// notify posts a message to a text channel. Wired to the Discord bot by
	// main; nil when running headless.
	notify func(channelID, content string)

	// Dependencies injected at construction.
	platform      audio.Platform
	session       *relay.SessionState
	segmenter     *relay.Segmenter
	queue         *relay.Queue
	stages        *resilience.FallbackGroup[relay.Stage]
	tts           tts.Provider
	artifacts     *conversation.FileStore
	metrics       *observe.Metrics
	defaultTarget string
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Platform      audio.Platform
	Session       *relay.SessionState
	Segmenter     *relay.Segmenter
	Queue         *relay.Queue
	Stages        *resilience.FallbackGroup[relay.Stage]
	TTS           tts.Provider
	Artifacts     *conversation.FileStore
	Metrics       *observe.Metrics
	DefaultTarget string
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		platform:      cfg.Platform,
		session:       cfg.Session,
		segmenter:     cfg.Segmenter,
		queue:         cfg.Queue,
		stages:        cfg.Stages,
		tts:           cfg.TTS,
		artifacts:     cfg.Artifacts,
		metrics:       cfg.Metrics,
		defaultTarget: cfg.DefaultTarget,
		readers:       make(map[string]bool),
	}
}

// SetNotifier wires the text-notice sink. Called once by main after the
// Discord bot is up.
func (sm *SessionManager) SetNotifier(fn func(channelID, content string)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.notify = fn
}

// SetPlatform replaces the audio platform. Called by main when the Discord
// bot supplies the voice transport.
func (sm *SessionManager) SetPlatform(p audio.Platform) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.platform = p
}

// ─── commands.Controller ─────────────────────────────────────────────────────

// Join connects to the voice channel and starts the relay: a playback player
// over the connection's output stream, a pipeline worker consuming the
// dispatch queue, and one frame-reader goroutine per participant.
func (sm *SessionManager) Join(ctx context.Context, voiceChannelID, textChannelID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return fmt.Errorf("session: already connected to channel %s", sm.info.VoiceChannelID)
	}
	if sm.platform == nil {
		return fmt.Errorf("session: no audio platform configured")
	}

	conn, err := sm.platform.Connect(ctx, voiceChannelID)
	if err != nil {
		return fmt.Errorf("session: connect voice channel: %w", err)
	}

	player := relay.NewPlayer(conn.OutputStream(), audio.Format{SampleRate: 48000, Channels: 2})

	worker, err := relay.NewWorker(relay.WorkerConfig{
		Session:       sm.session,
		Stages:        sm.stages,
		TTS:           sm.tts,
		Player:        player,
		Artifacts:     sm.artifacts,
		Notify:        sm.noticeSink(textChannelID),
		DefaultTarget: sm.defaultTarget,
		Metrics:       sm.metrics,
	})
	if err != nil {
		if derr := conn.Disconnect(); derr != nil {
			slog.Warn("session: disconnect after worker failure", "err", derr)
		}
		return fmt.Errorf("session: build worker: %w", err)
	}

	// The session outlives the slash-command interaction that started it.
	runCtx, cancel := context.WithCancel(context.Background())

	go sm.queue.Run(runCtx, worker.Process)

	for userID, ch := range conn.InputStreams() {
		sm.startReader(runCtx, userID, ch)
	}
	conn.OnParticipantChange(func(ev audio.Event) {
		switch ev.Type {
		case audio.EventJoin:
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if !sm.active {
				return
			}
			if ch, ok := conn.InputStreams()[ev.UserID]; ok {
				sm.startReader(runCtx, ev.UserID, ch)
			}
		case audio.EventLeave:
			sm.session.Deactivate(ev.UserID)
		}
	})

	sm.active = true
	sm.conn = conn
	sm.player = player
	sm.cancel = cancel
	sm.info = SessionInfo{
		VoiceChannelID: voiceChannelID,
		TextChannelID:  textChannelID,
		StartedAt:      time.Now(),
	}
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(ctx, 1)
	}

	slog.Info("voice session started",
		"voice_channel", voiceChannelID,
		"text_channel", textChannelID,
	)
	return nil
}

// Leave disconnects from the voice channel and tears the session down.
func (sm *SessionManager) Leave() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return fmt.Errorf("session: not connected")
	}

	channelID := sm.info.VoiceChannelID

	sm.cancel()
	sm.player.Stop()
	if err := sm.conn.Disconnect(); err != nil {
		slog.Warn("session: voice disconnect error", "channel", channelID, "err", err)
	}
	sm.segmenter.Reset()
	sm.session.DeactivateAll()
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	sm.active = false
	sm.conn = nil
	sm.player = nil
	sm.cancel = nil
	sm.readers = make(map[string]bool)
	sm.info = SessionInfo{}

	slog.Info("voice session ended", "channel", channelID)
	return nil
}

// Connected reports whether a voice session is up.
func (sm *SessionManager) Connected() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// StartTranslation activates the calling participant with their configured
// (or the default) language.
func (sm *SessionManager) StartTranslation(userID string) error {
	if !sm.Connected() {
		return fmt.Errorf("session: not connected")
	}
	sm.session.Activate(userID)
	slog.Info("translation started", "participant", userID, "language", sm.session.Language(userID))
	return nil
}

// StopTranslation deactivates every participant. The voice connection stays
// up; buffered speech is discarded.
func (sm *SessionManager) StopTranslation() {
	sm.session.DeactivateAll()
	sm.segmenter.Reset()
	slog.Info("translation stopped")
}

// AddParticipant sets a participant's language and activates them.
func (sm *SessionManager) AddParticipant(userID, language string) error {
	if err := sm.session.SetLanguage(userID, language); err != nil {
		return err
	}
	sm.session.Activate(userID)
	slog.Info("participant added", "participant", userID, "language", language)
	return nil
}

// SetLanguage changes a participant's language without touching their active
// state.
func (sm *SessionManager) SetLanguage(userID, language string) error {
	return sm.session.SetLanguage(userID, language)
}

// SetThreshold adjusts the segmenter's speech detection threshold.
func (sm *SessionManager) SetThreshold(value float64) error {
	return sm.segmenter.SetThreshold(value)
}

// Status returns a snapshot for /translate status.
func (sm *SessionManager) Status() commands.Status {
	sm.mu.Lock()
	channelID := sm.info.VoiceChannelID
	connected := sm.active
	sm.mu.Unlock()

	return commands.Status{
		Connected:    connected,
		ChannelID:    channelID,
		Participants: sm.session.Participants(),
		Threshold:    sm.segmenter.Threshold(),
		SourceLang:   sm.session.DefaultLanguage(),
		TargetLang:   sm.defaultTarget,
	}
}

// Info returns metadata about the active session. Zero value when idle.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// ─── Internals ───────────────────────────────────────────────────────────────

// startReader launches the frame loop for one participant unless one is
// already running. Caller holds sm.mu or is inside Join's critical section.
func (sm *SessionManager) startReader(ctx context.Context, userID string, ch <-chan audio.AudioFrame) {
	if sm.readers[userID] {
		return
	}
	sm.readers[userID] = true
	go func() {
		defer func() {
			sm.mu.Lock()
			delete(sm.readers, userID)
			sm.mu.Unlock()
		}()
		sm.readFrames(ctx, userID, ch)
	}()
}

// readFrames feeds one participant's frames into the segmenter until the
// session ends or the stream closes.
func (sm *SessionManager) readFrames(ctx context.Context, userID string, ch <-chan audio.AudioFrame) {
	for {
		select {
		case <-ctx.Done():
			// Keep the transport's decode loop from blocking on a channel
			// nobody reads; the connection closes it on disconnect.
			go audio.Drain(ch)
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			sm.segmenter.OnFrame(userID, frame.Data)
		}
	}
}

// noticeSink binds translation notices to the session's text channel.
func (sm *SessionManager) noticeSink(textChannelID string) func(relay.Notice) {
	return func(n relay.Notice) {
		sm.mu.Lock()
		notify := sm.notify
		sm.mu.Unlock()
		if notify == nil || textChannelID == "" {
			return
		}
		notify(textChannelID, fmt.Sprintf("<@%s> → %s: %s", n.Participant, n.Target, n.Text))
	}
}
