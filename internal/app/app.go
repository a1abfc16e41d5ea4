// Package app wires all SpeakSwap subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the HTTP surface and blocks, and Shutdown tears
// everything down in order. The voice-session side (connect, per-participant
// frame loops, dispatch) is owned by [SessionManager], which the Discord
// slash commands drive.
//
// For testing, inject mock implementations via functional options
// (WithMetrics, WithFileStore, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/speakswap/speakswap/internal/config"
	"github.com/speakswap/speakswap/internal/conversation"
	"github.com/speakswap/speakswap/internal/health"
	"github.com/speakswap/speakswap/internal/httpapi"
	"github.com/speakswap/speakswap/internal/observe"
	"github.com/speakswap/speakswap/internal/relay"
	"github.com/speakswap/speakswap/internal/resilience"
	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/stt"
	"github.com/speakswap/speakswap/pkg/provider/translate"
	"github.com/speakswap/speakswap/pkg/provider/tts"
	"github.com/speakswap/speakswap/pkg/provider/vad"
	"github.com/speakswap/speakswap/pkg/provider/vad/energy"
)

// defaultDataDir is where audio artifacts land when server.data_dir is unset.
const defaultDataDir = "./data"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT       stt.Provider
	Translate translate.Provider
	TTS       tts.Provider
	VAD       vad.Engine
	Audio     audio.Platform
}

// App owns all subsystem lifetimes: the conversation store and its HTTP
// surface, the relay primitives shared by voice sessions, and the log level
// handle for hot reload.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics   *observe.Metrics
	health    *health.Handler
	files     *conversation.FileStore
	store     *conversation.Store
	server    *httpapi.Server
	session   *relay.SessionState
	queue     *relay.Queue
	segmenter *relay.Segmenter
	stages    *resilience.FallbackGroup[relay.Stage]
	manager   *SessionManager

	// logLevel is the dynamic handle behind the default slog handler,
	// adjustable on config reload.
	logLevel *slog.LevelVar

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHealth injects a health handler instead of creating an empty one.
func WithHealth(h *health.Handler) Option {
	return func(a *App) { a.health = h }
}

// WithFileStore injects an artifact store instead of creating one under
// server.data_dir.
func WithFileStore(fs *conversation.FileStore) Option {
	return func(a *App) { a.files = fs }
}

// WithLogLevel hands New the level var behind the process logger so config
// reloads can adjust verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(_ context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.health == nil {
		a.health = health.New()
	}

	if err := a.initConversation(); err != nil {
		return nil, fmt.Errorf("app: init conversation: %w", err)
	}
	if err := a.initRelay(); err != nil {
		return nil, fmt.Errorf("app: init relay: %w", err)
	}
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	a.registerReadiness()

	a.manager = NewSessionManager(SessionManagerConfig{
		Platform:      providers.Audio,
		Session:       a.session,
		Segmenter:     a.segmenter,
		Queue:         a.queue,
		Stages:        a.stages,
		TTS:           providers.TTS,
		Artifacts:     a.files,
		Metrics:       a.metrics,
		DefaultTarget: a.defaultTarget(),
	})

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initConversation sets up the artifact store and the conversation record
// pipeline over the configured providers.
func (a *App) initConversation() error {
	if a.files == nil {
		dir := a.cfg.Server.DataDir
		if dir == "" {
			dir = defaultDataDir
		}
		fs, err := conversation.NewFileStore(dir)
		if err != nil {
			return err
		}
		a.files = fs
	}

	a.store = conversation.NewStore(
		a.providers.STT,
		a.providers.Translate,
		a.providers.TTS,
		a.files,
		conversation.WithMetrics(a.metrics),
	)
	return nil
}

// initRelay builds the shared voice-session primitives: session state,
// dispatch queue, segmenter, and the processing stage chain.
func (a *App) initRelay() error {
	source := a.cfg.Relay.DefaultSourceLanguage
	if source == "" {
		source = "it"
	}

	var sessOpts []relay.SessionOption
	if a.cfg.Relay.ProcessingTimeout > 0 {
		sessOpts = append(sessOpts, relay.WithProcessingTimeout(a.cfg.Relay.ProcessingTimeout))
	}
	if a.metrics != nil {
		sessOpts = append(sessOpts, relay.WithSessionMetrics(a.metrics))
	}
	session, err := relay.NewSessionState(source, sessOpts...)
	if err != nil {
		return err
	}
	a.session = session

	a.queue = relay.NewQueue(a.metrics)

	engine := a.providers.VAD
	if engine == nil {
		engine = energy.New()
	}
	a.segmenter = relay.NewSegmenter(session, a.queue, engine, relay.SegmenterConfig{
		SpeechThreshold:   a.cfg.Relay.SpeechThreshold,
		SilenceDuration:   a.cfg.Relay.SilenceDuration,
		MinSpeechDuration: a.cfg.Relay.MinSpeechDuration,
		Format:            audio.Format{SampleRate: 48000, Channels: 2},
	})

	a.stages, err = a.buildStages()
	return err
}

// buildStages assembles the utterance processing chain: the remote delegate
// first when configured, the local in-process pipeline always last.
func (a *App) buildStages() (*resilience.FallbackGroup[relay.Stage], error) {
	local := relay.NewLocalStage(a.store)

	if a.cfg.Relay.Mode != config.PipelineRemote {
		return resilience.NewFallbackGroup[relay.Stage](local, "local", resilience.FallbackConfig{}), nil
	}

	remote, err := relay.NewRemoteStage(a.cfg.Relay.RemoteURL)
	if err != nil {
		return nil, err
	}
	group := resilience.NewFallbackGroup[relay.Stage](remote, "remote", resilience.FallbackConfig{})
	group.AddFallback("local", local)
	slog.Info("remote pipeline enabled", "url", a.cfg.Relay.RemoteURL)
	return group, nil
}

// initServer builds the HTTP surface over the conversation store.
func (a *App) initServer() error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	serverOpts := []httpapi.ServerOption{
		httpapi.WithMetrics(a.metrics),
		httpapi.WithHealth(a.health),
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		serverOpts = append(serverOpts, httpapi.WithTLS(tls.CertFile, tls.KeyFile))
	}

	srv, err := httpapi.NewServer(addr, a.store, serverOpts...)
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// registerReadiness wires the /readyz probes: the speech providers must be
// configured and the artifact directory must still be writable.
func (a *App) registerReadiness() {
	a.health.Add(health.Checker{Name: "providers", Check: func(_ context.Context) error {
		switch {
		case a.providers.STT == nil:
			return errors.New("stt provider not configured")
		case a.providers.Translate == nil:
			return errors.New("translate provider not configured")
		case a.providers.TTS == nil:
			return errors.New("tts provider not configured")
		}
		return nil
	}})
	a.health.Add(health.Checker{Name: "artifacts", Check: func(_ context.Context) error {
		info, err := os.Stat(a.files.Dir())
		if err != nil {
			return fmt.Errorf("data directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("data directory %s is not a directory", a.files.Dir())
		}
		return nil
	}})
}

func (a *App) defaultTarget() string {
	if t := a.cfg.Relay.DefaultTargetLanguage; t != "" {
		return t
	}
	return "en"
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Store returns the conversation record store.
func (a *App) Store() *conversation.Store { return a.store }

// SessionManager returns the voice-session controller driven by the slash
// commands.
func (a *App) SessionManager() *SessionManager { return a.manager }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP surface and blocks until ctx is cancelled or the
// listener fails.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running",
		"listen_addr", a.cfg.Server.ListenAddr,
		"relay_mode", a.cfg.Relay.Mode,
		"default_source", a.session.DefaultLanguage(),
		"default_target", a.defaultTarget(),
	)
	return a.server.ListenAndServe(ctx)
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyReload applies a hot-reloadable config change: log level and relay
// tuning. Provider and transport changes require a restart and are ignored
// here.
func (a *App) ApplyReload(d config.ConfigDiff) {
	if !d.HasChanges() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.RelayChanged {
		r := d.NewRelay
		if r.SpeechThreshold > 0 {
			if err := a.segmenter.SetThreshold(r.SpeechThreshold); err != nil {
				slog.Warn("reload: bad speech threshold", "value", r.SpeechThreshold, "err", err)
			}
		}
		a.segmenter.SetTiming(r.SilenceDuration, r.MinSpeechDuration)
		slog.Info("relay tuning reloaded",
			"threshold", a.segmenter.Threshold(),
			"silence", r.SilenceDuration,
			"min_speech", r.MinSpeechDuration,
		)
	}
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down the voice session. The HTTP server stops when the Run
// context is cancelled; in-flight conversation processing is detached from
// request contexts and finishes on its own.
func (a *App) Shutdown(_ context.Context) error {
	a.stopOnce.Do(func() {
		if a.manager != nil && a.manager.Connected() {
			if err := a.manager.Leave(); err != nil {
				slog.Warn("voice session leave error", "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return nil
}
