package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speakswap/speakswap/internal/conversation"
	"github.com/speakswap/speakswap/internal/lang"
	"github.com/speakswap/speakswap/internal/observe"
	"github.com/speakswap/speakswap/internal/resilience"
	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/tts"
)

// Notice is a user-facing text notification of one finished translation.
type Notice struct {
	Participant string
	Target      string
	Text        string
}

// WorkerConfig wires a pipeline worker.
type WorkerConfig struct {
	Session *SessionState

	// Stages resolves the transcribe+translate leg, remote first when
	// configured, local always last.
	Stages *resilience.FallbackGroup[Stage]

	// TTS synthesizes translated text for playback. Optional; without it the
	// worker still emits text notices.
	TTS tts.Provider

	// Player streams synthesized audio to the voice connection. Optional.
	Player *Player

	// Artifacts persists the transient per-utterance WAV, removed again when
	// the pipeline run finishes. Optional.
	Artifacts *conversation.FileStore

	// Notify receives one Notice per produced translation. Optional.
	Notify func(Notice)

	// DefaultTarget is the fallback target language when no other active
	// participant provides one.
	DefaultTarget string

	Metrics *observe.Metrics

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

// Worker runs the speech pipeline for sealed utterances: transcribe,
// translate per target, synthesize, play back, notify. One Process call per
// utterance, launched by the dispatch queue; failures never propagate past
// the utterance they occur in.
type Worker struct {
	cfg WorkerConfig
}

// NewWorker validates the config and returns a worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("relay: worker needs a session state")
	}
	if cfg.Stages == nil {
		return nil, fmt.Errorf("relay: worker needs a pipeline stage")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Worker{cfg: cfg}, nil
}

// Process runs the full pipeline for one utterance. It always clears the
// participant's processing flag on the way out, and never panics out: the
// dispatch queue calls it on a bare goroutine.
func (w *Worker) Process(ctx context.Context, u Utterance) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline: recovered panic", "participant", u.Participant, "panic", r)
		}
		w.cfg.Session.EndProcessing(u.Participant, u.Generation)
	}()

	start := w.cfg.Clock()
	log := slog.With("participant", u.Participant, "language", u.Language)

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordUtterance(ctx, u.Language)
	}

	// Transient artifact for diagnostics and provider handoff; always
	// removed, success or failure.
	if w.cfg.Artifacts != nil {
		id, err := w.cfg.Artifacts.Save(u.PCM, u.Format.SampleRate, u.Format.Channels)
		if err != nil {
			log.Warn("pipeline: persist utterance artifact", "error", err)
		} else {
			defer func() { _ = w.cfg.Artifacts.Remove(id) }()
		}
	}

	targets := w.targets(u)
	if len(targets) == 0 {
		log.Debug("pipeline: no target languages, dropping utterance")
		return
	}

	translations, err := resilience.ExecuteWithResult(w.cfg.Stages,
		func(st Stage) (map[string]string, error) {
			return st.Process(ctx, u, targets)
		})
	if err != nil {
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordPipelineError(ctx, "stage")
		}
		log.Error("pipeline: stage failed", "targets", targets, "error", err)
		return
	}

	var g errgroup.Group
	for _, target := range targets {
		text, ok := translations[target]
		if !ok || text == "" {
			log.Warn("pipeline: no translation produced", "target", target)
			continue
		}
		g.Go(func() error {
			return w.deliver(ctx, u, target, text)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("pipeline: delivery failed", "error", err)
	}

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.PipelineDuration.Record(ctx, w.cfg.Clock().Sub(start).Seconds())
	}
	log.Info("pipeline: utterance done",
		"targets", targets, "duration", w.cfg.Clock().Sub(start))
}

// targets resolves the target-language set for an utterance: the languages
// of the other active participants, else the configured default.
func (w *Worker) targets(u Utterance) []string {
	targets := w.cfg.Session.TargetLanguages(u.Participant, u.Language)
	if len(targets) > 0 {
		return targets
	}
	if w.cfg.DefaultTarget != "" && w.cfg.DefaultTarget != u.Language {
		return []string{w.cfg.DefaultTarget}
	}
	return nil
}

// deliver synthesizes and plays one target's translation, then emits the
// text notice. Synthesis failures degrade to text-only delivery.
func (w *Worker) deliver(ctx context.Context, u Utterance, target, text string) error {
	if w.cfg.TTS != nil && w.cfg.Player != nil {
		res, err := w.cfg.TTS.Synthesize(ctx, tts.Request{
			Text:     text,
			Language: lang.Locale(target),
			Voice:    lang.Voice(target),
		})
		if err != nil {
			if w.cfg.Metrics != nil {
				w.cfg.Metrics.RecordPipelineError(ctx, "synthesize")
			}
			slog.Warn("pipeline: synthesis failed, delivering text only",
				"participant", u.Participant, "target", target, "error", err)
		} else {
			w.cfg.Player.Play(ctx, res.PCM, audio.Format{
				SampleRate: res.SampleRate,
				Channels:   res.Channels,
			})
		}
	}
	if w.cfg.Notify != nil {
		w.cfg.Notify(Notice{Participant: u.Participant, Target: target, Text: text})
	}
	return nil
}
