// Package conversation tracks the per-request records behind the HTTP
// surface and drives the transcribe/translate/synthesize pipeline for each
// one. Records live for the process lifetime and are mutated only by the
// pipeline driving them; polling clients read copies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/speakswap/speakswap/internal/lang"
	"github.com/speakswap/speakswap/internal/observe"
	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/stt"
	"github.com/speakswap/speakswap/pkg/provider/translate"
	"github.com/speakswap/speakswap/pkg/provider/tts"
)

// Status is the lifecycle phase of a conversation record. It advances
// monotonically except for StatusError, which is terminal.
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusProcessing  Status = "processing"
	StatusTranslating Status = "translating"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// ErrNoTextRecognized marks a transcription that produced no text.
var ErrNoTextRecognized = errors.New("no text recognized")

// ErrNotFound is returned for unknown conversation codes.
var ErrNotFound = errors.New("conversation not found")

// codeLength is the number of UUID characters used for conversation codes.
const codeLength = 8

// Record is one tracked conversation. Map keys are short language codes
// ("en", "fr").
type Record struct {
	Code            string
	Status          Status
	CreatedAt       time.Time
	SourceLanguage  string
	TargetLanguage  string
	TranscribedText string
	Translations    map[string]string
	AudioFiles      map[string]string
	OriginalAudio   string // artifact ID of the uploaded audio
	ErrorMessage    string
}

// clone returns a deep copy so readers never alias the store's maps.
func (r *Record) clone() Record {
	out := *r
	out.Translations = make(map[string]string, len(r.Translations))
	for k, v := range r.Translations {
		out.Translations[k] = v
	}
	out.AudioFiles = make(map[string]string, len(r.AudioFiles))
	for k, v := range r.AudioFiles {
		out.AudioFiles[k] = v
	}
	return out
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMetrics attaches pipeline metrics to the store.
func WithMetrics(m *observe.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.clock = now }
}

// Store holds all conversation records and the providers that advance them.
// Safe for concurrent use.
type Store struct {
	stt        stt.Provider
	translator translate.Provider
	tts        tts.Provider
	files      *FileStore
	metrics    *observe.Metrics
	clock      func() time.Time

	mu      sync.Mutex
	records map[string]*Record
}

// NewStore wires a record store over the given providers. files receives
// synthesized audio artifacts.
func NewStore(sttp stt.Provider, tr translate.Provider, ttsp tts.Provider, files *FileStore, opts ...StoreOption) *Store {
	s := &Store{
		stt:        sttp,
		translator: tr,
		tts:        ttsp,
		files:      files,
		clock:      time.Now,
		records:    make(map[string]*Record),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Files returns the artifact store backing generated audio.
func (s *Store) Files() *FileStore {
	return s.files
}

// Create registers a new record in the uploaded state and returns its code.
func (s *Store) Create(source, target string) (*Record, error) {
	if err := lang.Validate(source); err != nil {
		return nil, err
	}
	if target != "" {
		if err := lang.Validate(target); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	code := uuid.NewString()[:codeLength]
	for s.records[code] != nil {
		code = uuid.NewString()[:codeLength]
	}
	rec := &Record{
		Code:           code,
		Status:         StatusUploaded,
		CreatedAt:      s.clock(),
		SourceLanguage: source,
		TargetLanguage: target,
		Translations:   make(map[string]string),
		AudioFiles:     make(map[string]string),
	}
	s.records[code] = rec
	out := rec.clone()
	return &out, nil
}

// Get returns a copy of the record for code.
func (s *Store) Get(code string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[code]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, code)
	}
	return rec.clone(), nil
}

// Submit creates a record, persists the uploaded audio as an artifact, and
// starts the pipeline in the background. targets lists the short language
// codes to translate into; an empty list falls back to the record's single
// target language.
func (s *Store) Submit(ctx context.Context, pcm []byte, format audio.Format, source string, targets []string) (string, error) {
	target := ""
	if len(targets) > 0 {
		target = targets[0]
	}
	rec, err := s.Create(source, target)
	if err != nil {
		return "", err
	}
	if s.files != nil {
		id, err := s.files.Save(pcm, format.SampleRate, format.Channels)
		if err != nil {
			return "", fmt.Errorf("conversation: persist upload: %w", err)
		}
		s.mu.Lock()
		if stored := s.records[rec.Code]; stored != nil {
			stored.OriginalAudio = id
		}
		s.mu.Unlock()
	}
	go s.Process(context.WithoutCancel(ctx), rec.Code, pcm, format, targets)
	return rec.Code, nil
}

// Process drives one record through the pipeline: transcribe the audio, then
// translate and synthesize for every target. It never returns an error to the
// caller: all failures land in the record's status and message.
func (s *Store) Process(ctx context.Context, code string, pcm []byte, format audio.Format, targets []string) {
	rec, err := s.Get(code)
	if err != nil {
		slog.Error("conversation: process unknown record", "code", code)
		return
	}
	if len(targets) == 0 && rec.TargetLanguage != "" {
		targets = []string{rec.TargetLanguage}
	}

	s.setStatus(code, StatusProcessing)

	start := s.clock()
	res, err := s.stt.Transcribe(ctx, stt.Request{
		PCM:        pcm,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Language:   lang.Locale(rec.SourceLanguage),
	})
	if err != nil {
		s.fail(ctx, code, "transcribe", err)
		return
	}
	if res.Text == "" {
		if s.metrics != nil {
			s.metrics.EmptyTranscriptions.Add(ctx, 1)
		}
		s.fail(ctx, code, "transcribe", ErrNoTextRecognized)
		return
	}
	if s.metrics != nil {
		s.metrics.STTDuration.Record(ctx, s.clock().Sub(start).Seconds())
	}

	s.mu.Lock()
	if rec := s.records[code]; rec != nil {
		rec.TranscribedText = res.Text
		rec.Status = StatusTranslating
	}
	s.mu.Unlock()

	var translated int
	var lastErr error
	for _, target := range targets {
		if target == rec.SourceLanguage {
			continue
		}
		if err := s.translateTarget(ctx, code, res.Text, rec.SourceLanguage, target); err != nil {
			slog.Error("conversation: target failed",
				"code", code, "target", target, "error", err)
			lastErr = err
			continue
		}
		translated++
	}
	if translated == 0 && lastErr != nil {
		s.fail(ctx, code, "translate", lastErr)
		return
	}

	s.setStatus(code, StatusCompleted)
	slog.Info("conversation: completed",
		"code", code, "source", rec.SourceLanguage, "targets", targets)
}

// translateTarget produces the translated text and synthesized audio for one
// target language and attaches both to the record.
func (s *Store) translateTarget(ctx context.Context, code, text, source, target string) error {
	start := s.clock()
	out, err := s.translator.Translate(ctx, text, lang.Locale(source), lang.Locale(target))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordPipelineError(ctx, "translate")
		}
		return fmt.Errorf("translate %s->%s: %w", source, target, err)
	}
	if s.metrics != nil {
		s.metrics.TranslateDuration.Record(ctx, s.clock().Sub(start).Seconds())
	}

	audioID := ""
	if s.tts != nil && s.files != nil {
		audioID, err = s.synthesize(ctx, out, target)
		if err != nil {
			// Text survived; only the audio artifact is missing.
			slog.Warn("conversation: synthesis failed",
				"code", code, "target", target, "error", err)
			audioID = ""
		}
	}

	s.mu.Lock()
	if rec := s.records[code]; rec != nil {
		rec.Translations[target] = out
		if audioID != "" {
			rec.AudioFiles[target] = audioID
		}
	}
	s.mu.Unlock()
	return nil
}

// synthesize turns text into a stored WAV artifact and returns its ID.
func (s *Store) synthesize(ctx context.Context, text, target string) (string, error) {
	start := s.clock()
	res, err := s.tts.Synthesize(ctx, tts.Request{
		Text:     text,
		Language: lang.Locale(target),
		Voice:    lang.Voice(target),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordPipelineError(ctx, "synthesize")
		}
		return "", err
	}
	if s.metrics != nil {
		s.metrics.TTSDuration.Record(ctx, s.clock().Sub(start).Seconds())
	}
	return s.files.Save(res.PCM, res.SampleRate, res.Channels)
}

// EnsureTranslation translates a completed record into target on demand. It
// returns the refreshed record. Records still moving through the pipeline are
// returned as-is so clients keep polling; unknown targets on completed
// records trigger a translate+synthesize pass, with the status passing
// through translating and back to completed.
func (s *Store) EnsureTranslation(ctx context.Context, code, target string) (Record, error) {
	if target != "" {
		if err := lang.Validate(target); err != nil {
			return Record{}, err
		}
	}

	rec, err := s.Get(code)
	if err != nil {
		return Record{}, err
	}
	if target == "" || rec.Status != StatusCompleted {
		return rec, nil
	}
	if _, ok := rec.Translations[target]; ok || target == rec.SourceLanguage {
		return rec, nil
	}

	s.setStatus(code, StatusTranslating)
	if err := s.translateTarget(ctx, code, rec.TranscribedText, rec.SourceLanguage, target); err != nil {
		// On-demand failure does not poison the record: the original
		// translations are still valid.
		s.setStatus(code, StatusCompleted)
		return Record{}, err
	}
	s.setStatus(code, StatusCompleted)
	return s.Get(code)
}

// ErrAudioNotAvailable is returned when a record has neither translated
// audio nor translated text for the requested target.
var ErrAudioNotAvailable = errors.New("translated audio not available")

// EnsureTranslatedAudio returns the artifact ID of the translated audio for
// target, synthesizing it on demand when the record already holds the
// translated text but no audio (synthesis may have failed or been skipped
// during the pipeline run).
func (s *Store) EnsureTranslatedAudio(ctx context.Context, code, target string) (string, error) {
	if err := lang.Validate(target); err != nil {
		return "", err
	}
	rec, err := s.Get(code)
	if err != nil {
		return "", err
	}
	if id, ok := rec.AudioFiles[target]; ok {
		return id, nil
	}
	text, ok := rec.Translations[target]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAudioNotAvailable, target)
	}
	if s.tts == nil || s.files == nil {
		return "", fmt.Errorf("conversation: no synthesis provider configured")
	}

	id, err := s.synthesize(ctx, text, target)
	if err != nil {
		return "", fmt.Errorf("synthesize %s: %w", target, err)
	}
	s.mu.Lock()
	if stored := s.records[code]; stored != nil {
		stored.AudioFiles[target] = id
	}
	s.mu.Unlock()
	return id, nil
}

// GenerateAudio synthesizes standalone text in target and stores the result,
// returning the artifact ID. Used by the generate-audio endpoint outside any
// conversation record.
func (s *Store) GenerateAudio(ctx context.Context, text, target string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("conversation: text must not be empty")
	}
	if err := lang.Validate(target); err != nil {
		return "", err
	}
	if s.tts == nil || s.files == nil {
		return "", fmt.Errorf("conversation: no synthesis provider configured")
	}
	return s.synthesize(ctx, text, target)
}

// Codes returns all known conversation codes in sorted order.
func (s *Store) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for code := range s.records {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// setStatus updates a record's status. Error records stay terminal.
func (s *Store) setStatus(code string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[code]
	if !ok || rec.Status == StatusError {
		return
	}
	rec.Status = status
}

// fail marks a record as terminally failed.
func (s *Store) fail(ctx context.Context, code, stage string, err error) {
	if s.metrics != nil {
		s.metrics.RecordPipelineError(ctx, stage)
	}
	slog.Error("conversation: pipeline failed", "code", code, "stage", stage, "error", err)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[code]
	if !ok {
		return
	}
	rec.Status = StatusError
	rec.ErrorMessage = err.Error()
}
