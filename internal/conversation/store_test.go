package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/speakswap/speakswap/internal/observe"
	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/stt"
	sttmock "github.com/speakswap/speakswap/pkg/provider/stt/mock"
	trmock "github.com/speakswap/speakswap/pkg/provider/translate/mock"
	"github.com/speakswap/speakswap/pkg/provider/tts"
	ttsmock "github.com/speakswap/speakswap/pkg/provider/tts/mock"
)

var testPCM = make([]byte, 16000*2) // one second of 16kHz mono silence

var testAudioFormat = audio.Format{SampleRate: 16000, Channels: 1}

func newTestStore(t *testing.T, sttp *sttmock.Provider, tr *trmock.Provider, ttsp *ttsmock.Provider) *Store {
	t.Helper()
	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewStore(sttp, tr, ttsp, files)
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &sttmock.Provider{}, &trmock.Provider{}, &ttsmock.Provider{})

	rec, err := s.Create("it", "en")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(rec.Code) != 8 {
		t.Errorf("code %q length = %d, want 8", rec.Code, len(rec.Code))
	}
	if rec.Status != StatusUploaded {
		t.Errorf("Status = %q, want %q", rec.Status, StatusUploaded)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := s.Get(rec.Code)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SourceLanguage != "it" || got.TargetLanguage != "en" {
		t.Errorf("languages = %s/%s, want it/en", got.SourceLanguage, got.TargetLanguage)
	}

	if _, err := s.Get("nope1234"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown = %v, want ErrNotFound", err)
	}
	if _, err := s.Create("xx", ""); err == nil {
		t.Error("Create with unsupported source should fail")
	}
	if _, err := s.Create("it", "xx"); err == nil {
		t.Error("Create with unsupported target should fail")
	}
}

func TestStore_ProcessHappyPath(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Ciao a tutti", Confidence: 0.95}}
	tr := &trmock.Provider{Results: map[string]string{"it-IT->en-US": "Hello everyone"}}
	ttsp := &ttsmock.Provider{Result: tts.Result{PCM: make([]byte, 4800), SampleRate: 24000, Channels: 1}}
	s := newTestStore(t, sttp, tr, ttsp)

	rec, err := s.Create("it", "en")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	got, err := s.Get(rec.Code)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("Status = %q (message %q), want completed", got.Status, got.ErrorMessage)
	}
	if got.TranscribedText != "Ciao a tutti" {
		t.Errorf("TranscribedText = %q", got.TranscribedText)
	}
	if got.Translations["en"] != "Hello everyone" {
		t.Errorf("Translations[en] = %q, want %q", got.Translations["en"], "Hello everyone")
	}
	if got.AudioFiles["en"] == "" {
		t.Error("expected a synthesized audio artifact for en")
	}
	if _, err := s.Files().Path(got.AudioFiles["en"]); err != nil {
		t.Errorf("audio artifact not on disk: %v", err)
	}

	// Providers saw full locale tags.
	if len(sttp.TranscribeCalls) != 1 || sttp.TranscribeCalls[0].Req.Language != "it-IT" {
		t.Errorf("stt calls = %+v, want one it-IT call", sttp.TranscribeCalls)
	}
	if len(ttsp.SynthesizeCalls) != 1 || ttsp.SynthesizeCalls[0].Language != "en-US" {
		t.Errorf("tts calls = %+v, want one en-US call", ttsp.SynthesizeCalls)
	}
}

func TestStore_ProcessEmptyTranscription(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: ""}}
	tr := &trmock.Provider{}
	ttsp := &ttsmock.Provider{}
	s := newTestStore(t, sttp, tr, ttsp)

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	got, _ := s.Get(rec.Code)
	if got.Status != StatusError {
		t.Fatalf("Status = %q, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "no text recognized") {
		t.Errorf("ErrorMessage = %q, want a no-text-recognized indicator", got.ErrorMessage)
	}
	if tr.CallCount() != 0 {
		t.Error("no translation should run after an empty transcription")
	}
	if ttsp.CallCount() != 0 {
		t.Error("no synthesis should run after an empty transcription")
	}
}

func TestStore_ProcessTranscribeFailure(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Err: errors.New("azure: 401")}
	s := newTestStore(t, sttp, &trmock.Provider{}, &ttsmock.Provider{})

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	got, _ := s.Get(rec.Code)
	if got.Status != StatusError {
		t.Fatalf("Status = %q, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "401") {
		t.Errorf("ErrorMessage = %q, want provider error", got.ErrorMessage)
	}
}

func TestStore_ProcessMultipleTargets(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Buongiorno"}}
	tr := &trmock.Provider{Results: map[string]string{
		"it-IT->en-US": "Good morning",
		"it-IT->fr-FR": "Bonjour",
	}}
	ttsp := &ttsmock.Provider{Result: tts.Result{PCM: []byte{1, 2}, SampleRate: 24000, Channels: 1}}
	s := newTestStore(t, sttp, tr, ttsp)

	rec, _ := s.Create("it", "")
	// "it" in the target list must be skipped, not translated to itself.
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, []string{"en", "fr", "it"})

	got, _ := s.Get(rec.Code)
	if got.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
	if got.Translations["en"] != "Good morning" || got.Translations["fr"] != "Bonjour" {
		t.Errorf("Translations = %v", got.Translations)
	}
	if _, ok := got.Translations["it"]; ok {
		t.Error("source language must not be translated to itself")
	}
	if tr.CallCount() != 2 {
		t.Errorf("translate calls = %d, want 2", tr.CallCount())
	}
}

func TestStore_ProcessAllTargetsFail(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Ciao"}}
	tr := &trmock.Provider{Err: errors.New("quota exceeded")}
	s := newTestStore(t, sttp, tr, &ttsmock.Provider{})

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	got, _ := s.Get(rec.Code)
	if got.Status != StatusError {
		t.Fatalf("Status = %q, want error when every target fails", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "quota exceeded") {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

func TestStore_SynthesisFailureKeepsText(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Ciao"}}
	tr := &trmock.Provider{Results: map[string]string{"it-IT->en-US": "Hello"}}
	ttsp := &ttsmock.Provider{Err: errors.New("voice service down")}
	s := newTestStore(t, sttp, tr, ttsp)

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	got, _ := s.Get(rec.Code)
	if got.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed despite synthesis failure", got.Status)
	}
	if got.Translations["en"] != "Hello" {
		t.Errorf("Translations[en] = %q, want text kept", got.Translations["en"])
	}
	if _, ok := got.AudioFiles["en"]; ok {
		t.Error("no audio artifact should be recorded on synthesis failure")
	}
}

func TestStore_SubmitRunsAsync(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Ciao"}}
	tr := &trmock.Provider{Results: map[string]string{"it-IT->en-US": "Hello"}}
	ttsp := &ttsmock.Provider{Result: tts.Result{PCM: []byte{0}, SampleRate: 24000, Channels: 1}}
	s := newTestStore(t, sttp, tr, ttsp)

	code, err := s.Submit(context.Background(), testPCM, testAudioFormat, "it", []string{"en"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := s.Get(code)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == StatusCompleted {
			if got.Translations["en"] != "Hello" {
				t.Errorf("Translations[en] = %q", got.Translations["en"])
			}
			return
		}
		if got.Status == StatusError {
			t.Fatalf("pipeline failed: %s", got.ErrorMessage)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out in status %q", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStore_EnsureTranslationOnDemand(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Ciao"}}
	tr := &trmock.Provider{Results: map[string]string{
		"it-IT->en-US": "Hello",
		"it-IT->de-DE": "Hallo",
	}}
	ttsp := &ttsmock.Provider{Result: tts.Result{PCM: []byte{0}, SampleRate: 24000, Channels: 1}}
	s := newTestStore(t, sttp, tr, ttsp)

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	// German was never requested at upload time; the poll triggers it.
	got, err := s.EnsureTranslation(context.Background(), rec.Code, "de")
	if err != nil {
		t.Fatalf("EnsureTranslation: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
	if got.Translations["de"] != "Hallo" {
		t.Errorf("Translations[de] = %q, want %q", got.Translations["de"], "Hallo")
	}

	// Repeating the poll is idempotent: no second translate call.
	calls := tr.CallCount()
	again, err := s.EnsureTranslation(context.Background(), rec.Code, "de")
	if err != nil {
		t.Fatalf("EnsureTranslation (repeat): %v", err)
	}
	if again.Translations["de"] != "Hallo" {
		t.Errorf("repeat Translations[de] = %q", again.Translations["de"])
	}
	if tr.CallCount() != calls {
		t.Error("repeated poll must not re-translate")
	}

	if _, err := s.EnsureTranslation(context.Background(), rec.Code, "xx"); err == nil {
		t.Error("unsupported target should be rejected")
	}
	if _, err := s.EnsureTranslation(context.Background(), "nope1234", "de"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown code = %v, want ErrNotFound", err)
	}
}

func TestStore_GenerateAudio(t *testing.T) {
	t.Parallel()

	ttsp := &ttsmock.Provider{Result: tts.Result{PCM: make([]byte, 100), SampleRate: 24000, Channels: 1}}
	s := newTestStore(t, &sttmock.Provider{}, &trmock.Provider{}, ttsp)

	id, err := s.GenerateAudio(context.Background(), "Hello there", "en")
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	if _, err := s.Files().Path(id); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	if len(ttsp.SynthesizeCalls) != 1 {
		t.Fatalf("synthesize calls = %d, want 1", len(ttsp.SynthesizeCalls))
	}
	if got := ttsp.SynthesizeCalls[0]; got.Language != "en-US" || got.Text != "Hello there" {
		t.Errorf("synthesize request = %+v", got)
	}

	if _, err := s.GenerateAudio(context.Background(), "", "en"); err == nil {
		t.Error("empty text should be rejected")
	}
	if _, err := s.GenerateAudio(context.Background(), "hi", "xx"); err == nil {
		t.Error("unsupported language should be rejected")
	}
}

func TestStore_SubmitPersistsOriginalAudio(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Ciao"}}
	tr := &trmock.Provider{Results: map[string]string{"it-IT->en-US": "Hello"}}
	ttsp := &ttsmock.Provider{Result: tts.Result{PCM: []byte{0}, SampleRate: 24000, Channels: 1}}
	s := newTestStore(t, sttp, tr, ttsp)

	code, err := s.Submit(context.Background(), testPCM, testAudioFormat, "it", []string{"en"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := s.Get(code)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OriginalAudio == "" {
		t.Fatal("Submit should persist the uploaded audio as an artifact")
	}
	if _, err := s.Files().Path(got.OriginalAudio); err != nil {
		t.Errorf("original audio artifact not on disk: %v", err)
	}
	data, err := s.Files().Read(got.OriginalAudio)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	pcm, format, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("persisted upload is not WAV: %v", err)
	}
	if format != testAudioFormat || len(pcm) != len(testPCM) {
		t.Errorf("persisted upload = %d bytes %+v, want %d bytes %+v",
			len(pcm), format, len(testPCM), testAudioFormat)
	}
}

func TestStore_EnsureTranslatedAudio(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: "Ciao"}}
	tr := &trmock.Provider{Results: map[string]string{"it-IT->en-US": "Hello"}}
	// Synthesis fails during the pipeline: the translation text survives
	// without an audio artifact.
	ttsp := &ttsmock.Provider{Err: errors.New("voice backend down")}
	s := newTestStore(t, sttp, tr, ttsp)

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	got, _ := s.Get(rec.Code)
	if got.Status != StatusCompleted || got.AudioFiles["en"] != "" {
		t.Fatalf("precondition: status %q, audio %q", got.Status, got.AudioFiles["en"])
	}

	// The backend recovers; the audio is synthesized on demand and attached.
	ttsp.Err = nil
	ttsp.Result = tts.Result{PCM: []byte{0, 0}, SampleRate: 24000, Channels: 1}

	id, err := s.EnsureTranslatedAudio(context.Background(), rec.Code, "en")
	if err != nil {
		t.Fatalf("EnsureTranslatedAudio: %v", err)
	}
	if _, err := s.Files().Path(id); err != nil {
		t.Errorf("artifact not on disk: %v", err)
	}
	got, _ = s.Get(rec.Code)
	if got.AudioFiles["en"] != id {
		t.Errorf("AudioFiles[en] = %q, want %q", got.AudioFiles["en"], id)
	}

	// A second request reuses the stored artifact instead of synthesizing.
	calls := ttsp.CallCount()
	again, err := s.EnsureTranslatedAudio(context.Background(), rec.Code, "en")
	if err != nil || again != id {
		t.Errorf("second call = %q, %v; want %q, nil", again, err, id)
	}
	if ttsp.CallCount() != calls {
		t.Error("existing artifact should not trigger synthesis")
	}

	// Error surface: unknown code, unsupported target, missing translation.
	if _, err := s.EnsureTranslatedAudio(context.Background(), "nope1234", "en"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown code = %v, want ErrNotFound", err)
	}
	if _, err := s.EnsureTranslatedAudio(context.Background(), rec.Code, "xx"); err == nil {
		t.Error("unsupported target should be rejected")
	}
	if _, err := s.EnsureTranslatedAudio(context.Background(), rec.Code, "pt"); !errors.Is(err, ErrAudioNotAvailable) {
		t.Errorf("missing translation = %v, want ErrAudioNotAvailable", err)
	}
}

func TestStore_EmptyTranscriptionCountsMetric(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s := NewStore(
		&sttmock.Provider{Result: stt.Result{Text: ""}},
		&trmock.Provider{}, &ttsmock.Provider{}, files,
		WithMetrics(metrics),
	)

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var sum *metricdata.Sum[int64]
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name == "speakswap.transcriptions.empty" {
				if data, ok := met.Data.(metricdata.Sum[int64]); ok {
					sum = &data
				}
			}
		}
	}
	if sum == nil || len(sum.DataPoints) != 1 {
		t.Fatal("expected one data point for the empty-transcription counter")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestStore_ErrorStatusIsTerminal(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Result: stt.Result{Text: ""}}
	s := newTestStore(t, sttp, &trmock.Provider{}, &ttsmock.Provider{})

	rec, _ := s.Create("it", "en")
	s.Process(context.Background(), rec.Code, testPCM, testAudioFormat, nil)

	s.setStatus(rec.Code, StatusCompleted)
	got, _ := s.Get(rec.Code)
	if got.Status != StatusError {
		t.Errorf("Status = %q, error must stay terminal", got.Status)
	}
}
