package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/speakswap/speakswap/internal/config"
	sttmock "github.com/speakswap/speakswap/pkg/provider/stt/mock"
	translatemock "github.com/speakswap/speakswap/pkg/provider/translate/mock"
	ttsmock "github.com/speakswap/speakswap/pkg/provider/tts/mock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			DataDir:    t.TempDir(),
		},
	}
}

func testProviders() *Providers {
	return &Providers{
		STT:       &sttmock.Provider{},
		Translate: &translatemock.Provider{},
		TTS:       &ttsmock.Provider{},
	}
}

func TestNew_WiresSubsystems(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if a.Store() == nil {
		t.Error("conversation store not wired")
	}
	if a.SessionManager() == nil {
		t.Fatal("session manager not wired")
	}

	st := a.SessionManager().Status()
	if st.SourceLang != "it" || st.TargetLang != "en" {
		t.Errorf("default languages = %s/%s, want it/en", st.SourceLang, st.TargetLang)
	}
}

func TestNew_DefaultsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Relay.DefaultSourceLanguage = "de"
	cfg.Relay.DefaultTargetLanguage = "fr"
	cfg.Relay.SpeechThreshold = 0.2

	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	st := a.SessionManager().Status()
	if st.SourceLang != "de" || st.TargetLang != "fr" {
		t.Errorf("languages = %s/%s, want de/fr", st.SourceLang, st.TargetLang)
	}
	if st.Threshold != 0.2 {
		t.Errorf("threshold = %v, want 0.2", st.Threshold)
	}
}

func TestNew_RejectsUnsupportedDefaultLanguage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Relay.DefaultSourceLanguage = "tlh"
	if _, err := New(context.Background(), cfg, testProviders()); err == nil {
		t.Error("unsupported default language should fail New")
	}
}

func TestNew_RemoteModeFallsBackToLocal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Relay.Mode = config.PipelineRemote
	cfg.Relay.RemoteURL = "http://127.0.0.1:1"

	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New with remote mode: %v", err)
	}
	if a.stages == nil {
		t.Fatal("stage chain not built")
	}
}

func TestNew_RemoteModeRequiresURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Relay.Mode = config.PipelineRemote
	if _, err := New(context.Background(), cfg, testProviders()); err == nil {
		t.Error("remote mode without a URL should fail New")
	}
}

func TestApplyReload_AdjustsLogLevelAndRelayTuning(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)

	a, err := New(context.Background(), testConfig(t), testProviders(), WithLogLevel(lv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a.ApplyReload(config.ConfigDiff{
		LogLevelChanged: true,
		NewLogLevel:     config.LogDebug,
		RelayChanged:    true,
		NewRelay: config.RelayConfig{
			SpeechThreshold:   0.4,
			SilenceDuration:   time.Second,
			MinSpeechDuration: 300 * time.Millisecond,
		},
	})

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	if got := a.segmenter.Threshold(); got != 0.4 {
		t.Errorf("threshold after reload = %v, want 0.4", got)
	}

	// Invalid values are logged and skipped, not applied.
	a.ApplyReload(config.ConfigDiff{
		RelayChanged: true,
		NewRelay:     config.RelayConfig{SpeechThreshold: 2.0},
	})
	if got := a.segmenter.Threshold(); got != 0.4 {
		t.Errorf("threshold after bad reload = %v, want 0.4", got)
	}
}

func TestApp_ServesHTTPSurface(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(a.server.Handler())
	defer srv.Close()

	for _, path := range []string{"/supported-languages", "/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
