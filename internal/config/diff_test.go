package config_test

import (
	"testing"
	"time"

	"github.com/speakswap/speakswap/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Relay:  config.RelayConfig{SpeechThreshold: 0.015},
	}
	d := config.Diff(cfg, cfg)
	if d.HasChanges() {
		t.Error("expected no changes for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RelayChanged {
		t.Error("expected RelayChanged=false")
	}
}

func TestDiff_RelayChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Relay: config.RelayConfig{SpeechThreshold: 0.015, SilenceDuration: 700 * time.Millisecond},
	}
	new := &config.Config{
		Relay: config.RelayConfig{SpeechThreshold: 0.03, SilenceDuration: 700 * time.Millisecond},
	}

	d := config.Diff(old, new)
	if !d.RelayChanged {
		t.Error("expected RelayChanged=true")
	}
	if d.NewRelay.SpeechThreshold != 0.03 {
		t.Errorf("NewRelay.SpeechThreshold = %v, want 0.03", d.NewRelay.SpeechThreshold)
	}
	if !d.HasChanges() {
		t.Error("expected HasChanges=true")
	}
}

func TestDiff_ProviderChangeIgnored(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	new := &config.Config{}
	new.Providers.STT.Name = "whisper"

	// Provider swaps require a restart and must not show up as hot-reloadable.
	if d := config.Diff(old, new); d.HasChanges() {
		t.Error("provider change should not be reported as hot-reloadable")
	}
}
