package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/speakswap/speakswap/internal/lang"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"azure", "whisper", "whisper-native"},
	"translate": {"azure", "openai"},
	"tts":       {"azure", "elevenlabs", "coqui"},
	"vad":       {"energy"},
	"audio":     {"discord"},
}

// Load reads the YAML configuration file at path, expands ${ENV} references,
// and returns a validated [Config].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(expandEnv(raw)))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// No environment expansion is performed; callers that want it should expand
// before handing over the reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} references with the value of the environment
// variable VAR. Bare $VAR references are left untouched so YAML containing
// literal dollar signs survives.
func expandEnv(raw []byte) []byte {
	return []byte(os.Expand(string(raw), func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return "${" + key + "}"
	}))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	if fb := cfg.Providers.STT.Fallback; fb != nil {
		validateProviderName("stt", fb.Name)
	}
	if fb := cfg.Providers.Translate.Fallback; fb != nil {
		validateProviderName("translate", fb.Name)
	}
	if fb := cfg.Providers.TTS.Fallback; fb != nil {
		validateProviderName("tts", fb.Name)
	}

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; voice sessions will not transcribe speech")
	}
	if cfg.Providers.Translate.Name == "" {
		slog.Warn("no translate provider configured; transcriptions will be relayed untranslated")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; translations will not be spoken back")
	}

	// Relay
	r := cfg.Relay
	if r.DefaultSourceLanguage != "" {
		if err := lang.Validate(r.DefaultSourceLanguage); err != nil {
			errs = append(errs, fmt.Errorf("relay.default_source_language: %w", err))
		}
	}
	if r.DefaultTargetLanguage != "" {
		if err := lang.Validate(r.DefaultTargetLanguage); err != nil {
			errs = append(errs, fmt.Errorf("relay.default_target_language: %w", err))
		}
	}
	if r.SpeechThreshold < 0 || r.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("relay.speech_threshold %.4f is out of range [0, 1]", r.SpeechThreshold))
	}
	if r.SilenceDuration < 0 {
		errs = append(errs, fmt.Errorf("relay.silence_duration %s must not be negative", r.SilenceDuration))
	}
	if r.MinSpeechDuration < 0 {
		errs = append(errs, fmt.Errorf("relay.min_speech_duration %s must not be negative", r.MinSpeechDuration))
	}
	if r.ProcessingTimeout < 0 {
		errs = append(errs, fmt.Errorf("relay.processing_timeout %s must not be negative", r.ProcessingTimeout))
	}
	if r.Mode != "" && !r.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("relay.mode %q is invalid; valid values: local, remote", r.Mode))
	}
	if r.Mode == PipelineRemote && r.RemoteURL == "" {
		errs = append(errs, errors.New("relay.remote_url is required when relay.mode is remote"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
