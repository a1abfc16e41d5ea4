// Package config provides the configuration schema, loader, and provider
// registry for the SpeakSwap translation relay.
package config

import "time"

// LogLevel controls log verbosity for the SpeakSwap server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// PipelineMode selects where utterances are processed.
type PipelineMode string

const (
	// PipelineLocal runs transcription, translation and synthesis in-process
	// against the configured providers.
	PipelineLocal PipelineMode = "local"

	// PipelineRemote delegates whole utterances to a companion server and
	// falls back to local processing when it is unreachable.
	PipelineRemote PipelineMode = "remote"
)

// IsValid reports whether m is a recognised pipeline mode.
func (m PipelineMode) IsValid() bool {
	return m == PipelineLocal || m == PipelineRemote
}

// Config is the root configuration structure for SpeakSwap.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Providers ProvidersConfig `yaml:"providers"`
	Relay     RelayConfig     `yaml:"relay"`
}

// ServerConfig holds network, storage and logging settings for the SpeakSwap
// server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// DataDir is the directory where uploaded and synthesized audio files are
	// stored. Defaults to "./data" when empty.
	DataDir string `yaml:"data_dir"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// DiscordConfig holds the Discord bot credentials. When Token is empty the
// relay runs headless with only the HTTP surface.
type DiscordConfig struct {
	// Token is the Discord bot token. Supports ${ENV} expansion.
	Token string `yaml:"token"`

	// GuildID optionally scopes slash command registration to a single guild,
	// which makes commands appear immediately during development.
	GuildID string `yaml:"guild_id"`

	// AdminRoleID restricts privileged commands (join, leave, stop, add,
	// threshold) to members holding this role. Empty allows everyone.
	AdminRoleID string `yaml:"admin_role_id"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT       ProviderEntry `yaml:"stt"`
	Translate ProviderEntry `yaml:"translate"`
	TTS       ProviderEntry `yaml:"tts"`
	VAD       ProviderEntry `yaml:"vad"`
	Audio     ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "azure", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Supports ${ENV} expansion.
	APIKey string `yaml:"api_key"`

	// Region is the cloud service region for providers that require one
	// (e.g., "westeurope" for Azure Speech).
	Region string `yaml:"region"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "base.en", or a whisper.cpp model file path).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallback optionally names a second provider of the same kind to fail
	// over to when this one trips its circuit breaker.
	Fallback *ProviderEntry `yaml:"fallback"`
}

// RelayConfig tunes utterance segmentation and pipeline behaviour.
type RelayConfig struct {
	// DefaultSourceLanguage is the short code assumed for participants that
	// have not declared a language. Defaults to "it".
	DefaultSourceLanguage string `yaml:"default_source_language"`

	// DefaultTargetLanguage is the short code used as translation target when
	// no other participant supplies one. Defaults to "en".
	DefaultTargetLanguage string `yaml:"default_target_language"`

	// SpeechThreshold is the normalized mean-amplitude level above which a
	// frame counts as speech, in [0, 1]. 0 selects the built-in default.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceDuration is how long a speaker must stay below the threshold
	// before their utterance is sealed and dispatched. 0 selects the default.
	SilenceDuration time.Duration `yaml:"silence_duration"`

	// MinSpeechDuration discards utterances shorter than this, filtering out
	// coughs and key clicks. 0 selects the default.
	MinSpeechDuration time.Duration `yaml:"min_speech_duration"`

	// ProcessingTimeout bounds how long a participant's processing lock may be
	// held before it is considered stale. 0 selects the default of 10s.
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	// Mode selects local or remote utterance processing.
	Mode PipelineMode `yaml:"mode"`

	// RemoteURL is the base URL of the companion server used when Mode is
	// "remote" (e.g., "https://relay.example.com").
	RemoteURL string `yaml:"remote_url"`
}
