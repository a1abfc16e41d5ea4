// Package coqui provides a Coqui-backed TTS provider that talks to a
// self-hosted Coqui TTS server over HTTP. It supports both the XTTS v2 API
// server and the standard Coqui TTS server:
//
//   - APIModeXTTS: synthesis via POST /tts_to_audio/ with a JSON body where the
//     request voice names a speaker WAV.
//   - APIModeStandard (default): synthesis via GET /api/tts using URL query
//     parameters where the request voice names a speaker_id.
//
// A local Coqui server keeps speech synthesis available when the hosted
// providers are unreachable.
//
// Example:
//
//	p, err := coqui.New("http://localhost:5002")
//	res, err := p.Synthesize(ctx, tts.Request{Text: "hello", Language: "en-US"})
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout = 30 * time.Second
	ttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint = "/api/tts"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image (ghcr.io/coqui-ai/tts-cpu) or APIModeXTTS for
// the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithDefaultSpeaker sets the speaker used when a request does not name a
// voice. In standard mode this is the speaker_id; in XTTS mode the path of the
// reference speaker WAV on the server.
func WithDefaultSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.defaultSpeaker = speaker
	}
}

// Provider implements tts.Provider backed by a locally-running Coqui TTS
// server. It is safe for concurrent use.
type Provider struct {
	serverURL      string
	apiMode        APIMode
	defaultSpeaker string
	httpClient     *http.Client
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize renders the request text to PCM via the configured Coqui server
// API. The result carries the model's native sample rate; callers convert to
// their playback format.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	if req.Text == "" {
		return tts.Result{}, errors.New("coqui: text must not be empty")
	}
	speaker := req.Voice
	if speaker == "" {
		speaker = p.defaultSpeaker
	}
	// Coqui expects the bare ISO 639-1 code, not a full locale tag.
	language, _, _ := strings.Cut(req.Language, "-")

	var (
		wav []byte
		err error
	)
	if p.apiMode == APIModeXTTS {
		wav, err = p.synthesizeXTTS(ctx, req.Text, speaker, language)
	} else {
		wav, err = p.synthesizeStandard(ctx, req.Text, speaker, language)
	}
	if err != nil {
		return tts.Result{}, err
	}

	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return tts.Result{}, fmt.Errorf("coqui: decode audio: %w", err)
	}
	return tts.Result{
		PCM:        pcm,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode) and
// returns the WAV response body.
func (p *Provider) synthesizeXTTS(ctx context.Context, text, speaker, language string) ([]byte, error) {
	body := ttsRequest{
		Text:       text,
		SpeakerWav: speaker,
		Language:   language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// synthesizeStandard performs a single GET /api/tts request (standard server
// mode) using URL query parameters and returns the WAV response body.
func (p *Provider) synthesizeStandard(ctx context.Context, text, speaker, language string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if speaker != "" {
		params.Set("speaker_id", speaker)
	}
	if language != "" {
		params.Set("language_id", language)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}
