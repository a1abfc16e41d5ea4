// Package azure provides an Azure Cognitive Services Speech-backed TTS
// provider using the text-to-speech REST API.
package azure

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/speakswap/speakswap/internal/lang"
	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/tts"
)

const (
	endpointFmt  = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
	outputFormat = "riff-24khz-16bit-mono-pcm"

	// prosodyRate speeds up the synthesized speech slightly so the relayed
	// translation keeps pace with live conversation.
	prosodyRate = "1.1"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Azure TTS Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithEndpoint overrides the synthesis endpoint URL. Intended for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements tts.Provider backed by the Azure Speech REST API.
type Provider struct {
	key      string
	endpoint string
	client   *http.Client
}

// New creates a new Azure TTS Provider for the given subscription key and
// service region (e.g., "westeurope").
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure tts: key must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure tts: region must not be empty")
	}
	p := &Provider{
		key:      key,
		endpoint: fmt.Sprintf(endpointFmt, region),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize renders the request text to PCM via the Azure Speech REST API.
// When the request names no voice, the default neural voice for the request
// language is used.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	if req.Text == "" {
		return tts.Result{}, errors.New("azure tts: text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		code, _, _ := strings.Cut(req.Language, "-")
		voice = lang.Voice(code)
	}
	locale := req.Language
	if locale == "" {
		locale = lang.Locale("")
	}

	ssml := buildSSML(locale, voice, req.Text)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(ssml))
	if err != nil {
		return tts.Result{}, fmt.Errorf("azure tts: create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", outputFormat)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return tts.Result{}, fmt.Errorf("azure tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return tts.Result{}, fmt.Errorf("azure tts: HTTP %d: %s", resp.StatusCode, body)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("azure tts: read response: %w", err)
	}
	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return tts.Result{}, fmt.Errorf("azure tts: decode audio: %w", err)
	}
	return tts.Result{
		PCM:        pcm,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}

// buildSSML produces the SSML document for a synthesis request. The text is
// XML-escaped so user-provided transcriptions cannot break the document.
func buildSSML(locale, voice, text string) []byte {
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(text))
	return fmt.Appendf(nil,
		`<speak version='1.0' xml:lang='%s'><voice name='%s'><prosody rate='%s'>%s</prosody></voice></speak>`,
		locale, voice, prosodyRate, escaped.Bytes())
}
