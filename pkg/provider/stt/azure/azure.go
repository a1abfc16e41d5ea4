// Package azure provides an STT provider backed by the Azure AI Speech
// short-audio REST API. Each utterance is wrapped in a WAV container and sent
// in one request; the short-audio endpoint accepts up to 60 seconds of audio,
// which is far beyond any sealed utterance the relay produces.
//
// Authentication uses the subscription key + region pair from the Azure
// portal. No SDK is required; the REST surface is a single endpoint.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

const defaultTimeout = 30 * time.Second

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the internal HTTP client. Useful for tests and for
// callers that need custom transport settings.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithEndpoint overrides the regional endpoint URL. Intended for tests; the
// default is derived from the region.
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = url
	}
}

// Provider implements stt.Provider against the Azure Speech REST API.
// Safe for concurrent use.
type Provider struct {
	key        string
	endpoint   string
	httpClient *http.Client
}

// New creates a Provider for the given subscription key and region
// (e.g., "westeurope"). Both must be non-empty.
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure stt: subscription key must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure stt: region must not be empty")
	}
	p := &Provider{
		key:        key,
		endpoint:   fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", region),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe sends the utterance to the short-audio recognition endpoint.
// A "NoMatch" recognition outcome is not an error: it yields an empty Result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, nil
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	ch := req.Channels
	if ch <= 0 {
		ch = 1
	}
	lang := req.Language
	if lang == "" {
		lang = "it-IT"
	}

	wav := audio.EncodeWAV(req.PCM, sr, ch)

	url := fmt.Sprintf("%s?language=%s&format=detailed", p.endpoint, lang)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wav))
	if err != nil {
		return stt.Result{}, fmt.Errorf("azure stt: create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	httpReq.Header.Set("Content-Type", fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", sr))
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("azure stt: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Result{}, fmt.Errorf("azure stt: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result struct {
		RecognitionStatus string `json:"RecognitionStatus"`
		DisplayText       string `json:"DisplayText"`
		NBest             []struct {
			Confidence float64 `json:"Confidence"`
			Display    string  `json:"Display"`
		} `json:"NBest"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Result{}, fmt.Errorf("azure stt: parse JSON response: %w", err)
	}

	switch result.RecognitionStatus {
	case "Success":
		out := stt.Result{Text: result.DisplayText}
		if len(result.NBest) > 0 {
			out.Confidence = result.NBest[0].Confidence
			if out.Text == "" {
				out.Text = result.NBest[0].Display
			}
		}
		return out, nil
	case "NoMatch", "InitialSilenceTimeout":
		return stt.Result{}, nil
	default:
		return stt.Result{}, fmt.Errorf("azure stt: recognition status %q", result.RecognitionStatus)
	}
}
