// Package whisper provides an STT provider backed by a whisper.cpp HTTP
// server (the whisper-server binary, which exposes a REST API at
// POST /inference).
//
// Each utterance is wrapped in a WAV container and submitted as a single
// multipart inference request. whisper.cpp is a batch engine, so this maps
// directly onto the [stt.Provider] contract with no buffering tricks.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("base"))
//	res, err := p.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: 16000, Channels: 1, Language: "it-IT"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

const defaultTimeout = 30 * time.Second

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient replaces the internal HTTP client. Useful for tests and for
// callers that need custom transport settings.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// Safe for concurrent use; each Transcribe call is an independent request.
type Provider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe encodes the utterance as WAV and POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data.
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
	wav := audio.EncodeWAV(req.PCM, sr, ch)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	// Optional hint fields. whisper.cpp wants the bare ISO code, not the
	// full locale tag.
	if req.Language != "" {
		code, _, _ := strings.Cut(req.Language, "-")
		if err := mw.WriteField("language", code); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Result{Text: strings.TrimSpace(result.Text)}, nil
}
