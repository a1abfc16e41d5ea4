package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speakswap/speakswap/internal/conversation"
	"github.com/speakswap/speakswap/pkg/audio"
)

// Stage turns one sealed utterance into translated text per target language.
// Implementations own the transcribe+translate legs of the pipeline; the
// worker keeps synthesis and playback, which are bound to the local voice
// connection either way.
type Stage interface {
	// Process returns translated text keyed by short target code. Targets
	// that could not be produced are simply absent from the map; Process
	// errors only when the whole utterance failed (no transcription, or no
	// target produced).
	Process(ctx context.Context, u Utterance, targets []string) (map[string]string, error)
}

// Poll defaults shared by both stage implementations.
const (
	DefaultPollAttempts = 20
	DefaultPollInterval = 500 * time.Millisecond
)

// LocalStage drives the in-process conversation store: submit the utterance,
// poll the record until it settles, read the translations back out.
type LocalStage struct {
	store        *conversation.Store
	pollAttempts int
	pollInterval time.Duration
}

var _ Stage = (*LocalStage)(nil)

// LocalStageOption configures a LocalStage.
type LocalStageOption func(*LocalStage)

// WithPolling overrides the poll attempt count and interval.
func WithPolling(attempts int, interval time.Duration) LocalStageOption {
	return func(s *LocalStage) {
		if attempts > 0 {
			s.pollAttempts = attempts
		}
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// NewLocalStage wires a stage over the given conversation store.
func NewLocalStage(store *conversation.Store, opts ...LocalStageOption) *LocalStage {
	s := &LocalStage{
		store:        store,
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Process implements [Stage].
func (s *LocalStage) Process(ctx context.Context, u Utterance, targets []string) (map[string]string, error) {
	code, err := s.store.Submit(ctx, u.PCM, u.Format, u.Language, targets)
	if err != nil {
		return nil, fmt.Errorf("relay: submit utterance: %w", err)
	}

	rec, err := s.await(ctx, code)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(targets))
	for _, target := range targets {
		if text, ok := rec.Translations[target]; ok && text != "" {
			out[target] = text
		}
	}
	return out, nil
}

// await polls the record until it completes, errors, or the attempt budget
// runs out.
func (s *LocalStage) await(ctx context.Context, code string) (conversation.Record, error) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		rec, err := s.store.Get(code)
		if err != nil {
			return conversation.Record{}, err
		}
		switch rec.Status {
		case conversation.StatusCompleted:
			return rec, nil
		case conversation.StatusError:
			return conversation.Record{}, fmt.Errorf("relay: conversation %s failed: %s", code, rec.ErrorMessage)
		}
		select {
		case <-ctx.Done():
			return conversation.Record{}, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return conversation.Record{}, fmt.Errorf("relay: conversation %s did not settle after %d polls", code, s.pollAttempts)
}

// RemoteStage offloads the transcribe+translate legs to a companion
// speakswap HTTP service: upload the utterance as WAV, then poll the
// conversation endpoint per target.
type RemoteStage struct {
	baseURL      string
	client       *http.Client
	pollAttempts int
	pollInterval time.Duration
}

var _ Stage = (*RemoteStage)(nil)

// RemoteStageOption configures a RemoteStage.
type RemoteStageOption func(*RemoteStage)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) RemoteStageOption {
	return func(s *RemoteStage) { s.client = c }
}

// WithRemotePolling overrides the poll attempt count and interval.
func WithRemotePolling(attempts int, interval time.Duration) RemoteStageOption {
	return func(s *RemoteStage) {
		if attempts > 0 {
			s.pollAttempts = attempts
		}
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// NewRemoteStage creates a stage calling the service at baseURL.
func NewRemoteStage(baseURL string, opts ...RemoteStageOption) (*RemoteStage, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("relay: remote stage URL must not be empty")
	}
	s := &RemoteStage{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 30 * time.Second},
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// uploadResponse mirrors the upload-audio endpoint payload.
type uploadResponse struct {
	ConversationCode string `json:"conversation_code"`
	Status           string `json:"status"`
}

// conversationResponse mirrors the conversation poll payload.
type conversationResponse struct {
	Status          string `json:"status"`
	TranscribedText string `json:"transcribed_text"`
	TranslatedText  string `json:"translated_text"`
	ErrorMessage    string `json:"error_message"`
}

// Process implements [Stage].
func (s *RemoteStage) Process(ctx context.Context, u Utterance, targets []string) (map[string]string, error) {
	if len(targets) == 0 {
		return map[string]string{}, nil
	}
	code, err := s.upload(ctx, u, targets[0])
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(targets))
	var lastErr error
	for _, target := range targets {
		text, err := s.awaitTarget(ctx, code, target)
		if err != nil {
			lastErr = err
			continue
		}
		if text != "" {
			out[target] = text
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// upload posts the utterance WAV and returns the remote conversation code.
func (s *RemoteStage) upload(ctx context.Context, u Utterance, target string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("relay: build upload: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(u.PCM, u.Format.SampleRate, u.Format.Channels)); err != nil {
		return "", fmt.Errorf("relay: build upload: %w", err)
	}
	if err := mw.WriteField("source_language", u.Language); err != nil {
		return "", fmt.Errorf("relay: build upload: %w", err)
	}
	if err := mw.WriteField("target_language", target); err != nil {
		return "", fmt.Errorf("relay: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("relay: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload-audio", &body)
	if err != nil {
		return "", fmt.Errorf("relay: upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay: upload utterance: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("relay: upload utterance: status %d: %s", resp.StatusCode, snippet)
	}

	var up uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return "", fmt.Errorf("relay: decode upload response: %w", err)
	}
	if up.ConversationCode == "" {
		return "", fmt.Errorf("relay: upload returned no conversation code")
	}
	return up.ConversationCode, nil
}

// awaitTarget polls the remote conversation for one target language.
func (s *RemoteStage) awaitTarget(ctx context.Context, code, target string) (string, error) {
	pollURL := fmt.Sprintf("%s/conversation/%s?target_language=%s",
		s.baseURL, url.PathEscape(code), url.QueryEscape(target))
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		cr, err := s.poll(ctx, pollURL)
		if err != nil {
			return "", err
		}
		switch cr.Status {
		case string(conversation.StatusCompleted):
			return cr.TranslatedText, nil
		case string(conversation.StatusError):
			return "", fmt.Errorf("relay: remote conversation %s failed: %s", code, cr.ErrorMessage)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return "", fmt.Errorf("relay: remote conversation %s did not settle after %d polls", code, s.pollAttempts)
}

func (s *RemoteStage) poll(ctx context.Context, pollURL string) (conversationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return conversationResponse{}, fmt.Errorf("relay: poll request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return conversationResponse{}, fmt.Errorf("relay: poll conversation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return conversationResponse{}, fmt.Errorf("relay: poll conversation: status %d", resp.StatusCode)
	}
	var cr conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return conversationResponse{}, fmt.Errorf("relay: decode poll response: %w", err)
	}
	return cr, nil
}
