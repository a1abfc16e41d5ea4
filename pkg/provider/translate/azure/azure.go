// Package azure provides a translation provider backed by the Azure AI
// Translator REST API (api-version 3.0).
package azure

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
)

const (
	defaultEndpoint = "https://api.cognitive.microsofttranslator.com"
	defaultTimeout  = 15 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the internal HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithEndpoint overrides the global Translator endpoint. Intended for tests
// and sovereign-cloud deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// Provider implements translate.Provider against the Azure Translator API.
// Safe for concurrent use.
type Provider struct {
	key        string
	region     string
	endpoint   string
	httpClient *http.Client
}

// New creates a Provider for the given subscription key and region. The
// region may be empty for global (non-regional) Translator resources.
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure translate: subscription key must not be empty")
	}
	p := &Provider{
		key:        key,
		region:     region,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Translate calls POST /translate with the bare ISO codes derived from the
// locale tags, e.g. "it-IT" -> "it".
func (p *Provider) Translate(ctx context.Context, text, source, target string) (string, error) {
	if text == "" {
		return "", nil
	}
	if source == "" || target == "" {
		return "", fmt.Errorf("azure translate: source %q and target %q must both be set", source, target)
	}

	from, _, _ := strings.Cut(source, "-")
	to, _, _ := strings.Cut(target, "-")

	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("from", from)
	q.Set("to", to)

	payload, err := json.Marshal([]map[string]string{{"Text": text}})
	if err != nil {
		return "", fmt.Errorf("azure translate: marshal request: %w", err)
	}

	endpoint := p.endpoint + "/translate?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("azure translate: create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	if p.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", p.region)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure translate: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("azure translate: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result []struct {
		Translations []struct {
			Text string `json:"text"`
			To   string `json:"to"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("azure translate: parse JSON response: %w", err)
	}
	if len(result) == 0 || len(result[0].Translations) == 0 {
		return "", errors.New("azure translate: empty translation result")
	}
	return result[0].Translations[0].Text, nil
}
