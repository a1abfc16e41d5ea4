// Package openai provides a translation provider backed by an OpenAI
// chat-completion model. It is the LLM alternative to the Azure Translator
// backend: useful when a deployment already pays for an OpenAI key and wants
// slightly more idiomatic translations at higher latency.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const systemPrompt = "You are a translation engine. Translate the user's text from %s to %s. Reply with the translation only: no quotes, no commentary, no notes."

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements translate.Provider using the OpenAI chat API.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI translation Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai translate: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai translate: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Translate implements translate.Provider with a single non-streaming chat
// completion.
func (p *Provider) Translate(ctx context.Context, text, source, target string) (string, error) {
	if text == "" {
		return "", nil
	}
	if source == "" || target == "" {
		return "", fmt.Errorf("openai translate: source %q and target %q must both be set", source, target)
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(fmt.Sprintf(systemPrompt, source, target)),
			oai.UserMessage(text),
		},
		Temperature: param.NewOpt(0.2),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai translate: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai translate: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
