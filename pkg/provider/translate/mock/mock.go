// Package mock provides a test double for the translate package interface.
//
// By default the mock returns "<text> [<target>]" so tests can assert that
// the right target language reached the provider without configuring a
// translation table. Set Results for exact outputs.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/speakswap/speakswap/pkg/provider/translate"
)

// Compile-time assertion that Provider implements translate.Provider.
var _ translate.Provider = (*Provider)(nil)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	Text   string
	Source string
	Target string
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Results maps "source->target" to the text returned for that pair.
	// Pairs not present fall back to the "<text> [<target>]" default.
	Results map[string]string

	// Err, if non-nil, is returned by every Translate call.
	Err error

	// TranslateCalls records every call to Translate in order.
	TranslateCalls []TranslateCall
}

// Translate records the call and returns the configured result.
func (p *Provider) Translate(ctx context.Context, text, source, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Text: text, Source: source, Target: target})
	if p.Err != nil {
		return "", p.Err
	}
	if out, ok := p.Results[source+"->"+target]; ok {
		return out, nil
	}
	return fmt.Sprintf("%s [%s]", text, target), nil
}

// CallCount returns the number of recorded Translate calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranslateCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = nil
}
