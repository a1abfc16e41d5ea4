// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio from Synthesize and to verify the
// text, language and voice that consumers pass to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: tts.Result{PCM: []byte{1, 2}, SampleRate: 24000, Channels: 1},
//	}
//	res, _ := p.Synthesize(ctx, tts.Request{Text: "hello", Language: "en-US"})
package mock

import (
	"context"
	"sync"

	"github.com/speakswap/speakswap/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Synthesize when ResultFunc is nil.
	Result tts.Result

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// ResultFunc, if non-nil, computes the result per request. It takes
	// precedence over Result and Err.
	ResultFunc func(req tts.Request) (tts.Result, error)

	// --- Call records ---

	// SynthesizeCalls records every request passed to Synthesize in order.
	SynthesizeCalls []tts.Request
}

// Synthesize records the request and returns the configured result. It honors
// context cancellation before responding.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, req)
	fn := p.ResultFunc
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return tts.Result{}, err
	}
	if fn != nil {
		return fn(req)
	}
	return res, err
}

// CallCount returns the number of Synthesize calls recorded. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
