// Package mock provides test doubles for the stt package interfaces.
//
// Set the exported Result fields before use; inspect the recorded calls
// after. All methods are safe for concurrent use.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Result{Text: "Ciao"}}
//	res, err := p.Transcribe(ctx, stt.Request{PCM: pcm, Language: "it-IT"})
package mock

import (
	"context"
	"sync"

	"github.com/speakswap/speakswap/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Req is the request passed to Transcribe. The PCM slice is copied.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call when ResultFunc is nil.
	Result stt.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// ResultFunc, if set, computes the result per call. It takes precedence
	// over Result.
	ResultFunc func(req stt.Request) (stt.Result, error)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	p.mu.Lock()
	cp := req
	cp.PCM = append([]byte(nil), req.PCM...)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Req: cp})
	fn := p.ResultFunc
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return res, err
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
