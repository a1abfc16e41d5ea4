package resilience

import (
	"context"

	"github.com/speakswap/speakswap/pkg/provider/translate"
)

// TranslateFallback implements [translate.Provider] with automatic failover
// across multiple translation backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type TranslateFallback struct {
	group *FallbackGroup[translate.Provider]
}

// Compile-time interface assertion.
var _ translate.Provider = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Provider, primaryName string, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional translation provider as a fallback.
func (f *TranslateFallback) AddFallback(name string, provider translate.Provider) {
	f.group.AddFallback(name, provider)
}

// Translate runs the request against the first healthy provider, trying
// subsequent fallbacks when a backend fails or its breaker is open.
func (f *TranslateFallback) Translate(ctx context.Context, text, source, target string) (string, error) {
	return ExecuteWithResult(f.group, func(p translate.Provider) (string, error) {
		return p.Translate(ctx, text, source, target)
	})
}
