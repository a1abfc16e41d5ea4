// Package translate defines the Provider interface for text translation
// backends.
//
// A translation provider takes recognized text plus source and target
// language tags and returns the translated text. Tags are BCP-47 locale tags
// ("it-IT", "en-US"); implementations that want bare ISO codes derive them.
//
// Implementations must be safe for concurrent use: the pipeline fans one
// utterance out to several target languages in parallel.
package translate

import "context"

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate converts text from the source language to the target language.
	// Empty input text translates to empty output with no error. Source and
	// target must both be set; translating a language to itself is the
	// caller's responsibility to avoid.
	Translate(ctx context.Context, text, source, target string) (string, error)
}
