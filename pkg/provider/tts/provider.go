// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Azure Speech,
// ElevenLabs) behind a single batch call: translated text goes in, a complete
// PCM buffer comes out. The relay synthesizes short translated utterances, so
// collecting the full audio before playback keeps the contract simple and
// costs little latency.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (one per target language of an utterance).
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders the given text as speech and returns the complete
	// audio. The voice is chosen from req.Voice when set, otherwise derived
	// from req.Language. The result declares its own sample rate and channel
	// count; callers convert to their playback format.
	Synthesize(ctx context.Context, req Request) (Result, error)
}
