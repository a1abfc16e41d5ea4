// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Azure Speech, a local
// whisper.cpp server, or the in-process whisper.cpp bindings) behind a single
// batch call: a complete utterance goes in as PCM, recognized text comes out.
// The relay always works on sealed utterances — a few hundred milliseconds to
// a few seconds of audio — so a batch contract is both simpler and cheaper
// than streaming recognition.
//
// Implementations must be safe for concurrent use: the pipeline transcribes
// utterances from multiple speakers in parallel.
package stt

import "context"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognizes the speech in a single complete utterance.
	// The audio must match the format declared in the request. A successful
	// call with no recognizable speech returns an empty Result.Text and a nil
	// error; callers decide how to treat empty transcriptions.
	//
	// Returns an error for transport or provider failures, or when ctx is
	// cancelled before recognition completes.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
