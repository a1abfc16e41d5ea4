package stt

// Request carries one complete utterance to a provider for recognition.
type Request struct {
	// PCM is the raw 16-bit signed little-endian audio data.
	PCM []byte

	// SampleRate is the audio sample rate in Hz. Common values: 16000
	// (STT-optimised mono), 48000 (voice-channel capture).
	SampleRate int

	// Channels is the number of audio channels. Most providers require mono;
	// implementations may downmix stereo internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US",
	// "it-IT"). An empty string lets the provider auto-detect the language,
	// if supported.
	Language string
}

// Result is the recognition outcome for a single utterance.
type Result struct {
	// Text is the recognized speech content. Empty when the provider found no
	// speech in the audio.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64
}
