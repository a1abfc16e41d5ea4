package tts

// Request describes a single synthesis call.
type Request struct {
	// Text is the text to speak. Must not be empty.
	Text string

	// Language is the BCP-47 locale tag of the text (e.g., "en-US").
	// Providers use it to pick a default voice and pronunciation rules.
	Language string

	// Voice is the provider-specific voice identifier. When empty the
	// provider derives a voice from Language.
	Voice string
}

// Result is the synthesized audio for one request.
type Result struct {
	// PCM is the raw 16-bit signed little-endian audio data.
	PCM []byte

	// SampleRate is the sample rate of PCM in Hz.
	SampleRate int

	// Channels is the channel count of PCM.
	Channels int
}
