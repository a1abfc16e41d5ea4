package audio

import "time"

// AudioFrame is one chunk of PCM flowing between the voice transport and the
// relay: decoded capture on the way into segmentation, synthesized speech on
// the way out to playback.
type AudioFrame struct {
	// Data holds little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz. Discord voice runs at 48000; providers vary.
	SampleRate int

	// Channels is 1 for mono or 2 for interleaved stereo.
	Channels int

	// Timestamp marks when the frame was captured, relative to stream start.
	Timestamp time.Duration
}
