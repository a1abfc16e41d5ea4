// Package vad defines the voice activity detection interface that gates the
// utterance segmenter.
//
// An Engine wraps a frame-level speech detector and hands out one session per
// speaker stream, so a busy channel's participants are detected independently.
// Detection is synchronous: ProcessFrame classifies a frame and returns, which
// keeps it usable directly on the transport receive path.
//
// Engines must tolerate concurrent NewSession calls. A single session belongs
// to one goroutine unless the implementation says otherwise.
package vad

// Config holds the parameters for one detection session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of the frames this session
	// will see.
	SampleRate int

	// FrameSizeMs is the expected frame duration. Sessions reject frames of
	// any other size, since detectors calibrate to a fixed window.
	FrameSizeMs int

	// SpeechThreshold classifies a frame as speech when the detector's score
	// meets or exceeds it. Range (0, 1]; raising it trades missed soft
	// speech for fewer false triggers.
	SpeechThreshold float64

	// SilenceThreshold classifies a frame as silence when the score falls
	// below it. Must not exceed SpeechThreshold; the gap between the two is
	// hysteresis.
	SilenceThreshold float64
}

// SessionHandle is one speaker's detection state. Sessions keep whatever
// history their engine needs (smoothing windows, hangover counters); Reset
// clears that history without releasing the session.
type SessionHandle interface {
	// ProcessFrame classifies one frame of little-endian int16 PCM in the
	// session's configured rate and size. It must not block; the segmenter
	// calls it for every captured frame.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset discards accumulated detection state, for use when a stream is
	// interrupted and its history would bleed into the next utterance.
	Reset()

	// Close releases the session. Closing twice is safe and returns nil.
	Close() error
}

// Engine creates detection sessions. One Engine serves all speakers; the
// per-speaker state lives in the sessions it returns.
type Engine interface {
	// NewSession returns a session ready to classify frames, or an error
	// when cfg is invalid for this engine.
	NewSession(cfg Config) (SessionHandle, error)
}
