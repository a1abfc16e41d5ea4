package vad

// VADEvent is the classification of a single audio frame.
type VADEvent struct {
	// Type is the detected transition or steady state.
	Type VADEventType

	// Probability is the detector's speech score in [0, 1]. For the energy
	// engine this is the normalized mean amplitude.
	Probability float64
}

// VADEventType distinguishes the edges of an utterance from its interior. The
// segmenter reacts to Start and End; Continue and Silence just confirm the
// current state.
type VADEventType int

const (
	// VADSpeechStart marks the first speech frame after silence.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue marks a speech frame inside an utterance.
	VADSpeechContinue

	// VADSpeechEnd marks the first silent frame after speech.
	VADSpeechEnd

	// VADSilence marks a silent frame with no active utterance.
	VADSilence
)
