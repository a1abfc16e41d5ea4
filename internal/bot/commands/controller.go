// Package commands implements the SpeakSwap slash commands: voice channel
// membership and translation session control.
package commands

import "context"

// Status is a snapshot of the translation session for /translate status.
type Status struct {
	Connected    bool
	ChannelID    string
	Participants map[string]string // participant ID -> language code
	Threshold    float64
	SourceLang   string
	TargetLang   string
}

// Controller is the application surface the slash commands drive. The app
// layer implements it; tests use a stub.
type Controller interface {
	// Join connects to a voice channel. textChannelID receives translation
	// notices.
	Join(ctx context.Context, voiceChannelID, textChannelID string) error

	// Leave disconnects from the current voice channel and ends the session.
	Leave() error

	// Connected reports whether a voice connection is up.
	Connected() bool

	// StartTranslation activates the calling participant.
	StartTranslation(userID string) error

	// StopTranslation deactivates every participant. The voice connection
	// stays up.
	StopTranslation()

	// AddParticipant activates a participant with the given language.
	AddParticipant(userID, language string) error

	// SetLanguage changes a participant's language.
	SetLanguage(userID, language string) error

	// SetThreshold adjusts the speech detection threshold.
	SetThreshold(value float64) error

	// Status returns the current session snapshot.
	Status() Status
}
