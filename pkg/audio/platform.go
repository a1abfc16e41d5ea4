// Package audio defines the voice-platform abstraction the relay is built
// on: how SpeakSwap joins a voice channel, receives per-speaker audio, and
// plays translated speech back.
//
// Two interfaces carry the whole contract:
//
//   - [Platform] joins a voice channel and hands back a [Connection].
//   - [Connection] is the live session: one input stream per participant,
//     one shared output stream, and join/leave notifications.
//
// Platform-specific adapters (such as audio/discord) implement both. The
// surface is deliberately small so the relay pipeline never touches SDK
// types directly, and so third-party adapters can be written outside this
// module. That is also why the package sits under pkg/.
package audio

import (
	"context"
)

// EventType classifies participant lifecycle events emitted by a [Connection].
type EventType int

const (
	// EventJoin is emitted when a participant enters the voice channel.
	EventJoin EventType = iota

	// EventLeave is emitted when a participant leaves the voice channel.
	EventLeave
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "JOIN"
	case EventLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a participant joining or leaving a voice channel. It is
// delivered to the callback registered via [Connection.OnParticipantChange].
type Event struct {
	// Type indicates whether the participant joined or left.
	Type EventType

	// UserID is the platform-specific unique identifier for the participant.
	UserID string

	// Username is the human-readable display name of the participant.
	Username string
}

// Connection is an active session on a voice channel.
//
// It is produced by [Platform.Connect] and stays valid until
// [Connection.Disconnect]. Channels handed out by a Connection are closed
// by the platform when the session ends, with the one exception noted on
// OutputStream.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// InputStreams returns a snapshot of the current per-participant audio
	// channels, keyed by participant ID. Each channel delivers that
	// speaker's [AudioFrame] values in arrival order and is closed when the
	// speaker leaves.
	//
	// The snapshot goes stale as participants come and go: after an
	// [EventJoin], call InputStreams again to pick up the new entry.
	InputStreams() map[string]<-chan AudioFrame

	// OutputStream returns the single write-only channel for synthesized
	// output. Frames written here are encoded and sent to all channel
	// participants. The channel is buffered; writes must not block
	// indefinitely.
	//
	// Ownership: the caller owns this channel. The platform does NOT close
	// it on Disconnect; the caller stops writing (and may close it) on its
	// own schedule. Frames written after Disconnect are dropped, never a
	// panic.
	OutputStream() chan<- AudioFrame

	// OnParticipantChange registers cb for join/leave events. At most one
	// callback is active; registering again replaces the previous one. The
	// callback runs on an internal goroutine and must not block.
	OnParticipantChange(cb func(Event))

	// Disconnect tears down the session, drains pending frames, and closes
	// the platform-owned channels. Calling it again is a no-op returning nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider. Implementations
// wrap the provider SDK and expose the uniform [Connection] abstraction.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID. ctx bounds
	// the connection attempt only; the returned [Connection] outlives it and
	// ends when [Connection.Disconnect] is called.
	//
	// Errors cover auth failures, unknown channels, and transport faults.
	Connect(ctx context.Context, channelID string) (Connection, error)
}
