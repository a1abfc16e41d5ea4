// Package mock provides in-memory stand-ins for [audio.Platform] and
// [audio.Connection].
//
// The mocks follow a fill-in-the-fields style: set the Result/Error fields
// before handing the mock to the code under test, then inspect the recorded
// calls afterwards. All methods are safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/speakswap/speakswap/pkg/audio"
)

// Connection is a scriptable [audio.Connection].
//
// EmitEvent drives the registered participant-change callbacks, so a test
// can simulate speakers joining and leaving without a real voice session.
type Connection struct {
	mu sync.Mutex

	// InputStreamsResult is handed out by InputStreams. A nil map is
	// replaced with an empty one so callers can range over it safely.
	InputStreamsResult map[string]<-chan audio.AudioFrame

	// OutputStreamResult is handed out by OutputStream.
	OutputStreamResult chan<- audio.AudioFrame

	// DisconnectError is returned by Disconnect.
	DisconnectError error

	// CallCountDisconnect counts Disconnect invocations.
	CallCountDisconnect int

	callbacks []func(audio.Event)
}

func (c *Connection) InputStreams() map[string]<-chan audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InputStreamsResult == nil {
		return map[string]<-chan audio.AudioFrame{}
	}
	return c.InputStreamsResult
}

func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.OutputStreamResult
}

func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// EmitEvent invokes every callback registered via OnParticipantChange with
// ev, outside the mock's lock.
func (c *Connection) EmitEvent(ev audio.Event) {
	c.mu.Lock()
	cbs := make([]func(audio.Event), len(c.callbacks))
	copy(cbs, c.callbacks)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// ConnectCall records the arguments of one [Platform.Connect] invocation.
type ConnectCall struct {
	ChannelID string
}

// Platform is a scriptable [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult and ConnectError are returned by Connect.
	ConnectResult audio.Connection
	ConnectError  error

	// ConnectCalls records every Connect invocation in order.
	ConnectCalls []ConnectCall
}

func (p *Platform) Connect(_ context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{ChannelID: channelID})
	return p.ConnectResult, p.ConnectError
}

var (
	_ audio.Connection = (*Connection)(nil)
	_ audio.Platform   = (*Platform)(nil)
)
