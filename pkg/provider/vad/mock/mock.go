// Package mock provides scriptable test doubles for the vad interfaces.
//
// Engine records the Config of every session it creates; Session returns a
// fixed event (or error) from ProcessFrame and keeps a copy of every frame
// it saw. Both are safe for concurrent use.
package mock

import (
	"sync"

	"github.com/speakswap/speakswap/pkg/provider/vad"
)

// NewSessionCall records one Engine.NewSession invocation.
type NewSessionCall struct {
	Cfg vad.Config
}

// Engine is a scriptable [vad.Engine].
type Engine struct {
	mu sync.Mutex

	// Session is handed out by NewSession. When nil, each call returns a
	// fresh default Session.
	Session vad.SessionHandle

	// NewSessionErr, when non-nil, makes NewSession fail.
	NewSessionErr error

	// NewSessionCalls records every NewSession invocation in order.
	NewSessionCalls []NewSessionCall
}

func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a scriptable [vad.SessionHandle].
type Session struct {
	mu sync.Mutex

	// EventResult is returned by every ProcessFrame call.
	EventResult vad.VADEvent

	// ProcessFrameErr, when non-nil, makes ProcessFrame fail.
	ProcessFrameErr error

	// CloseErr is returned by Close.
	CloseErr error

	// ProcessFrameCalls holds a copy of every frame passed to ProcessFrame,
	// in order.
	ProcessFrameCalls [][]byte

	// ResetCallCount and CloseCallCount count the respective calls.
	ResetCallCount int
	CloseCallCount int
}

func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, cp)
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	return s.EventResult, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)
