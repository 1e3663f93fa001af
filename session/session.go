package session

import (
	"sync"

	"github.com/google/uuid"
)

const sendChanBuf = 64

// Session is one connected player. Messages pushed with Send are consumed by
// whatever transport owns the session (the SSE stream).
type Session struct {
	ID   uuid.UUID
	Name string

	SendChan chan string
	Done     chan struct{}

	closeOnce sync.Once
}

// New creates an open Session.
func New(id uuid.UUID, name string) *Session {
	return &Session{
		ID:       id,
		Name:     name,
		SendChan: make(chan string, sendChanBuf),
		Done:     make(chan struct{}),
	}
}

// Send queues text without blocking. It reports false if the session is
// closed or its buffer is full.
func (s *Session) Send(text string) bool {
	if s.IsClosed() {
		return false
	}
	select {
	case s.SendChan <- text:
		return true
	default:
		return false
	}
}

// Close marks the session closed. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}
