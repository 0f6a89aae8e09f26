// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"errors"
	"sync"

	"gopkg.in/typ.v4/sync2"

	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

var (
	ErrSessionExists = errors.New("game session already open")
	ErrSessionClosed = errors.New("game session is closed")
)

// openSession tracks one running session open to matchmaking, with a
// completion signal resolved when the session is closed.
type openSession struct {
	mu   sync.Mutex
	data models.OpenGameSession

	closeOnce sync.Once
	done      chan struct{}
}

func (s *openSession) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.data.IsOpen = false
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed when the session stops accepting players.
func (s *openSession) Done() <-chan struct{} {
	return s.done
}

// OpenSessionRegistry is the bookkeeping for running sessions that receive
// new players through the matchmaking pass.
type OpenSessionRegistry struct {
	sessions sync2.Map[string, *openSession]
}

func NewOpenSessionRegistry() *OpenSessionRegistry {
	return &OpenSessionRegistry{}
}

// Open registers a session. The session id must be unique among open sessions.
func (r *OpenSessionRegistry) Open(session models.OpenGameSession) (*openSession, error) {
	session.IsOpen = true
	session.PassesSinceOpen = 0
	s := &openSession{
		data: session,
		done: make(chan struct{}),
	}
	if _, loaded := r.sessions.LoadOrStore(session.SessionID, s); loaded {
		return nil, ErrSessionExists
	}
	return s, nil
}

// Close removes a session and resolves its completion signal.
func (r *OpenSessionRegistry) Close(sessionID string) bool {
	s, ok := r.sessions.LoadAndDelete(sessionID)
	if !ok {
		return false
	}
	s.close()
	return true
}

// Get returns a copy of the session's current data.
func (r *OpenSessionRegistry) Get(sessionID string) (models.OpenGameSession, bool) {
	s, ok := r.sessions.Load(sessionID)
	if !ok {
		return models.OpenGameSession{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Copy(), true
}

// Snapshot returns deep copies of every session with IsOpen set, for the pass
// context.
func (r *OpenSessionRegistry) Snapshot() []models.OpenGameSession {
	snapshot := make([]models.OpenGameSession, 0)
	r.sessions.Range(func(_ string, s *openSession) bool {
		s.mu.Lock()
		if s.data.IsOpen {
			snapshot = append(snapshot, s.data.Copy())
		}
		s.mu.Unlock()
		return true
	})
	return snapshot
}

// RegisterTeams appends an open-session ticket's teams to the target session.
// It fails with ErrSessionClosed when the session closed between the matching
// strategy's snapshot and now.
func (r *OpenSessionRegistry) RegisterTeams(sessionID string, teams []models.Team) error {
	s, ok := r.sessions.Load(sessionID)
	if !ok {
		return ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data.IsOpen {
		return ErrSessionClosed
	}
	s.data.Teams = append(s.data.Teams, teams...)

	return nil
}

// IncrementPassCounts bumps the pass counter of every open session, once per
// matching pass.
func (r *OpenSessionRegistry) IncrementPassCounts() {
	r.sessions.Range(func(_ string, s *openSession) bool {
		s.mu.Lock()
		s.data.PassesSinceOpen++
		s.mu.Unlock()
		return true
	})
}

// Count returns the number of open sessions.
func (r *OpenSessionRegistry) Count() (count int) {
	r.sessions.Range(func(string, *openSession) bool {
		count++
		return true
	})
	return count
}
