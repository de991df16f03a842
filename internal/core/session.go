package core

import (
	"bytes"
	"sync"
	"time"

	"github.com/dkeye/Portal/internal/domain"
)

type SessionID string

// Session is one live client connection. It starts anonymous and is
// promoted once identify succeeds; the user copy it holds may be stale.
type Session struct {
	id     SessionID
	signal SignalConnection

	mu            sync.RWMutex
	user          *domain.User
	room          domain.RoomRef
	lastHeartbeat time.Time

	// sendMu orders Deliver against Release.
	sendMu  sync.Mutex
	holding bool
	held    []Frame
}

func NewSession(id SessionID, signal SignalConnection, now time.Time) *Session {
	return &Session{id: id, signal: signal, lastHeartbeat: now}
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) Signal() SignalConnection { return s.signal }

// Identify attaches user to the session. The session joins no room until
// SetRoom, and room frames are held until Release. It returns false if the
// session was already identified.
func (s *Session) Identify(user *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		return false
	}
	s.sendMu.Lock()
	s.holding = true
	s.sendMu.Unlock()
	s.user = user.Clone()
	s.user.Room = domain.RoomRef{}
	return true
}

func (s *Session) Identified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *Session) UserID() (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return "", false
	}
	return s.user.ID, true
}

func (s *Session) User() (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	return s.user.Clone(), true
}

// RefreshUser replaces the cached profile, keeping the room reference.
func (s *Session) RefreshUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ID != user.ID {
		return
	}
	u := user.Clone()
	u.Room = s.room
	s.user = u
}

func (s *Session) Room() domain.RoomRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) SetRoom(ref domain.RoomRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = ref
	if s.user != nil {
		s.user.Room = ref
	}
}

func (s *Session) ClearRoom() { s.SetRoom(domain.RoomRef{}) }

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = now
	s.mu.Unlock()
}

func (s *Session) LastHeartbeat() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeartbeat
}

// Deliver sends a room frame, or queues it while the session is held.
func (s *Session) Deliver(f Frame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.holding {
		s.held = append(s.held, append(Frame(nil), f...))
		return nil
	}
	return s.signal.TrySend(f)
}

// Release flushes the queued frames and stops holding. A queued frame equal
// to one in replayed was already sent and is skipped once. On a send error
// the frames not sent are returned.
func (s *Session) Release(replayed []Frame) ([]Frame, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	held := s.held
	s.held, s.holding = nil, false

	seen := append([]Frame(nil), replayed...)
	pending := make([]Frame, 0, len(held))
	for _, f := range held {
		if i := indexFrame(seen, f); i >= 0 {
			seen = append(seen[:i], seen[i+1:]...)
			continue
		}
		pending = append(pending, f)
	}
	for i, f := range pending {
		if err := s.signal.TrySend(f); err != nil {
			return pending[i:], err
		}
	}
	return nil, nil
}

func indexFrame(frames []Frame, f Frame) int {
	for i, g := range frames {
		if bytes.Equal(g, f) {
			return i
		}
	}
	return -1
}
