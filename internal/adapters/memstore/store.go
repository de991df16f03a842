// Package memstore is a process-local core.Persistence used by the memory
// store driver and by tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
)

type Store struct {
	mu      sync.RWMutex
	users   map[domain.UserID]*domain.User
	bans    map[string]*domain.Ban
	invites map[string]*domain.Invite
}

func New() *Store {
	return &Store{
		users:   make(map[domain.UserID]*domain.User),
		bans:    make(map[string]*domain.Ban),
		invites: make(map[string]*domain.Invite),
	}
}

var _ core.Persistence = (*Store)(nil)

func (s *Store) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u.Clone()
}

func (s *Store) PutBan(b *domain.Ban) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bans[b.ID] = &cp
}

func (s *Store) PutInvite(i *domain.Invite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	cp.Uses = append([]domain.UserID(nil), i.Uses...)
	s.invites[i.Code] = &cp
}

func (s *Store) FindUserByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *Store) UpdateUserRoom(_ context.Context, id domain.UserID, room domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if room == "" {
		u.Room = domain.RoomRef{}
	} else {
		u.Room = domain.UnresolvedRoom(room)
	}
	return nil
}

func (s *Store) UpdateUserProfile(_ context.Context, id domain.UserID, name, icon string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if err := u.SetProfile(name, icon); err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (s *Store) FindRoomMembers(_ context.Context, room domain.RoomID) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.User
	for _, u := range s.users {
		if u.Room.ID() == room {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) FindActiveBan(_ context.Context, user domain.UserID) (*domain.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bans {
		if b.Active && b.UserID == user {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrBanNotFound
}

func (s *Store) FindInvite(_ context.Context, code string) (*domain.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.invites[code]
	if !ok {
		return nil, domain.ErrInviteNotFound
	}
	cp := *i
	cp.Uses = append([]domain.UserID(nil), i.Uses...)
	return &cp, nil
}

func (s *Store) ReserveInviteUse(_ context.Context, code string, user domain.UserID) (*domain.Invite, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.invites[code]
	if !ok {
		return nil, false, domain.ErrInviteNotFound
	}
	reserved := false
	switch {
	case i.Active && i.UsedBy(user):
	case i.Redeemable(i.RoomID):
		i.Uses = append(i.Uses, user)
		reserved = true
	default:
		return nil, false, fmt.Errorf("%w: invite %s is not redeemable", domain.ErrInvalid, code)
	}
	cp := *i
	cp.Uses = append([]domain.UserID(nil), i.Uses...)
	return &cp, reserved, nil
}

func (s *Store) ReleaseInviteUse(_ context.Context, code string, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.invites[code]
	if !ok {
		return domain.ErrInviteNotFound
	}
	i.Uses = slices.DeleteFunc(i.Uses, func(u domain.UserID) bool { return u == user })
	return nil
}
