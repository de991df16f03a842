package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Portal/internal/domain"
	"github.com/dkeye/Portal/internal/protocol"
	"github.com/rs/zerolog/log"
)

// UpdateProfile persists uid's profile, refreshes the copies cached on its
// connections and tells the rest of the room.
func (o *Orchestrator) UpdateProfile(ctx context.Context, uid domain.UserID, name, icon string) (*domain.User, error) {
	if err := domain.ValidateProfile(name, icon); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	user, err := o.Store.UpdateUserProfile(ctx, uid, name, icon)
	if err != nil {
		return nil, err
	}
	for _, snap := range o.Registry.SessionsOfUser(uid) {
		snap.Session.RefreshUser(user)
	}
	if user.Room.IsZero() {
		return user, nil
	}
	room, err := o.State.LoadRoom(ctx, user.Room.ID())
	if err != nil || !room.HasMember(uid) {
		return user, nil
	}
	if frame, err := protocol.Event(protocol.UserUpdate, user.Public()); err == nil {
		o.BroadcastRoom(ctx, room, frame, uid)
	}
	return user, nil
}

// DeleteUser leaves the user's room, deletes the user and closes its
// connections.
func (o *Orchestrator) DeleteUser(ctx context.Context, uid domain.UserID) error {
	if err := o.Leave(ctx, uid); err != nil && !errors.Is(err, domain.ErrUserNotInRoom) {
		return err
	}
	if err := o.Store.DeleteUser(ctx, uid); err != nil {
		return err
	}
	if err := o.State.ClearUndelivered(ctx, uid); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("clear undelivered")
	}
	for _, snap := range o.Registry.SessionsOfUser(uid) {
		o.Registry.Cancel(snap.SID)
	}
	log.Info().Str("module", "orch").Str("user", string(uid)).Msg("user deleted")
	return nil
}
