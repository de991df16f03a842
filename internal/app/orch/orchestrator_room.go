package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/dkeye/Portal/internal/protocol"
	"github.com/rs/zerolog/log"
)

// CreateRoom opens a new room with uid as its initial member and owner.
func (o *Orchestrator) CreateRoom(ctx context.Context, uid domain.UserID) (*domain.Room, error) {
	return o.Join(ctx, uid, domain.NewRoomID(), true)
}

// JoinWithInvite reserves a use of code and joins the room it targets. The
// reservation is undone if the join fails.
func (o *Orchestrator) JoinWithInvite(ctx context.Context, uid domain.UserID, code string) (*domain.Room, error) {
	inv, reserved, err := o.Store.ReserveInviteUse(ctx, code, uid)
	if err != nil {
		return nil, err
	}
	room, err := o.Join(ctx, uid, inv.RoomID, false)
	if err != nil {
		if reserved {
			if rerr := o.Store.ReleaseInviteUse(ctx, code, uid); rerr != nil {
				log.Error().Err(rerr).Str("module", "orch").Str("invite", code).Msg("failed to release invite use")
			}
		}
		return nil, err
	}
	return room, nil
}

func (o *Orchestrator) checkBan(ctx context.Context, uid domain.UserID) error {
	_, err := o.Store.FindActiveBan(ctx, uid)
	switch {
	case errors.Is(err, domain.ErrBanNotFound):
		return nil
	case err != nil:
		return err
	default:
		return domain.ErrBanned
	}
}

// Join adds uid to roomID, creating the room if it does not exist.
func (o *Orchestrator) Join(ctx context.Context, uid domain.UserID, roomID domain.RoomID, isInitialMember bool) (*domain.Room, error) {
	user, err := o.Store.FindUserByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := o.checkBan(ctx, uid); err != nil {
		return nil, err
	}
	if cur := user.Room.ID(); cur != "" {
		if cur == roomID {
			if room, err := o.State.LoadRoom(ctx, cur); err == nil && room.HasMember(uid) {
				return nil, fmt.Errorf("%w: already in room %s", domain.ErrConflict, cur)
			}
		} else if err := o.Leave(ctx, uid); err != nil && !errors.Is(err, domain.ErrUserNotInRoom) {
			return nil, err
		}
	}

	var allocate bool
	room, err := o.State.UpdateRoom(ctx, roomID, func(tx *core.RoomTx) error {
		allocate = false
		if tx.Room == nil {
			tx.Room = domain.NewRoom(roomID, uid, o.now())
		}
		before := tx.Room.MemberCount()
		if err := tx.Room.AddMember(uid); err != nil {
			return err
		}
		if !isInitialMember && before == 1 && tx.Room.Portal.Status.Eligible() {
			tx.Room.Portal = domain.Portal{ID: domain.NewPortalID(), Status: domain.PortalAllocating}
			allocate = true
		}
		if tx.Room.MemberCount() == 1 {
			tx.Grant(uid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = o.persist(ctx, func(ctx context.Context) error {
		return o.Store.UpdateUserRoom(ctx, uid, roomID)
	})
	if err != nil {
		o.rollbackJoin(ctx, uid, roomID, room.Portal.ID, allocate)
		return nil, err
	}
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("room", string(roomID)).Int("members", room.MemberCount()).Msg("joined room")

	if allocate {
		if err := o.Portals.Allocate(ctx, roomID, room.Portal.ID); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("portal allocation request failed")
			if err := o.SetPortalStatus(ctx, roomID, room.Portal.ID, domain.PortalFailed); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("failed to mark portal failed")
			}
		}
	}

	if frame, err := protocol.Event(protocol.UserJoin, user.Public()); err == nil {
		o.BroadcastRoom(ctx, room, frame, uid)
	}

	o.attach(ctx, uid, room)
	return room, nil
}

// attach binds uid's sessions on every node to room and rebinds the other
// members to the new snapshot.
func (o *Orchestrator) attach(ctx context.Context, uid domain.UserID, room *domain.Room) {
	o.attachLocal(ctx, uid, room)
	o.relay(ctx, core.RoomEnvelope{Room: room.ID, Snapshot: room, Attach: uid})
}

func (o *Orchestrator) attachLocal(ctx context.Context, uid domain.UserID, room *domain.Room) {
	for _, snap := range o.Registry.SessionsOfUser(uid) {
		if snap.Session.Room().ID() != room.ID {
			if err := o.State.AddPresence(ctx, room.ID, uid); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("sid", string(snap.SID)).Msg("add presence")
			}
		}
		snap.Session.SetRoom(domain.ResolvedRoom(room))
	}
	o.rebindLocal(room)
}

// rollbackJoin undoes a committed join whose persistence write failed.
func (o *Orchestrator) rollbackJoin(ctx context.Context, uid domain.UserID, roomID domain.RoomID, portal domain.PortalID, allocated bool) {
	_, err := o.State.UpdateRoom(ctx, roomID, func(tx *core.RoomTx) error {
		if tx.Room == nil {
			return nil
		}
		if _, err := tx.Room.RemoveMember(uid); err != nil {
			return nil
		}
		if tx.Room.Empty() {
			tx.Destroy()
			return nil
		}
		if allocated && tx.Room.Portal.ID == portal && tx.Room.Portal.Status == domain.PortalAllocating {
			tx.Room.Portal = domain.Portal{Status: domain.PortalUnallocated}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Str("room", string(roomID)).Msg("join rollback failed")
		return
	}
	log.Warn().Str("module", "orch").Str("user", string(uid)).Str("room", string(roomID)).Msg("join rolled back")
}

// Leave removes uid from its room. USER_LEAVE is broadcast before the
// membership change is committed anywhere, so receivers still see the
// leaver as a member while handling it.
func (o *Orchestrator) Leave(ctx context.Context, uid domain.UserID) error {
	user, err := o.Store.FindUserByID(ctx, uid)
	if err != nil {
		return err
	}
	if user.Room.IsZero() {
		return domain.ErrUserNotInRoom
	}
	room, _, err := o.resolveRoom(ctx, user.Room)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return o.dropStaleRoom(ctx, uid, user.Room.ID())
	}
	if err != nil {
		return err
	}
	if !room.HasMember(uid) {
		return o.dropStaleRoom(ctx, uid, room.ID)
	}

	if frame, err := protocol.Event(protocol.UserLeave, protocol.LeaveNotice{User: uid}); err == nil {
		o.BroadcastRoom(ctx, room, frame)
	}

	var ownerChanged, destroyed bool
	updated, err := o.State.UpdateRoom(ctx, room.ID, func(tx *core.RoomTx) error {
		ownerChanged, destroyed = false, false
		if tx.Room == nil {
			destroyed = true
			return nil
		}
		changed, err := tx.Room.RemoveMember(uid)
		if errors.Is(err, domain.ErrUserNotInRoom) {
			return nil
		}
		if err != nil {
			return err
		}
		if tx.Room.Empty() {
			tx.Destroy()
			destroyed = true
			return nil
		}
		ownerChanged = changed
		return nil
	})
	if err != nil {
		return err
	}

	o.detach(ctx, uid, room.ID, destroyed)
	switch {
	case destroyed:
		o.releasePortal(ctx, room)
		log.Info().Str("module", "orch").Str("room", string(room.ID)).Msg("room destroyed")
	case updated != nil:
		o.refreshRoom(ctx, updated)
		if ownerChanged {
			notice := protocol.OwnerNotice{Room: updated.ID, Owner: updated.Owner}
			if frame, err := protocol.Event(protocol.RoomOwnerUpdate, notice); err == nil {
				o.BroadcastRoom(ctx, updated, frame)
			}
			log.Info().Str("module", "orch").Str("room", string(room.ID)).Str("owner", string(updated.Owner)).Msg("ownership transferred")
		}
	}

	if err := o.State.ClearUndelivered(ctx, uid); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("clear undelivered")
	}

	err = o.persist(ctx, func(ctx context.Context) error {
		return o.Store.UpdateUserRoom(ctx, uid, "")
	})
	if err != nil {
		// The persisted room is stale now; it is dropped on the next
		// identify, join or leave for this user.
		log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Str("room", string(room.ID)).Msg("leave not persisted")
		return fmt.Errorf("leave %s: %w", uid, err)
	}
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("room", string(room.ID)).Msg("left room")
	return nil
}

// Kick removes target from initiator's room. Only the owner may kick.
func (o *Orchestrator) Kick(ctx context.Context, initiator, target domain.UserID) error {
	user, err := o.Store.FindUserByID(ctx, initiator)
	if err != nil {
		return err
	}
	room, _, err := o.resolveRoom(ctx, user.Room)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return domain.ErrUserNotInRoom
	}
	if err != nil {
		return err
	}
	if room.Owner != initiator {
		return domain.ErrUnauthorized
	}
	members, err := o.Store.FindRoomMembers(ctx, room.ID)
	if err != nil {
		return err
	}
	found := false
	for _, m := range members {
		if m.ID == target {
			found = true
			break
		}
	}
	if !found || !room.HasMember(target) {
		return fmt.Errorf("%w: %s is not a member of %s", domain.ErrConflict, target, room.ID)
	}
	log.Info().Str("module", "orch").Str("room", string(room.ID)).Str("by", string(initiator)).Str("target", string(target)).Msg("kick")
	return o.Leave(ctx, target)
}

// RoomOf returns the committed state of uid's room.
func (o *Orchestrator) RoomOf(ctx context.Context, uid domain.UserID) (*domain.Room, error) {
	user, err := o.Store.FindUserByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	room, _, err := o.resolveRoom(ctx, user.Room)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil, domain.ErrUserNotInRoom
	}
	if err != nil {
		return nil, err
	}
	if !room.HasMember(uid) {
		return nil, domain.ErrUserNotInRoom
	}
	return room, nil
}

// detach clears uid's sessions on every node from roomID. Presence
// counters are already gone when the room was destroyed.
func (o *Orchestrator) detach(ctx context.Context, uid domain.UserID, roomID domain.RoomID, destroyed bool) {
	o.detachLocal(ctx, uid, roomID, destroyed)
	o.relay(ctx, core.RoomEnvelope{Room: roomID, Detach: uid, Destroyed: destroyed})
}

func (o *Orchestrator) detachLocal(ctx context.Context, uid domain.UserID, roomID domain.RoomID, destroyed bool) {
	for _, snap := range o.Registry.SessionsOfUser(uid) {
		if snap.Session.Room().ID() != roomID {
			continue
		}
		snap.Session.ClearRoom()
		if destroyed {
			continue
		}
		if err := o.State.RemovePresence(ctx, roomID, uid); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(snap.SID)).Msg("remove presence")
		}
	}
}

// dropStaleRoom reconciles a persisted room reference that shared state no
// longer backs.
func (o *Orchestrator) dropStaleRoom(ctx context.Context, uid domain.UserID, roomID domain.RoomID) error {
	log.Warn().Str("module", "orch").Str("user", string(uid)).Str("room", string(roomID)).Msg("dropping stale room reference")
	o.detach(ctx, uid, roomID, false)
	if err := o.State.ClearUndelivered(ctx, uid); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("clear undelivered")
	}
	err := o.persist(ctx, func(ctx context.Context) error {
		return o.Store.UpdateUserRoom(ctx, uid, "")
	})
	if err != nil {
		return err
	}
	return domain.ErrUserNotInRoom
}
