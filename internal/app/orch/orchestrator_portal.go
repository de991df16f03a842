package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/dkeye/Portal/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SetPortalStatus applies a status report for portal. Reports for a portal
// the room no longer uses are rejected as conflicts.
func (o *Orchestrator) SetPortalStatus(ctx context.Context, roomID domain.RoomID, portal domain.PortalID, status domain.PortalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: portal status %q", domain.ErrInvalid, status)
	}
	room, err := o.State.UpdateRoom(ctx, roomID, func(tx *core.RoomTx) error {
		if tx.Room == nil {
			return domain.ErrRoomNotFound
		}
		if tx.Room.Portal.ID != portal {
			return fmt.Errorf("%w: stale portal %s", domain.ErrConflict, portal)
		}
		tx.Room.Portal.Status = status
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("portal", string(portal)).Str("status", string(status)).Msg("portal status")

	o.refreshRoom(ctx, room)
	notice := protocol.PortalNotice{Room: roomID, ID: portal, Status: status}
	if frame, err := protocol.Event(protocol.PortalUpdate, notice); err == nil {
		o.BroadcastRoom(ctx, room, frame)
	}
	return nil
}

func (o *Orchestrator) releasePortal(ctx context.Context, room *domain.Room) {
	if room.Portal.ID == "" || room.Portal.Status == domain.PortalUnallocated {
		return
	}
	if err := o.Portals.Release(ctx, room.ID, room.Portal.ID); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("portal release request failed")
	}
}
