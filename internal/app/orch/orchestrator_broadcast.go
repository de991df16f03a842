package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Portal/internal/app"
	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/rs/zerolog/log"
)

// BroadcastRoom delivers frame to every live connection in room except the
// excluded users, on this node and, through the bus, on the others. Members
// with no live connection anywhere get the frame buffered instead.
func (o *Orchestrator) BroadcastRoom(ctx context.Context, room *domain.Room, frame core.Frame, excluded ...domain.UserID) core.PublishResult {
	skip := make(map[domain.UserID]struct{}, len(excluded))
	for _, uid := range excluded {
		skip[uid] = struct{}{}
	}

	res := o.deliverLocal(ctx, room.ID, frame, skip)

	o.relay(ctx, core.RoomEnvelope{Room: room.ID, Frame: json.RawMessage(frame), Excluded: excluded})

	present, err := o.State.PresentUsers(ctx, room.ID)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("presence unavailable, using local view")
		present = o.localPresence(room.ID)
	}
	for _, uid := range room.Members {
		if _, ok := skip[uid]; ok {
			continue
		}
		if present[uid] > 0 {
			continue
		}
		if err := o.State.AppendUndelivered(ctx, uid, frame); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("buffer undelivered")
		}
	}
	return res
}

// OnRemoteBroadcast applies a room change relayed by another node to the
// sessions held here.
func (o *Orchestrator) OnRemoteBroadcast(env core.RoomEnvelope) {
	if env.Node == o.NodeID {
		return
	}
	ctx := context.Background()
	switch {
	case env.Attach != "" && env.Snapshot != nil:
		o.attachLocal(ctx, env.Attach, env.Snapshot)
	case env.Detach != "":
		o.detachLocal(ctx, env.Detach, env.Room, env.Destroyed)
	case env.Snapshot != nil:
		o.rebindLocal(env.Snapshot)
	}
	if len(env.Frame) == 0 {
		return
	}
	skip := make(map[domain.UserID]struct{}, len(env.Excluded))
	for _, uid := range env.Excluded {
		skip[uid] = struct{}{}
	}
	o.deliverLocal(ctx, env.Room, core.Frame(env.Frame), skip)
}

func (o *Orchestrator) deliverLocal(ctx context.Context, roomID domain.RoomID, frame core.Frame, skip map[domain.UserID]struct{}) core.PublishResult {
	var res core.PublishResult
	for _, snap := range o.Registry.MembersOfRoom(roomID) {
		uid, ok := snap.Session.UserID()
		if !ok {
			continue
		}
		if _, ok := skip[uid]; ok {
			continue
		}
		if err := snap.Session.Deliver(frame); err != nil {
			res.Dropped = append(res.Dropped, snap.Session)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "orch").Str("room", string(roomID)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")

	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(frame, slow) {
		case app.BufferAndKick:
			if uid, ok := slow.UserID(); ok {
				if err := o.State.AppendUndelivered(ctx, uid, frame); err != nil {
					log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("buffer for slow connection")
				}
			}
			o.Registry.Cancel(slow.ID())
		case app.DropFrame, app.NoAction:
		}
	}
	return res
}

func (o *Orchestrator) localPresence(roomID domain.RoomID) map[domain.UserID]int {
	out := make(map[domain.UserID]int)
	for _, snap := range o.Registry.MembersOfRoom(roomID) {
		if uid, ok := snap.Session.UserID(); ok {
			out[uid]++
		}
	}
	return out
}
