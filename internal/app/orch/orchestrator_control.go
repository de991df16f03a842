package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Typing broadcasts sid's typing state to its room, excluding the sender.
func (o *Orchestrator) Typing(ctx context.Context, sid core.SessionID, typing bool) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	uid, ok := sess.UserID()
	if !ok {
		return
	}
	ref := sess.Room()
	if ref.IsZero() {
		return
	}
	room, err := o.State.LoadRoom(ctx, ref.ID())
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("typing: room unavailable")
		return
	}
	frame, err := protocol.Event(protocol.TypingUpdate, protocol.TypingNotice{User: uid, Typing: typing})
	if err != nil {
		return
	}
	o.BroadcastRoom(ctx, room, frame, uid)
}

// ControlInput forwards a control event to the room's portal if the sender
// holds the room's controller grant. Everything else is dropped silently.
// The grant and the portal are read from shared state on every call.
func (o *Orchestrator) ControlInput(ctx context.Context, sid core.SessionID, t protocol.EventType, d json.RawMessage) bool {
	payload, err := protocol.ValidateControl(t, d)
	if err != nil {
		return false
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return false
	}
	uid, ok := sess.UserID()
	if !ok {
		return false
	}
	ref := sess.Room()
	if _, ok := ref.Room(); !ok {
		return false
	}
	room, err := o.State.LoadRoom(ctx, ref.ID())
	if err != nil || !room.HasMember(uid) {
		return false
	}
	holder, ok, err := o.State.Controller(ctx, room.ID)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("controller lookup")
		return false
	}
	if !ok || holder != uid {
		return false
	}
	if room.Portal.ID == "" {
		return false
	}
	frame, err := protocol.EncodePortalInput(t, room.Portal.ID, payload)
	if err != nil {
		return false
	}
	if err := o.PortalBus.Publish(ctx, frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("forward control input")
		return false
	}
	return true
}
