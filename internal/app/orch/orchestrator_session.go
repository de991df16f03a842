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

// Identify authenticates sid with token, registers its presence in the
// user's room and replays whatever was buffered while the user was away.
// Room broadcasts reaching the session before READY and the replay are
// held and sent after them.
func (o *Orchestrator) Identify(ctx context.Context, sid core.SessionID, token string) (*domain.User, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, fmt.Errorf("%w: unknown session", domain.ErrInvalid)
	}
	if sess.Identified() {
		return nil, fmt.Errorf("%w: already identified", domain.ErrConflict)
	}
	uid, err := o.Identity.ResolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := o.Store.FindUserByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !sess.Identify(user) {
		return nil, fmt.Errorf("%w: already identified", domain.ErrConflict)
	}

	var room *domain.Room
	if !user.Room.IsZero() {
		r, ref, err := o.resolveRoom(ctx, user.Room)
		switch {
		case err == nil && r.HasMember(uid):
			room = r
			sess.SetRoom(ref)
		case err == nil || errors.Is(err, domain.ErrRoomNotFound):
			log.Warn().Str("module", "orch").Str("user", string(uid)).Str("room", string(user.Room.ID())).Msg("persisted room is stale")
		default:
			// Stay present by id; control input is dropped until the
			// reference resolves on the next room update.
			log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("room unresolved at identify")
			sess.SetRoom(user.Room)
		}
		if ref := sess.Room(); !ref.IsZero() {
			if err := o.State.AddPresence(ctx, ref.ID(), uid); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("add presence")
			}
		}
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("user", string(uid)).Msg("identified")

	if frame, err := protocol.Event(protocol.Ready, protocol.ReadyPayload{User: user.Public(), Room: room}); err == nil {
		_ = sess.Signal().TrySend(frame)
	}
	replayed := o.replayUndelivered(ctx, sess, uid)
	o.release(ctx, sess, uid, replayed)
	return user, nil
}

// replayUndelivered sends the user's buffered frames and returns the ones
// drained from the buffer.
func (o *Orchestrator) replayUndelivered(ctx context.Context, sess *core.Session, uid domain.UserID) []core.Frame {
	frames, err := o.State.DrainUndelivered(ctx, uid)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("drain undelivered")
		return nil
	}
	for i, f := range frames {
		if err := sess.Signal().TrySend(f); err != nil {
			o.requeue(ctx, uid, frames[i:])
			log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Int("left", len(frames)-i).Msg("replay interrupted")
			return frames
		}
	}
	if len(frames) > 0 {
		log.Info().Str("module", "orch").Str("user", string(uid)).Int("frames", len(frames)).Msg("replayed undelivered")
	}
	return frames
}

// release flushes frames held during identify, buffering what cannot be
// sent.
func (o *Orchestrator) release(ctx context.Context, sess *core.Session, uid domain.UserID, replayed []core.Frame) {
	unsent, err := sess.Release(replayed)
	if err == nil {
		return
	}
	log.Warn().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Int("left", len(unsent)).Msg("flush held frames")
	o.requeue(ctx, uid, unsent)
}

func (o *Orchestrator) requeue(ctx context.Context, uid domain.UserID, frames []core.Frame) {
	for _, f := range frames {
		if err := o.State.AppendUndelivered(ctx, uid, f); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("requeue undelivered")
		}
	}
}

// Heartbeat records liveness and acks. Reports whether sid is known.
func (o *Orchestrator) Heartbeat(sid core.SessionID) bool {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return false
	}
	sess.Touch(o.now())
	_ = sess.Signal().TrySend(protocol.HeartbeatAck())
	return true
}

// OnDisconnect drops sid's presence. Room membership is kept: a dropped
// connection is not a leave.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.Registry.Unbind(sid)
	uid, ok := sess.UserID()
	if !ok {
		return
	}
	if ref := sess.Room(); !ref.IsZero() {
		sess.ClearRoom()
		if err := o.State.RemovePresence(ctx, ref.ID(), uid); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("remove presence")
		}
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("user", string(uid)).Msg("disconnected")
}
