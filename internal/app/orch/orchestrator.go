// Package orch coordinates room membership, controller authority and
// delivery of room events across connections and coordinator instances.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/Portal/internal/app"
	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/rs/zerolog/log"
)

const persistAttempts = 3

type Orchestrator struct {
	Registry  *app.Registry
	State     core.StateStore
	Store     core.Persistence
	Identity  core.IdentityResolver
	Portals   core.PortalAllocator
	PortalBus core.PortalChannel
	// Bus relays broadcasts to other instances; nil runs single-node.
	Bus    core.RoomBus
	Policy app.Policy
	NodeID string

	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Connect registers a fresh, unauthenticated connection.
func (o *Orchestrator) Connect(sid core.SessionID, signal core.SignalConnection, cancel context.CancelFunc) *core.Session {
	sess := core.NewSession(sid, signal, o.now())
	o.Registry.BindSignal(sess, cancel)
	return sess
}

// resolveRoom loads the room behind ref from shared state.
func (o *Orchestrator) resolveRoom(ctx context.Context, ref domain.RoomRef) (*domain.Room, domain.RoomRef, error) {
	if ref.IsZero() {
		return nil, ref, domain.ErrUserNotInRoom
	}
	room, err := o.State.LoadRoom(ctx, ref.ID())
	if err != nil {
		return nil, ref, err
	}
	resolved, err := ref.Resolve(room)
	if err != nil {
		return nil, ref, err
	}
	return room, resolved, nil
}

// refreshRoom rebinds sessions in room to the committed snapshot on every
// node.
func (o *Orchestrator) refreshRoom(ctx context.Context, room *domain.Room) {
	o.rebindLocal(room)
	o.relay(ctx, core.RoomEnvelope{Room: room.ID, Snapshot: room})
}

func (o *Orchestrator) rebindLocal(room *domain.Room) {
	for _, snap := range o.Registry.MembersOfRoom(room.ID) {
		snap.Session.SetRoom(domain.ResolvedRoom(room))
	}
}

// relay publishes a room change to the other nodes.
func (o *Orchestrator) relay(ctx context.Context, env core.RoomEnvelope) {
	if o.Bus == nil {
		return
	}
	env.Node = o.NodeID
	if err := o.Bus.Publish(ctx, env); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(env.Room)).Msg("relay room event")
	}
}

// persist retries a persistence write a few times on transient failures.
func (o *Orchestrator) persist(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < persistAttempts; attempt++ {
		if err = fn(ctx); err == nil || !domain.IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return domain.Transient("persist", ctx.Err())
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}
