package orch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Portal/internal/adapters/redisstate"
	"github.com/dkeye/Portal/internal/app"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/dkeye/Portal/internal/protocol"
)

// secondNode starts another coordinator sharing h's stores and wires both
// nodes to the room bus.
func (h *harness) secondNode(t *testing.T) *Orchestrator {
	t.Helper()
	other := &Orchestrator{
		Registry:  app.NewRegistry(),
		State:     h.state,
		Store:     h.store,
		Identity:  h.ids,
		Portals:   h.portals,
		PortalBus: h.channel,
		Policy:    app.SimplePolicy{},
		NodeID:    "node-b",
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	for _, o := range []*Orchestrator{h.orch, other} {
		o := o
		bus := redisstate.NewRoomBus(h.client)
		o.Bus = bus
		go func() {
			_ = bus.Subscribe(ctx, o.OnRemoteBroadcast)
			done <- struct{}{}
		}()
	}
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
	require.Eventually(t, func() bool {
		return h.mr.PubSubNumSub(redisstate.RoomEventsChannel)[redisstate.RoomEventsChannel] == 2
	}, time.Second, 5*time.Millisecond)
	return other
}

func TestRoomChangesReachOtherNode(t *testing.T) {
	h := newHarness(t, "a", "c")
	ctx := context.Background()
	nodeB := h.secondNode(t)
	sessA, _ := h.connectOn(nodeB, "a")
	sessC, sigC := h.connectOn(nodeB, "c")

	h.join("a", "r1")
	require.Eventually(t, func() bool {
		_, ok := sessA.Room().Room()
		return ok
	}, time.Second, 5*time.Millisecond)
	h.expectAllocate("r1")
	room := h.join("c", "r1")

	h.channel.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	key := json.RawMessage(`{"key":"a"}`)
	require.Eventually(t, func() bool {
		return nodeB.ControlInput(ctx, sessA.ID(), protocol.KeyDown, key)
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		cached, ok := sessC.Room().Room()
		return ok && cached.Portal.ID == room.Portal.ID
	}, time.Second, 5*time.Millisecond)
	present, err := h.state.PresentUsers(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, present["a"])
	assert.Equal(t, 1, present["c"])

	require.NoError(t, h.orch.Leave(ctx, "c"))
	require.Eventually(t, func() bool {
		return sessC.Room().IsZero()
	}, time.Second, 5*time.Millisecond)
	present, err = h.state.PresentUsers(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, present["c"])
	assert.Equal(t, 1, present["a"])
	assert.Contains(t, sigC.types(t), protocol.UserLeave)

	seen := len(sigC.messages(t))
	nodeB.Typing(ctx, sessA.ID(), true)
	assert.Len(t, sigC.messages(t), seen)
}

func TestRemoteDetachOfDestroyedRoom(t *testing.T) {
	h := newHarness(t, "a")
	ctx := context.Background()
	nodeB := h.secondNode(t)
	sessA, _ := h.connectOn(nodeB, "a")

	h.join("a", "r1")
	require.Eventually(t, func() bool {
		return sessA.Room().ID() == "r1"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.orch.Leave(ctx, "a"))
	require.Eventually(t, func() bool {
		return sessA.Room().IsZero()
	}, time.Second, 5*time.Millisecond)
	_, err := h.state.LoadRoom(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.False(t, h.mr.Exists("presence:r1"))
}
