package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Portal/internal/adapters/identity"
	"github.com/dkeye/Portal/internal/adapters/memstore"
	"github.com/dkeye/Portal/internal/adapters/redisstate"
	"github.com/dkeye/Portal/internal/app"
	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/core/mocks"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/dkeye/Portal/internal/protocol"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrConnectionClosed
	}
	if f.full {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, append(core.Frame(nil), fr...))
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSignal) setFull(v bool) {
	f.mu.Lock()
	f.full = v
	f.mu.Unlock()
}

func (f *fakeSignal) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSignal) messages(t *testing.T) []*protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Message, 0, len(f.frames))
	for _, fr := range f.frames {
		m, err := protocol.Decode(fr)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (f *fakeSignal) types(t *testing.T) []protocol.EventType {
	var out []protocol.EventType
	for _, m := range f.messages(t) {
		if m.Op == protocol.OpEvent {
			out = append(out, m.T)
		}
	}
	return out
}

// find returns the last event of type et.
func (f *fakeSignal) find(t *testing.T, et protocol.EventType) *protocol.Message {
	msgs := f.messages(t)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Op == protocol.OpEvent && msgs[i].T == et {
			return msgs[i]
		}
	}
	return nil
}

// hookStore lets tests observe or break persistence writes.
type hookStore struct {
	*memstore.Store

	mu           sync.Mutex
	onUpdateRoom func(domain.UserID, domain.RoomID)
	failUpdates  bool
}

func (s *hookStore) UpdateUserRoom(ctx context.Context, id domain.UserID, room domain.RoomID) error {
	s.mu.Lock()
	hook, fail := s.onUpdateRoom, s.failUpdates
	s.mu.Unlock()
	if hook != nil {
		hook(id, room)
	}
	if fail {
		return domain.Transient("update user room", errors.New("store unavailable"))
	}
	return s.Store.UpdateUserRoom(ctx, id, room)
}

func (s *hookStore) setFail(v bool) {
	s.mu.Lock()
	s.failUpdates = v
	s.mu.Unlock()
}

func (s *hookStore) setHook(fn func(domain.UserID, domain.RoomID)) {
	s.mu.Lock()
	s.onUpdateRoom = fn
	s.mu.Unlock()
}

type harness struct {
	t       *testing.T
	orch    *Orchestrator
	store   *hookStore
	state   *redisstate.StateStore
	mr      *miniredis.Miniredis
	client  *redis.Client
	ids     *identity.JWTResolver
	portals *mocks.MockPortalAllocator
	channel *mocks.MockPortalChannel

	seq int
}

func newHarness(t *testing.T, users ...domain.UserID) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctrl := gomock.NewController(t)
	h := &harness{
		t:       t,
		store:   &hookStore{Store: memstore.New()},
		state:   redisstate.NewStateStore(client),
		mr:      mr,
		client:  client,
		ids:     identity.NewJWTResolver("test-secret", time.Minute),
		portals: mocks.NewMockPortalAllocator(ctrl),
		channel: mocks.NewMockPortalChannel(ctrl),
	}
	h.orch = &Orchestrator{
		Registry:  app.NewRegistry(),
		State:     h.state,
		Store:     h.store,
		Identity:  h.ids,
		Portals:   h.portals,
		PortalBus: h.channel,
		Policy:    app.SimplePolicy{},
		NodeID:    "node-test",
	}
	for _, uid := range users {
		h.store.PutUser(&domain.User{ID: uid, Username: string(uid), Name: string(uid)})
	}
	return h
}

// connect opens and identifies a session for uid.
func (h *harness) connect(uid domain.UserID) (*core.Session, *fakeSignal) {
	h.t.Helper()
	return h.connectOn(h.orch, uid)
}

func (h *harness) connectOn(o *Orchestrator, uid domain.UserID) (*core.Session, *fakeSignal) {
	h.t.Helper()
	h.seq++
	sig := &fakeSignal{}
	sess := o.Connect(core.SessionID(fmt.Sprintf("s%d-%s", h.seq, uid)), sig, func() {})
	token, err := h.ids.Sign(uid, time.Hour)
	require.NoError(h.t, err)
	_, err = o.Identify(context.Background(), sess.ID(), token)
	require.NoError(h.t, err)
	return sess, sig
}

func (h *harness) join(uid domain.UserID, room domain.RoomID) *domain.Room {
	h.t.Helper()
	r, err := h.orch.Join(context.Background(), uid, room, false)
	require.NoError(h.t, err)
	return r
}

func (h *harness) expectAllocate(room domain.RoomID) {
	h.portals.EXPECT().Allocate(gomock.Any(), room, gomock.Any()).Return(nil)
}

func (h *harness) undelivered(uid domain.UserID) []string {
	if !h.mr.Exists("undelivered_events:" + string(uid)) {
		return nil
	}
	list, err := h.mr.List("undelivered_events:" + string(uid))
	require.NoError(h.t, err)
	return list
}
