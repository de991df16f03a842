package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Portal/internal/domain"
)

type recSignal struct {
	mu     sync.Mutex
	frames []string
	full   bool
}

func (r *recSignal) TrySend(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return ErrBackpressure
	}
	r.frames = append(r.frames, string(f))
	return nil
}

func (r *recSignal) Close() {}

func (r *recSignal) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func TestIdentifyStartsOutsideRoom(t *testing.T) {
	sess := NewSession("s1", &recSignal{}, time.Now())
	require.True(t, sess.Identify(&domain.User{ID: "a", Room: domain.UnresolvedRoom("r1")}))
	assert.False(t, sess.Identify(&domain.User{ID: "a"}))

	assert.True(t, sess.Room().IsZero())
	u, ok := sess.User()
	require.True(t, ok)
	assert.True(t, u.Room.IsZero())
}

func TestDeliverHeldUntilRelease(t *testing.T) {
	sig := &recSignal{}
	sess := NewSession("s1", sig, time.Now())
	require.NoError(t, sess.Deliver(Frame("early")))
	require.True(t, sess.Identify(&domain.User{ID: "a"}))

	require.NoError(t, sess.Deliver(Frame("buffered")))
	require.NoError(t, sess.Deliver(Frame("live")))
	require.NoError(t, sess.Signal().TrySend(Frame("ready")))
	require.NoError(t, sess.Signal().TrySend(Frame("buffered")))
	assert.Equal(t, []string{"early", "ready", "buffered"}, sig.sent())

	unsent, err := sess.Release([]Frame{Frame("buffered")})
	require.NoError(t, err)
	assert.Empty(t, unsent)
	assert.Equal(t, []string{"early", "ready", "buffered", "live"}, sig.sent())

	require.NoError(t, sess.Deliver(Frame("after")))
	assert.Equal(t, "after", sig.sent()[4])
}

func TestReleaseReturnsUnsent(t *testing.T) {
	sig := &recSignal{}
	sess := NewSession("s1", sig, time.Now())
	require.True(t, sess.Identify(&domain.User{ID: "a"}))
	require.NoError(t, sess.Deliver(Frame("one")))
	require.NoError(t, sess.Deliver(Frame("two")))

	sig.full = true
	unsent, err := sess.Release(nil)
	assert.ErrorIs(t, err, ErrBackpressure)
	assert.Equal(t, []Frame{Frame("one"), Frame("two")}, unsent)
}
