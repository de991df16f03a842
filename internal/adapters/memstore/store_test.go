package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Portal/internal/domain"
)

func TestUserRoomRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutUser(&domain.User{ID: "a", Name: "A"})
	s.PutUser(&domain.User{ID: "b", Name: "B"})

	require.NoError(t, s.UpdateUserRoom(ctx, "a", "r1"))
	require.NoError(t, s.UpdateUserRoom(ctx, "b", "r1"))

	u, err := s.FindUserByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("r1"), u.Room.ID())
	assert.False(t, u.Room.IsResolved())

	members, err := s.FindRoomMembers(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, members, 2)

	require.NoError(t, s.UpdateUserRoom(ctx, "a", ""))
	u, err = s.FindUserByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, u.Room.IsZero())
}

func TestNotFoundKinds(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.FindUserByID(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = s.FindActiveBan(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrBanNotFound)
	_, err = s.FindInvite(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInviteNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, "ghost"), domain.ErrUserNotFound)
}

func TestInviteUseIsReservedOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutInvite(&domain.Invite{Code: "c", RoomID: "r1", Active: true, MaxUses: 2})

	_, reserved, err := s.ReserveInviteUse(ctx, "c", "a")
	require.NoError(t, err)
	assert.True(t, reserved)
	inv, reserved, err := s.ReserveInviteUse(ctx, "c", "a")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, []domain.UserID{"a"}, inv.Uses)
	assert.True(t, inv.Redeemable("r1"))

	require.NoError(t, s.ReleaseInviteUse(ctx, "c", "a"))
	inv, err = s.FindInvite(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, inv.Uses)
}

func TestInviteLastUseGoesToOneRedeemer(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutInvite(&domain.Invite{Code: "c", RoomID: "r1", Active: true, MaxUses: 2, Uses: []domain.UserID{"x"}})

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		invalid atomic.Int32
	)
	for _, uid := range []domain.UserID{"a", "b"} {
		uid := uid
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, reserved, err := s.ReserveInviteUse(ctx, "c", uid)
			switch {
			case err == nil && reserved:
				granted.Add(1)
			case errors.Is(err, domain.ErrInvalid):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, int32(1), invalid.Load())
	inv, err := s.FindInvite(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, inv.Uses, 2)
}

func TestReserveRejectsInactiveInvite(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutInvite(&domain.Invite{Code: "c", RoomID: "r1", Active: false, UnlimitedUses: true})

	_, _, err := s.ReserveInviteUse(ctx, "c", "a")
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, _, err = s.ReserveInviteUse(ctx, "missing", "a")
	assert.ErrorIs(t, err, domain.ErrInviteNotFound)
}
