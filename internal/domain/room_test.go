package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomAddMemberFirstBecomesOwner(t *testing.T) {
	r := NewRoom("r1", "", time.Now())
	require.NoError(t, r.AddMember("a"))
	require.NoError(t, r.AddMember("b"))

	assert.Equal(t, UserID("a"), r.Owner)
	assert.Equal(t, []UserID{"a", "b"}, r.Members)
	assert.True(t, r.Consistent())
}

func TestRoomAddMemberRejectsDuplicate(t *testing.T) {
	r := NewRoom("r1", "", time.Now())
	require.NoError(t, r.AddMember("a"))
	assert.ErrorIs(t, r.AddMember("a"), ErrConflict)
}

func TestRoomAddMemberCapacity(t *testing.T) {
	r := NewRoom("r1", "", time.Now())
	for i := 0; i < MaxRoomMembers; i++ {
		require.NoError(t, r.AddMember(UserID(fmt.Sprintf("u%d", i))))
	}
	before := append([]UserID(nil), r.Members...)

	assert.ErrorIs(t, r.AddMember("late"), ErrTooManyMembers)
	assert.Equal(t, before, r.Members)
}

func TestRoomRemoveOwnerTransfersToHead(t *testing.T) {
	r := NewRoom("r1", "", time.Now())
	for _, u := range []UserID{"a", "b", "c"} {
		require.NoError(t, r.AddMember(u))
	}

	changed, err := r.RemoveMember("a")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, UserID("b"), r.Owner)
	assert.True(t, r.Consistent())

	changed, err = r.RemoveMember("c")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, UserID("b"), r.Owner)
}

func TestRoomRemoveLastMemberEmpties(t *testing.T) {
	r := NewRoom("r1", "", time.Now())
	require.NoError(t, r.AddMember("a"))

	changed, err := r.RemoveMember("a")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, r.Empty())
	assert.True(t, r.Consistent())

	_, err = r.RemoveMember("a")
	assert.ErrorIs(t, err, ErrUserNotInRoom)
}

func TestPortalStatusEligible(t *testing.T) {
	assert.True(t, PortalUnallocated.Eligible())
	assert.True(t, PortalClosed.Eligible())
	assert.True(t, PortalFailed.Eligible())
	assert.False(t, PortalAllocating.Eligible())
	assert.False(t, PortalAllocated.Eligible())
}

func TestRoomRefStates(t *testing.T) {
	var empty RoomRef
	assert.True(t, empty.IsZero())

	ref := UnresolvedRoom("r1")
	assert.False(t, ref.IsZero())
	assert.False(t, ref.IsResolved())
	_, ok := ref.Room()
	assert.False(t, ok)

	_, err := ref.Resolve(NewRoom("other", "a", time.Now()))
	assert.ErrorIs(t, err, ErrConflict)

	room := NewRoom("r1", "a", time.Now())
	resolved, err := ref.Resolve(room)
	require.NoError(t, err)
	got, ok := resolved.Room()
	require.True(t, ok)
	assert.Same(t, room, got)
	assert.Equal(t, RoomID("r1"), resolved.ID())
}

func TestInviteRedeemable(t *testing.T) {
	inv := &Invite{Active: true, RoomID: "r1", MaxUses: 1}
	assert.True(t, inv.Redeemable("r1"))
	assert.False(t, inv.Redeemable("r2"))

	inv.Uses = append(inv.Uses, "a")
	assert.False(t, inv.Redeemable("r1"))

	inv.UnlimitedUses = true
	assert.True(t, inv.Redeemable("r1"))

	inv.Active = false
	assert.False(t, inv.Redeemable("r1"))
}
