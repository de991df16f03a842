package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Portal/internal/domain"
)

// newTestStore connects to the database named by PORTAL_TEST_PG. Rows are
// keyed by fresh uuids so runs do not collide.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PORTAL_TEST_PG")
	if dsn == "" {
		t.Skip("PORTAL_TEST_PG not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewStore(pool)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func (s *Store) insertUser(t *testing.T, name string) domain.UserID {
	t.Helper()
	id := domain.UserID(uuid.NewString())
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO users (id, username, name) VALUES ($1, $2, $2)`, string(id), name)
	require.NoError(t, err)
	return id
}

func (s *Store) insertInvite(t *testing.T, room domain.RoomID, maxUses int, uses ...domain.UserID) string {
	t.Helper()
	code := uuid.NewString()
	used := make([]string, 0, len(uses))
	for _, u := range uses {
		used = append(used, string(u))
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO invites (id, created_by, room_id, code, max_uses, uses) VALUES ($1, 'test', $2, $3, $4, $5)`,
		uuid.NewString(), string(room), code, maxUses, used)
	require.NoError(t, err)
	return code
}

func TestNotFoundMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	missing := domain.UserID(uuid.NewString())

	_, err := s.FindUserByID(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = s.UpdateUserProfile(ctx, missing, "name", "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = s.FindActiveBan(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrBanNotFound)
	_, err = s.FindInvite(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrInviteNotFound)

	// writes that match no row
	assert.ErrorIs(t, s.UpdateUserRoom(ctx, missing, "r1"), domain.ErrUserNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, missing), domain.ErrUserNotFound)
	assert.ErrorIs(t, s.ReleaseInviteUse(ctx, uuid.NewString(), missing), domain.ErrInviteNotFound)
	_, _, err = s.ReserveInviteUse(ctx, uuid.NewString(), missing)
	assert.ErrorIs(t, err, domain.ErrInviteNotFound)
}

func TestUserRoomAndMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	room := domain.RoomID(uuid.NewString())
	a := s.insertUser(t, "a")
	b := s.insertUser(t, "b")

	require.NoError(t, s.UpdateUserRoom(ctx, a, room))
	require.NoError(t, s.UpdateUserRoom(ctx, b, room))
	u, err := s.FindUserByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, room, u.Room.ID())

	members, err := s.FindRoomMembers(ctx, room)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, s.UpdateUserRoom(ctx, a, ""))
	u, err = s.FindUserByID(ctx, a)
	require.NoError(t, err)
	assert.True(t, u.Room.IsZero())

	u, err = s.UpdateUserProfile(ctx, b, "Bee", "")
	require.NoError(t, err)
	assert.Equal(t, "Bee", u.Name)

	require.NoError(t, s.DeleteUser(ctx, b))
	assert.ErrorIs(t, s.DeleteUser(ctx, b), domain.ErrUserNotFound)
}

func TestReserveInviteUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	room := domain.RoomID(uuid.NewString())
	code := s.insertInvite(t, room, 2, "x")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []domain.UserID
		invalid int
	)
	for _, uid := range []domain.UserID{"a", "b"} {
		uid := uid
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, reserved, err := s.ReserveInviteUse(ctx, code, uid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && reserved:
				granted = append(granted, uid)
			case errors.Is(err, domain.ErrInvalid):
				invalid++
			}
		}()
	}
	wg.Wait()
	require.Len(t, granted, 1)
	assert.Equal(t, 1, invalid)

	inv, reserved, err := s.ReserveInviteUse(ctx, code, granted[0])
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Len(t, inv.Uses, 2)

	require.NoError(t, s.ReleaseInviteUse(ctx, code, granted[0]))
	inv, err = s.FindInvite(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"x"}, inv.Uses)
	assert.True(t, inv.Redeemable(room))
}
