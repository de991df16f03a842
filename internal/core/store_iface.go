package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Portal/internal/domain"
)

// Persistence is the document store holding users, bans and invites.
// Not-found results use the domain sentinels; everything else is transient.
type Persistence interface {
	FindUserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	// UpdateUserRoom sets the user's room; an empty room clears it.
	UpdateUserRoom(ctx context.Context, id domain.UserID, room domain.RoomID) error
	UpdateUserProfile(ctx context.Context, id domain.UserID, name, icon string) (*domain.User, error)
	FindRoomMembers(ctx context.Context, room domain.RoomID) ([]*domain.User, error)
	DeleteUser(ctx context.Context, id domain.UserID) error
	FindActiveBan(ctx context.Context, user domain.UserID) (*domain.Ban, error)
	FindInvite(ctx context.Context, code string) (*domain.Invite, error)
	// ReserveInviteUse atomically records user as a use of the invite if it
	// is active and has uses left. reserved is false when user already
	// held a use. An exhausted or inactive invite is ErrInvalid.
	ReserveInviteUse(ctx context.Context, code string, user domain.UserID) (inv *domain.Invite, reserved bool, err error)
	ReleaseInviteUse(ctx context.Context, code string, user domain.UserID) error
}

// RoomMutation runs inside an atomic read-modify-write of one room key.
// It may be invoked more than once when the key is contended.
type RoomMutation func(tx *RoomTx) error

// RoomTx is the working copy of a room inside UpdateRoom. Room is nil when
// the room does not exist; setting it creates the room. Controller grants
// are only written through the transaction that changes membership.
type RoomTx struct {
	Room *domain.Room

	grant      domain.UserID
	clearGrant bool
	destroy    bool
}

func NewRoomTx(room *domain.Room) *RoomTx { return &RoomTx{Room: room} }

func (tx *RoomTx) Grant(uid domain.UserID) {
	tx.grant = uid
	tx.clearGrant = false
}

func (tx *RoomTx) ClearGrant() {
	tx.grant = ""
	tx.clearGrant = true
}

// Destroy removes the room together with its grant and presence entry.
func (tx *RoomTx) Destroy() {
	tx.ClearGrant()
	tx.destroy = true
}

func (tx *RoomTx) Granted() (domain.UserID, bool) { return tx.grant, tx.grant != "" }
func (tx *RoomTx) GrantCleared() bool             { return tx.clearGrant }
func (tx *RoomTx) Destroyed() bool                { return tx.destroy }

// StateStore is the state shared by every coordinator instance.
type StateStore interface {
	LoadRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	// UpdateRoom applies fn atomically (compare-and-set on the room key) and
	// returns the committed room, or nil if it was destroyed.
	UpdateRoom(ctx context.Context, id domain.RoomID, fn RoomMutation) (*domain.Room, error)

	Controller(ctx context.Context, room domain.RoomID) (domain.UserID, bool, error)

	AddPresence(ctx context.Context, room domain.RoomID, user domain.UserID) error
	RemovePresence(ctx context.Context, room domain.RoomID, user domain.UserID) error
	// PresentUsers returns live connection counts per user across all instances.
	PresentUsers(ctx context.Context, room domain.RoomID) (map[domain.UserID]int, error)

	AppendUndelivered(ctx context.Context, user domain.UserID, f Frame) error
	// DrainUndelivered returns the buffered frames in order and clears them.
	DrainUndelivered(ctx context.Context, user domain.UserID) ([]Frame, error)
	ClearUndelivered(ctx context.Context, user domain.UserID) error
}

// RoomEnvelope carries a room change to the other coordinator instances.
// Frame is a broadcast to deliver. Snapshot is the committed room that
// local sessions rebind to; Attach and Detach name a user whose sessions
// enter or leave the room.
type RoomEnvelope struct {
	Node      string          `json:"node"`
	Room      domain.RoomID   `json:"room"`
	Frame     json.RawMessage `json:"frame,omitempty"`
	Excluded  []domain.UserID `json:"excluded,omitempty"`
	Snapshot  *domain.Room    `json:"snapshot,omitempty"`
	Attach    domain.UserID   `json:"attach,omitempty"`
	Detach    domain.UserID   `json:"detach,omitempty"`
	Destroyed bool            `json:"destroyed,omitempty"`
}

type RoomBus interface {
	Publish(ctx context.Context, env RoomEnvelope) error
	// Subscribe blocks, invoking fn for every envelope until ctx is done.
	Subscribe(ctx context.Context, fn func(RoomEnvelope)) error
}
