package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// MaxRoomMembers caps the member list; a join at this size fails.
const MaxRoomMembers = 10

type (
	RoomID   string
	PortalID string
)

func NewRoomID() RoomID     { return RoomID(uuid.NewString()) }
func NewPortalID() PortalID { return PortalID(uuid.NewString()) }

type PortalStatus string

const (
	PortalUnallocated PortalStatus = "UNALLOCATED"
	PortalAllocating  PortalStatus = "ALLOCATING"
	PortalAllocated   PortalStatus = "ALLOCATED"
	PortalClosed      PortalStatus = "CLOSED"
	PortalFailed      PortalStatus = "FAILED"
)

// Eligible reports whether a new allocation may be requested from this state.
func (s PortalStatus) Eligible() bool {
	switch s {
	case PortalUnallocated, PortalClosed, PortalFailed, "":
		return true
	}
	return false
}

func (s PortalStatus) Valid() bool {
	switch s {
	case PortalUnallocated, PortalAllocating, PortalAllocated, PortalClosed, PortalFailed:
		return true
	}
	return false
}

type Portal struct {
	ID     PortalID     `json:"id,omitempty"`
	Status PortalStatus `json:"status"`
}

// Room members are kept in join order; the head succeeds a leaving owner.
type Room struct {
	ID        RoomID    `json:"id"`
	Owner     UserID    `json:"owner"`
	Members   []UserID  `json:"members"`
	Portal    Portal    `json:"portal"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewRoom(id RoomID, owner UserID, now time.Time) *Room {
	return &Room{
		ID:        id,
		Owner:     owner,
		Portal:    Portal{Status: PortalUnallocated},
		CreatedAt: now,
	}
}

func (r *Room) MemberCount() int { return len(r.Members) }

func (r *Room) HasMember(uid UserID) bool {
	return slices.Contains(r.Members, uid)
}

func (r *Room) AddMember(uid UserID) error {
	if r.HasMember(uid) {
		return ErrConflict
	}
	if len(r.Members) >= MaxRoomMembers {
		return ErrTooManyMembers
	}
	r.Members = append(r.Members, uid)
	if len(r.Members) == 1 {
		r.Owner = uid
	}
	return nil
}

// RemoveMember drops uid and, if it was the owner, hands ownership to the
// next member in join order. ownerChanged is false when the room empties.
func (r *Room) RemoveMember(uid UserID) (ownerChanged bool, err error) {
	i := slices.Index(r.Members, uid)
	if i < 0 {
		return false, ErrUserNotInRoom
	}
	r.Members = slices.Delete(r.Members, i, i+1)
	if len(r.Members) == 0 {
		r.Owner = ""
		return false, nil
	}
	if r.Owner == uid {
		r.Owner = r.Members[0]
		return true, nil
	}
	return false, nil
}

func (r *Room) Empty() bool { return len(r.Members) == 0 }

// Consistent reports whether the owner is a member of a non-empty room.
func (r *Room) Consistent() bool {
	if r.Empty() {
		return r.Owner == ""
	}
	return r.HasMember(r.Owner)
}

func (r *Room) Clone() *Room {
	c := *r
	c.Members = append([]UserID(nil), r.Members...)
	return &c
}
