package domain

import (
	"slices"
	"time"
)

type Ban struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy UserID    `json:"createdBy"`
	UserID    UserID    `json:"userId"`
	Reason    string    `json:"reason"`
	Active    bool      `json:"active"`
}

type Invite struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     UserID    `json:"createdBy"`
	Active        bool      `json:"active"`
	RoomID        RoomID    `json:"roomId"`
	Code          string    `json:"code"`
	MaxUses       int       `json:"maxUses"`
	UnlimitedUses bool      `json:"unlimitedUses"`
	Uses          []UserID  `json:"uses"`
}

// Redeemable reports whether the invite can still admit someone to room.
func (i *Invite) Redeemable(room RoomID) bool {
	if !i.Active || i.RoomID != room {
		return false
	}
	return i.UnlimitedUses || len(i.Uses) < i.MaxUses
}

func (i *Invite) UsedBy(uid UserID) bool {
	return slices.Contains(i.Uses, uid)
}
