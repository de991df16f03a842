// Package domain contains the room coordinator entities and their invariants.
package domain

import (
	"errors"
	"time"
)

const (
	MaxNameLen = 32
	MaxIconLen = 256
)

var (
	ErrNameTooLong = errors.New("name too long")
	ErrNameEmpty   = errors.New("name empty")
	ErrIconTooLong = errors.New("icon too long")
)

type (
	UserID string
	Role   string
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID       UserID    `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Icon     string    `json:"icon,omitempty"`
	Roles    []Role    `json:"roles"`
	JoinedAt time.Time `json:"joinedAt"`
	Room     RoomRef   `json:"-"`
}

// PublicUser is what peers see about a member.
type PublicUser struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Roles    []Role `json:"roles"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Icon:     u.Icon,
		Roles:    u.Roles,
	}
}

func (u *User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Clone returns a copy safe to hand to another connection.
func (u *User) Clone() *User {
	c := *u
	c.Roles = append([]Role(nil), u.Roles...)
	return &c
}

func (u *User) SetProfile(name, icon string) error {
	if err := ValidateProfile(name, icon); err != nil {
		return err
	}
	u.Name = name
	u.Icon = icon
	return nil
}

func ValidateProfile(name, icon string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	if len(icon) > MaxIconLen {
		return ErrIconTooLong
	}
	return nil
}
