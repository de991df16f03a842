package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserNotInRoom  = errors.New("user not in room")
	ErrTooManyMembers = errors.New("too many members")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrTransient      = errors.New("transient failure")
	ErrInvalid        = errors.New("invalid")

	ErrRoomNotFound   = errors.New("room not found")
	ErrBanNotFound    = errors.New("ban not found")
	ErrInviteNotFound = errors.New("invite not found")

	ErrBanned = fmt.Errorf("%w: user is banned", ErrUnauthorized)
)

// Transient wraps a storage or transport failure so callers may retry.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
