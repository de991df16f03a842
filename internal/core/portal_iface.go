package core

import (
	"context"

	"github.com/dkeye/Portal/internal/domain"
)

//go:generate mockgen -source=portal_iface.go -destination=mocks/mock_portal.go -package=mocks

// PortalAllocator asks the portal backend to bring a portal up or down.
// Requests for a portal already being handled are no-ops.
type PortalAllocator interface {
	Allocate(ctx context.Context, room domain.RoomID, portal domain.PortalID) error
	Release(ctx context.Context, room domain.RoomID, portal domain.PortalID) error
}

// PortalChannel is the cross-process channel portal workers listen on.
type PortalChannel interface {
	Publish(ctx context.Context, payload []byte) error
}

// IdentityResolver maps a client token to a user id.
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (domain.UserID, error)
}
