// Package portal talks to the portal backend through asynq task queues.
package portal

import (
	"github.com/dkeye/Portal/internal/domain"
)

const (
	TypeAllocate = "portal:allocate"
	TypeRelease  = "portal:release"
	TypeStatus   = "portal:status"
)

type AllocatePayload struct {
	RoomID   domain.RoomID   `json:"roomId"`
	PortalID domain.PortalID `json:"portalId"`
}

// StatusPayload is reported by the portal backend as allocation progresses.
type StatusPayload struct {
	RoomID   domain.RoomID       `json:"roomId"`
	PortalID domain.PortalID     `json:"portalId"`
	Status   domain.PortalStatus `json:"status"`
}
