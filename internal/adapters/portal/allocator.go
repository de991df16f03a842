package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
)

// Allocator enqueues allocate/release requests for the portal backend.
// Task ids are derived from the portal id so repeated requests collapse.
type Allocator struct {
	client *asynq.Client
	queue  string
}

func NewAllocator(redisURL, queue string) (*Allocator, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if queue == "" {
		queue = "portals"
	}
	return &Allocator{client: asynq.NewClient(opt), queue: queue}, nil
}

var _ core.PortalAllocator = (*Allocator)(nil)

func (a *Allocator) Allocate(ctx context.Context, room domain.RoomID, portal domain.PortalID) error {
	return a.enqueue(ctx, TypeAllocate, room, portal)
}

func (a *Allocator) Release(ctx context.Context, room domain.RoomID, portal domain.PortalID) error {
	return a.enqueue(ctx, TypeRelease, room, portal)
}

func (a *Allocator) enqueue(ctx context.Context, taskType string, room domain.RoomID, portal domain.PortalID) error {
	payload, err := json.Marshal(AllocatePayload{RoomID: room, PortalID: portal})
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskType, payload)
	info, err := a.client.EnqueueContext(ctx, task,
		asynq.Queue(a.queue),
		asynq.TaskID(taskType+":"+string(portal)),
		asynq.MaxRetry(5),
		asynq.Retention(time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		log.Debug().Str("module", "portal").Str("type", taskType).Str("portal", string(portal)).Msg("request already queued")
		return nil
	}
	if err != nil {
		return domain.Transient("enqueue "+taskType, err)
	}
	log.Info().Str("module", "portal").Str("type", taskType).Str("room", string(room)).Str("task", info.ID).Msg("enqueued")
	return nil
}

func (a *Allocator) Close() error {
	return a.client.Close()
}
