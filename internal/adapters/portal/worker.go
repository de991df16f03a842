package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Portal/internal/domain"
)

// StatusHandler applies a portal status report to the room.
type StatusHandler func(ctx context.Context, room domain.RoomID, portal domain.PortalID, status domain.PortalStatus) error

// StatusWorker consumes portal:status reports from the portal backend.
type StatusWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	handle StatusHandler
}

func NewStatusWorker(redisURL, queue string, concurrency int, handle StatusHandler) (*StatusWorker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if queue == "" {
		queue = "portal_status"
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      zerologAdapter{l: log.With().Str("module", "portal.worker").Logger()},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("module", "portal.worker").Str("type", task.Type()).Msg("task failed")
		}),
	})
	w := &StatusWorker{server: srv, mux: asynq.NewServeMux(), handle: handle}
	w.mux.HandleFunc(TypeStatus, w.handleStatus)
	return w, nil
}

// Run starts the worker and blocks until ctx is canceled.
func (w *StatusWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

func (w *StatusWorker) handleStatus(ctx context.Context, t *asynq.Task) error {
	var p StatusPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode status: %v: %w", err, asynq.SkipRetry)
	}
	if p.RoomID == "" || p.PortalID == "" || !p.Status.Valid() {
		return fmt.Errorf("bad status report %+v: %w", p, asynq.SkipRetry)
	}
	err := w.handle(ctx, p.RoomID, p.PortalID, p.Status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrTransient):
		return err
	default:
		// stale portal or vanished room; retrying cannot help
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

type zerologAdapter struct{ l zerolog.Logger }

func (z zerologAdapter) Debug(args ...any) { z.l.Debug().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Info(args ...any)  { z.l.Info().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Warn(args ...any)  { z.l.Warn().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Error(args ...any) { z.l.Error().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Fatal(args ...any) { z.l.Fatal().Msg(fmt.Sprint(args...)) }
