package app

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Portal/internal/core"
)

// Reaper closes connections that stopped sending heartbeats. Closing a
// connection only tears down its presence; room membership is untouched.
type Reaper struct {
	registry  *Registry
	timeout   time.Duration
	interval  time.Duration
	now       func() time.Time
	scheduler *gocron.Scheduler
}

func NewReaper(registry *Registry, timeout, interval time.Duration) *Reaper {
	return &Reaper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
	}
}

func (r *Reaper) Start() error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(r.interval).Do(func() { r.Sweep() }); err != nil {
		return err
	}
	s.StartAsync()
	r.scheduler = s
	log.Info().Str("module", "app.reaper").Dur("interval", r.interval).Dur("timeout", r.timeout).Msg("heartbeat reaper started")
	return nil
}

func (r *Reaper) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}

// Sweep cancels every stale session and returns their ids.
func (r *Reaper) Sweep() []core.SessionID {
	stale := r.registry.Stale(r.now().Add(-r.timeout))
	for _, sid := range stale {
		r.registry.Cancel(sid)
	}
	if len(stale) > 0 {
		log.Info().Str("module", "app.reaper").Int("reaped", len(stale)).Msg("reaped silent connections")
	}
	return stale
}
