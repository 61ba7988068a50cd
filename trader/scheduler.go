package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"hyper-agent/store"
)

// Scheduler drives the engine: one trading cycle per interval, a light
// health ping every five minutes, and a daily universe re-score. The
// engine's own cycle lock enforces at-most-one cycle in flight; a tick
// landing on a running cycle is dropped, not queued.
type Scheduler struct {
	engine     *Engine
	venue      Venue
	universe   Universe
	screenings *store.ScreeningStore
	cron       *cron.Cron
	interval   time.Duration
	log        zerolog.Logger
}

func NewScheduler(engine *Engine, venue Venue, universe Universe, intervalMinutes int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		engine:     engine,
		venue:      venue,
		universe:   universe,
		screenings: store.NewScreeningStore(),
		cron:       cron.New(),
		interval:   time.Duration(intervalMinutes) * time.Minute,
		log:        log,
	}
}

// Start registers the jobs, runs the first cycle immediately and starts
// the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.engine.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule trading cycle: %w", err)
	}

	if _, err := s.cron.AddFunc("@every 5m", func() { s.healthCheck(ctx) }); err != nil {
		return fmt.Errorf("schedule health check: %w", err)
	}

	// Daily re-score of the current selection, off the cycle path.
	if s.universe != nil {
		if _, err := s.cron.AddFunc("30 0 * * *", func() { s.rescoreUniverse(ctx) }); err != nil {
			return fmt.Errorf("schedule score update: %w", err)
		}
	}

	s.log.Info().Dur("interval", s.interval).Msg("scheduler starting")
	go s.engine.RunCycle(ctx)
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	<-done
	s.log.Info().Msg("scheduler stopped")
}

// rescoreUniverse refreshes the selection scores and records the run, so
// daily updates land in history alongside full rebalances.
func (s *Scheduler) rescoreUniverse(ctx context.Context) {
	res, err := s.universe.UpdateScores(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("daily score update failed")
		return
	}
	if res == nil {
		return
	}
	if _, err := s.screenings.SaveResult(res); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist daily score update")
	}
}

func (s *Scheduler) healthCheck(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := s.venue.AllMids(pingCtx); err != nil {
		s.log.Warn().Err(err).Msg("health check failed")
		return
	}
	s.log.Debug().Msg("health check ok")
}
