package scanner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Run drives the scanner until ctx is cancelled: an immediate first cycle,
// then one per interval, with historical re-analysis on the configured cron
// schedule (UTC). A slow cycle delays the next tick; cycles never overlap.
func (s *Scanner) Run(ctx context.Context) error {
	cfg := s.cfgman.Current()

	if _, err := s.analyzer.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial historical analysis failed")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	schedule := cfg.History.AnalyzeCron
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.analyzer.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("scheduled historical analysis failed")
		}
	}); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	interval := time.Duration(cfg.Acquisition.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}
