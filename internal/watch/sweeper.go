package watch

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule rescans the inbox every five minutes as a safety net
// for missed filesystem events.
const DefaultSchedule = "@every 5m"

// Sweeper re-runs a full inbox scan on a cron schedule. Specs use the
// standard 5-field format or @every descriptors.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper registers sweep under spec. An empty spec uses
// DefaultSchedule.
func NewSweeper(spec string, sweep func()) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		log.Debug().Msg("scheduled inbox sweep")
		sweep()
	}); err != nil {
		return nil, fmt.Errorf("registering sweep schedule %q: %w", spec, err)
	}
	return &Sweeper{cron: c}, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered schedule entries.
func (s *Sweeper) Entries() int {
	return len(s.cron.Entries())
}
