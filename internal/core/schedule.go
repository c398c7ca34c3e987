package core

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSpec returns the standard cron expression the report job follows.
func (s Schedule) CronSpec() string {
	return fmt.Sprintf("CRON_TZ=UTC %d %d %d * *", s.Minute, s.Hour, s.Day)
}

// NextRuns lists the next n run times after from, in UTC. Months without the
// scheduled day are skipped, the same way cron skips them.
func (s Schedule) NextRuns(from time.Time, n int) ([]time.Time, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	sched, err := cron.ParseStandard(s.CronSpec())
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", s.CronSpec(), err)
	}

	runs := make([]time.Time, 0, n)
	t := from.UTC()
	for len(runs) < n {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t.UTC())
	}
	return runs, nil
}
