package session

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartSweepScheduler runs Sweep on a standard 5-field cron schedule until ctx
// is cancelled. An invalid schedule disables sweeping and is logged.
func StartSweepScheduler(ctx context.Context, m *Manager, schedule string, loc *time.Location) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		log.Println("Session sweep disabled (session_sweep_schedule not set)")
		return
	}
	if loc == nil {
		loc = time.Local
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid session_sweep_schedule '%s': %v, session sweep disabled", schedule, err)
		return
	}
	log.Printf("Session sweep scheduled (cron: %s, ttl: %s)", schedule, m.opts.TTL)

	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			dropped, err := m.Sweep(m.opts.Now())
			if err != nil {
				log.Printf("Session sweep error: %v", err)
				continue
			}
			log.Printf("Session sweep complete: dropped=%d live=%d", dropped, m.Len())
		}
	}()
}
