/**
 * @description
 * Cron scheduler for the outbox relay sweep. Sweeps recover from panics and
 * are skipped while a previous sweep is still running, so a slow broker never
 * stacks concurrent drains of the same table.
 */

package app

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the outbox relay on a fixed cadence.
type Scheduler struct {
	cron     *cron.Cron
	relay    *Relay
	schedule string
}

// NewScheduler creates a scheduler sweeping the relay on the given cron
// schedule, for example "@every 5s".
func NewScheduler(relay *Relay, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	return &Scheduler{cron: c, relay: relay, schedule: schedule}
}

// Start registers the sweep job and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("level=info component=outbox_scheduler msg=\"relay sweep scheduled\" schedule=%q", s.schedule)
	return nil
}

// Stop gracefully stops the scheduler and returns a context that is done once
// the running job, if any, has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	published, err := s.relay.SweepOnce(ctx)
	if err != nil {
		log.Printf("WARN: outbox sweep failed: %v", err)
		return
	}
	if published > 0 {
		log.Printf("level=info component=outbox_relay msg=\"events published\" count=%d", published)
	}
}
