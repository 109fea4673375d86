// Package housekeeping runs periodic maintenance for a long-lived engine
// process outside of any single upload: one cron job that logs endpoint-
// table occupancy. Grounded on the teacher's pkg/scheduler.Scheduler, which
// wraps robfig/cron/v3 the same way (cron.New, AddFunc, Start/Stop) to
// drive periodic migration runs; here the cron job is a fixed maintenance
// task instead of a user-defined schedule.
package housekeeping

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"s3transfer/pkg/pool"
)

// Reaper periodically logs endpoint pool occupancy. The endpoint table
// itself already reclaims entries as soon as ref-count reaches zero
// (pool.Table.Release), so there is nothing to forcibly evict here; this
// job exists for visibility into long-lived deployments, and as the place
// a future idle-timeout policy would hook in.
type Reaper struct {
	mu      sync.Mutex
	cron    *cron.Cron
	table   *pool.Table
	running bool
}

// New builds a Reaper over table. The schedule is given to Start (standard
// five-field cron syntax, e.g. "*/5 * * * *").
func New(table *pool.Table) *Reaper {
	return &Reaper{
		cron:  cron.New(),
		table: table,
	}
}

// Start schedules the reap job and starts the cron scheduler.
func (r *Reaper) Start(cronExpr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("housekeeping: reaper already running")
	}
	if _, err := r.cron.AddFunc(cronExpr, r.reap); err != nil {
		return fmt.Errorf("housekeeping: invalid cron expression: %w", err)
	}
	r.cron.Start()
	r.running = true
	return nil
}

// Stop drains the cron scheduler, waiting for any in-flight job.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.running = false
}

func (r *Reaper) reap() {
	stats := r.table.Snapshot()
	log.Printf("housekeeping: %d pooled endpoints", len(stats))
	for _, s := range stats {
		if s.RefCount == 0 {
			// Should be unreachable: Release deletes zero-ref entries
			// synchronously. Logged loudly because it would mean the
			// table's invariant (endpoint exists iff ref-count > 0) broke.
			log.Printf("housekeeping: endpoint %s has zero ref-count but is still tabled", s.Host)
		}
	}
}
