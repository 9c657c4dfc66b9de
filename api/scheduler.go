/*
scheduler.go - Automated backfill scheduler

PURPOSE:
  Periodically generates missing periods for all active recurring works and
  flags overdue tasks, so the system stays current without manual triggers.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates the actual work to the obligation engine's BackfillAll,
    which is idempotent (existing periods are skipped)
  - Flags overdue tasks after backfill so freshly created instances are
    evaluated in the same pass

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewBackfillScheduler(eng)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: BackfillAll endpoint (manual trigger)
  - obligation/backfill.go: Backfill implementation
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/obligation-engine/obligation"
)

// BackfillScheduler handles automated period generation and overdue flagging.
type BackfillScheduler struct {
	Engine        *obligation.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBackfillScheduler creates a new scheduler.
func NewBackfillScheduler(eng *obligation.Engine) *BackfillScheduler {
	return &BackfillScheduler{
		Engine:        eng,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (bs *BackfillScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.wg.Add(1)

	go bs.run()

	log.Printf("[Scheduler] Started with check interval: %v", bs.CheckInterval)
}

// Stop stops the scheduler.
func (bs *BackfillScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (bs *BackfillScheduler) run() {
	defer bs.wg.Done()

	// Run immediately on start
	bs.checkAndProcess()

	for {
		select {
		case <-bs.ticker.C:
			bs.checkAndProcess()
		case <-bs.stop:
			return
		}
	}
}

func (bs *BackfillScheduler) checkAndProcess() {
	ctx := context.Background()

	log.Printf("[Scheduler] Running backfill at %v", time.Now())

	works, created, err := bs.Engine.BackfillAll(ctx)
	if err != nil {
		log.Printf("[Scheduler] Backfill error: %v", err)
		return
	}

	flagged, err := bs.Engine.UpdateOverdueStatus(ctx)
	if err != nil {
		log.Printf("[Scheduler] Overdue check error: %v", err)
		return
	}

	if created > 0 || flagged > 0 {
		log.Printf("[Scheduler] Completed: %d works checked, %d periods created, %d tasks flagged overdue",
			works, created, flagged)
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (bs *BackfillScheduler) RunNow() {
	bs.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (bs *BackfillScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(bs.CheckInterval)
}
