// Package cron runs a recurring job, such as a periodic scan, on a cron
// schedule while the server is up.
package cron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"

	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// maxSleep bounds one wait so clock jumps are picked up.
const maxSleep = time.Hour

// Job is the work run on each tick.
type Job func(ctx context.Context) error

// Status is a snapshot of the scheduler.
type Status struct {
	Enabled   bool      `json:"enabled"`
	Expr      string    `json:"expr,omitempty"`
	Running   bool      `json:"running"`
	NextRun   time.Time `json:"nextRun,omitzero"`
	LastRun   time.Time `json:"lastRun,omitzero"`
	LastError string    `json:"lastError,omitempty"`
	Runs      int64     `json:"runs"`
	Skipped   int64     `json:"skipped"`
}

// Scheduler fires one Job on a schedule. A tick that arrives while the
// previous run is still going is skipped, not queued.
type Scheduler struct {
	name string
	job  Job

	mu       sync.Mutex
	expr     string
	schedule cronlib.Schedule
	loc      *time.Location
	next     time.Time
	lastRun  time.Time
	lastErr  string
	started  bool

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64

	stopCh       chan struct{}
	doneCh       chan struct{}
	rescheduleCh chan struct{}
	wg           sync.WaitGroup

	now func() time.Time
}

// New creates a scheduler for job. It does nothing until a schedule is set
// and Start is called.
func New(name string, job Job) *Scheduler {
	return &Scheduler{
		name:         name,
		job:          job,
		loc:          time.Local,
		rescheduleCh: make(chan struct{}, 1),
		now:          time.Now,
	}
}

// SetSchedule replaces the schedule from cfg. An empty expression disables
// the scheduler without stopping it.
func (s *Scheduler) SetSchedule(cfg Config) error {
	if !cfg.Enabled() {
		s.setSchedule("", nil, time.Local)
		L_info("cron: schedule disabled", "job", s.name)
		return nil
	}
	sched, loc, err := Parse(cfg.Scan, cfg.Timezone)
	if err != nil {
		return err
	}
	s.setSchedule(cfg.Scan, sched, loc)
	L_info("cron: schedule set", "job", s.name, "expr", cfg.Scan, "next", s.Status().NextRun)
	return nil
}

func (s *Scheduler) setSchedule(expr string, sched cronlib.Schedule, loc *time.Location) {
	s.mu.Lock()
	s.expr = expr
	s.schedule = sched
	s.loc = loc
	s.next = time.Time{}
	if sched != nil {
		s.next = sched.Next(s.now().In(loc))
	}
	s.mu.Unlock()

	select {
	case s.rescheduleCh <- struct{}{}:
	default:
	}
}

// Start runs the loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("cron: %s already running", s.name)
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.wg.Wait()
	L_debug("cron: stopped", "job", s.name)
}

// Status returns a snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Enabled:   s.schedule != nil,
		Expr:      s.expr,
		Running:   s.running.Load(),
		NextRun:   s.next,
		LastRun:   s.lastRun,
		LastError: s.lastErr,
		Runs:      s.runs.Load(),
		Skipped:   s.skipped.Load(),
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	timer := time.NewTimer(s.nextWake())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.rescheduleCh:
			L_trace("cron: rescheduling", "job", s.name)
		case <-timer.C:
			s.fireIfDue(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.nextWake())
	}
}

// nextWake returns how long to sleep until the next run is due.
func (s *Scheduler) nextWake() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return maxSleep
	}
	wait := s.next.Sub(s.now())
	if wait <= 0 {
		return 0
	}
	return min(wait, maxSleep)
}

func (s *Scheduler) fireIfDue(ctx context.Context) {
	s.mu.Lock()
	if s.schedule == nil || s.now().Before(s.next) {
		s.mu.Unlock()
		return
	}
	s.next = s.schedule.Next(s.now().In(s.loc))
	next := s.next
	s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		L_warn("cron: previous run still going, skipping", "job", s.name, "next", next)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.run(ctx, next)
	}()
}

func (s *Scheduler) run(ctx context.Context, next time.Time) {
	start := s.now()
	L_info("cron: starting job", "job", s.name)

	err := s.job(ctx)
	s.runs.Add(1)

	s.mu.Lock()
	s.lastRun = start
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		L_warn("cron: job failed", "job", s.name, "error", err, "next", next)
		return
	}
	L_elapsed(start, "cron: job finished", "job", s.name, "next", next)
}
