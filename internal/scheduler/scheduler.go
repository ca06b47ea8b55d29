// Package scheduler runs the standing cron jobs: sync prompt, sync
// reminder, sync summary, daily report, and weekly report.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/fentz26/pulsebot/internal/config"
	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/notify"
	"github.com/fentz26/pulsebot/internal/report"
)

const retryDelay = 30 * time.Minute

// job is one schedulable unit. Standing jobs carry a cron schedule; retry
// jobs carry a single run time and remove themselves after firing.
type job struct {
	id        string
	name      string
	trigger   string
	schedule  cron.Schedule
	nextRun   time.Time
	oneShot   bool
	retryable bool
	fn        func(ctx context.Context) error

	// Serializes executions of this job. Retry jobs share the mutex of
	// the job they retry, so a retry never overlaps a scheduled run.
	lock *sync.Mutex
}

// Scheduler fires the standing jobs on their cron schedules. Every firing
// runs in its own goroutine; a per-job mutex keeps any one job from
// overlapping itself.
type Scheduler struct {
	reports  *report.Service
	notifier *notify.Notifier
	loc      *time.Location

	mu           sync.Mutex
	jobs         map[string]*job
	syncThreadTS string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New builds a scheduler with the five standing jobs from the configured
// cron expressions.
func New(reports *report.Service, notifier *notify.Notifier, cfg *config.Config) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sch := &Scheduler{
		reports:  reports,
		notifier: notifier,
		loc:      cfg.Location(),
		jobs:     make(map[string]*job),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}

	standing := []struct {
		id, name, spec string
		retryable      bool
		fn             func(ctx context.Context) error
	}{
		{"daily_sync_prompt", "Daily sync prompt", cfg.Schedule.SyncPrompt, false, sch.runSyncPrompt},
		{"daily_sync_reminder", "Sync reminder", cfg.Schedule.SyncReminder, false, sch.runSyncReminder},
		{"daily_sync_summary", "Sync summary", cfg.Schedule.SyncSummary, false, sch.runSyncSummary},
		{"daily_report", "Daily report", cfg.Schedule.DailyReport, true, sch.runDailyReport},
		{"weekly_report", "Weekly report", cfg.Schedule.WeeklyReport, true, sch.runWeeklyReport},
	}
	for _, s := range standing {
		schedule, err := cron.ParseStandard(s.spec)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("parse schedule for %s (%q): %w", s.id, s.spec, err)
		}
		sch.jobs[s.id] = &job{
			id:        s.id,
			name:      s.name,
			trigger:   "cron: " + s.spec,
			schedule:  schedule,
			nextRun:   schedule.Next(sch.now().In(sch.loc)),
			retryable: s.retryable,
			fn:        s.fn,
			lock:      &sync.Mutex{},
		}
	}
	return sch, nil
}

// SetNow overrides the clock. For tests.
func (sch *Scheduler) SetNow(now func() time.Time) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.now = now
	for _, j := range sch.jobs {
		if j.schedule != nil {
			j.nextRun = j.schedule.Next(now().In(sch.loc))
		}
	}
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.loop()
	log.Printf("scheduler: started with %d jobs", len(sch.jobs))
}

// Stop cancels the loop and waits for in-flight jobs to finish.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	log.Println("scheduler: stopped")
}

func (sch *Scheduler) loop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.fireDue()
		}
	}
}

// fireDue launches every job whose next run time has passed. The next run
// is advanced before the handler starts, so a long run never causes a
// double fire of the same scheduled slot.
func (sch *Scheduler) fireDue() {
	now := sch.clock().In(sch.loc)

	sch.mu.Lock()
	var due []*job
	for _, j := range sch.jobs {
		if j.nextRun.IsZero() || j.nextRun.After(now) {
			continue
		}
		due = append(due, j)
		if j.oneShot {
			delete(sch.jobs, j.id)
		} else {
			j.nextRun = j.schedule.Next(now)
		}
	}
	sch.mu.Unlock()

	for _, j := range due {
		sch.wg.Add(1)
		go func(j *job) {
			defer sch.wg.Done()
			sch.runJob(sch.ctx, j)
		}(j)
	}
}

// runJob executes a job under its mutex and handles failure: admin
// notification always, a one-shot retry for report jobs.
func (sch *Scheduler) runJob(ctx context.Context, j *job) {
	j.lock.Lock()
	defer j.lock.Unlock()

	log.Printf("scheduler: running job %s", j.id)
	err := j.fn(ctx)
	if err == nil {
		log.Printf("scheduler: job %s finished", j.id)
		return
	}

	log.Printf("scheduler: job %s failed: %v", j.id, err)
	sch.notifier.NotifyAdmin(ctx, j.name, err)
	if j.retryable {
		sch.scheduleRetry(j)
	}
}

// scheduleRetry registers a one-shot copy of a failed job. The copy shares
// the original's mutex and never spawns further retries.
func (sch *Scheduler) scheduleRetry(j *job) {
	retryID := fmt.Sprintf("%s_retry_%s", j.id, uuid.NewString()[:8])
	runAt := sch.clock().In(sch.loc).Add(retryDelay)

	sch.mu.Lock()
	sch.jobs[retryID] = &job{
		id:      retryID,
		name:    j.name + " (retry)",
		trigger: "once: " + runAt.Format("2006-01-02 15:04:05"),
		nextRun: runAt,
		oneShot: true,
		fn:      j.fn,
		lock:    j.lock,
	}
	sch.mu.Unlock()

	log.Printf("scheduler: job %s will retry as %s at %s", j.id, retryID, runAt.Format(time.RFC3339))
}

// TriggerManually runs a job immediately and synchronously, serialized with
// any scheduled run of the same job. Returns false for an unknown id.
func (sch *Scheduler) TriggerManually(id string) bool {
	sch.mu.Lock()
	j, ok := sch.jobs[id]
	sch.mu.Unlock()
	if !ok {
		return false
	}
	log.Printf("scheduler: manual trigger of job %s", id)
	if j.oneShot {
		sch.mu.Lock()
		delete(sch.jobs, id)
		sch.mu.Unlock()
	}
	sch.runJob(sch.ctx, j)
	return true
}

// JobStatuses returns a snapshot of every registered job, sorted by id.
func (sch *Scheduler) JobStatuses() []models.JobStatus {
	active := sch.ctx.Err() == nil

	sch.mu.Lock()
	statuses := make([]models.JobStatus, 0, len(sch.jobs))
	for _, j := range sch.jobs {
		next := "unscheduled"
		if !j.nextRun.IsZero() {
			next = j.nextRun.Format("2006-01-02 15:04:05 MST")
		}
		statuses = append(statuses, models.JobStatus{
			ID:      j.id,
			Name:    j.name,
			NextRun: next,
			Active:  active,
			Trigger: j.trigger,
		})
	}
	sch.mu.Unlock()

	sort.Slice(statuses, func(i, k int) bool { return statuses[i].ID < statuses[k].ID })
	return statuses
}

func (sch *Scheduler) clock() time.Time {
	sch.mu.Lock()
	now := sch.now
	sch.mu.Unlock()
	return now()
}

// Job handlers.

func (sch *Scheduler) runSyncPrompt(ctx context.Context) error {
	ts, err := sch.notifier.SendSyncPrompt(ctx)
	if err != nil {
		return err
	}
	sch.mu.Lock()
	sch.syncThreadTS = ts
	sch.mu.Unlock()
	return nil
}

func (sch *Scheduler) runSyncReminder(ctx context.Context) error {
	sch.mu.Lock()
	ts := sch.syncThreadTS
	sch.mu.Unlock()
	if ts == "" {
		log.Println("scheduler: no sync thread today, skipping reminder")
		return nil
	}
	missing, err := sch.notifier.MissingResponders(ctx, ts)
	if err != nil {
		return err
	}
	return sch.notifier.SendReminder(ctx, ts, missing)
}

func (sch *Scheduler) runSyncSummary(ctx context.Context) error {
	sch.mu.Lock()
	ts := sch.syncThreadTS
	sch.mu.Unlock()
	if ts == "" {
		log.Println("scheduler: no sync thread today, skipping summary")
		return nil
	}
	return sch.notifier.PostSyncSummary(ctx, ts)
}

func (sch *Scheduler) runDailyReport(ctx context.Context) error {
	r, err := sch.reports.GenerateDaily(ctx, time.Time{})
	if err != nil {
		return err
	}
	return sch.notifier.PostDailyReport(ctx, r)
}

func (sch *Scheduler) runWeeklyReport(ctx context.Context) error {
	r, err := sch.reports.GenerateWeekly(ctx, time.Time{})
	if err != nil {
		return err
	}
	return sch.notifier.PostWeeklyReport(ctx, r)
}
