// Package scheduler implements Scheduler: cron-triggered execution of
// "agent:"/"shell:" commands against persisted ScheduledTask rows,
// serialized per task id, bounded across task ids by a worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"lavis/internal/command"
	"lavis/internal/config"
	"lavis/internal/observability"
	"lavis/internal/persistence"
	"lavis/internal/skills"
	"lavis/internal/tools/cli"
)

// Scheduler owns one cron.Cron instance; every enabled task gets one cron
// entry whose callback enqueues an execution rather than running inline,
// so a slow/stuck execution never blocks the cron tick goroutine.
type Scheduler struct {
	store persistence.Store
	agent skills.AgentRunner
	shell cli.Executor
	cfg   config.SchedulerConfig

	cron *cron.Cron
	sem  *semaphore.Weighted

	mu      sync.Mutex
	entries map[string]cron.EntryID // taskID -> cron entry, only while subscribed
	running map[string]bool         // taskID -> currently executing (per-task serialization)
}

// New builds a Scheduler. Call Start to load persisted tasks and begin
// the cron clock; call Stop to drain it.
func New(store persistence.Store, agent skills.AgentRunner, shell cli.Executor, cfg config.SchedulerConfig) *Scheduler {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	return &Scheduler{
		store:   store,
		agent:   agent,
		shell:   shell,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
		sem:     semaphore.NewWeighted(int64(cfg.WorkerPoolSize)),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
	}
}

// Start loads every persisted task row, subscribing enabled ones to the
// cron clock. A row whose cron expression fails to parse is loaded in a
// paused, FAILED state rather than aborting startup for every other task.
func (s *Scheduler) Start(ctx context.Context) error {
	log := observability.LoggerWithTrace(ctx)

	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list tasks at startup: %w", err)
	}
	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		if err := s.subscribe(ctx, t); err != nil {
			log.Warn().Err(err).Str("task_id", t.ID).Msg("scheduler: invalid cron expression at startup; pausing task")
			t.Enabled = false
			t.LastRunStatus = "FAILED"
			if _, uerr := s.store.UpdateTask(ctx, t); uerr != nil {
				log.Warn().Err(uerr).Str("task_id", t.ID).Msg("scheduler: could not persist paused state")
			}
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron clock and blocks until any job currently mid-dispatch
// has returned (not until in-flight executions started via onTick's
// goroutine complete — those continue to hold their run-log bookkeeping
// independently).
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// subscribe adds a cron entry for t. Callers hold no lock; subscribe takes
// s.mu only for the entries map mutation.
func (s *Scheduler) subscribe(ctx context.Context, t persistence.ScheduledTask) error {
	id, err := s.cron.AddFunc(t.CronExpr, func() { s.onTick(t.ID) })
	if err != nil {
		return fmt.Errorf("scheduler: parse cron expression %q: %w", t.CronExpr, err)
	}
	s.mu.Lock()
	s.entries[t.ID] = id
	s.mu.Unlock()
	return nil
}

// unsubscribe removes t's cron entry, if any (pause/delete).
func (s *Scheduler) unsubscribe(taskID string) {
	s.mu.Lock()
	id, ok := s.entries[taskID]
	delete(s.entries, taskID)
	s.mu.Unlock()
	if ok {
		s.cron.Remove(id)
	}
}

// onTick fires on every cron tick for taskID. It enforces per-task-id
// serialization by skip-logging rather than queueing: a tick that fires
// while the previous execution is still running is dropped, not queued.
// It then acquires a worker-pool slot bounding total concurrent executions
// across distinct task ids.
func (s *Scheduler) onTick(taskID string) {
	s.mu.Lock()
	if s.running[taskID] {
		s.mu.Unlock()
		observability.LoggerWithTrace(context.Background()).Warn().Str("task_id", taskID).Msg("scheduler: tick skipped, prior execution still running")
		return
	}
	s.running[taskID] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running[taskID] = false
			s.mu.Unlock()
		}()
		ctx := context.Background()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.execute(ctx, taskID)
	}()
}

// execute runs one task invocation to completion, recording a run-log row
// and updating the task's run state regardless of outcome.
func (s *Scheduler) execute(ctx context.Context, taskID string) {
	log := observability.LoggerWithTrace(ctx)

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: task vanished before execution")
		return
	}

	start := time.Now()
	if err := s.store.SetTaskRunState(ctx, taskID, "RUNNING", start, false); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: could not persist RUNNING state")
	}

	output, runErr := s.dispatch(ctx, task.Command)
	end := time.Now()

	status := "SUCCESS"
	errText := ""
	if runErr != nil {
		status = "FAILED"
		errText = runErr.Error()
	}

	runLog := persistence.TaskRunLog{
		TaskID:     taskID,
		StartedAt:  start,
		EndedAt:    end,
		Status:     status,
		Output:     output,
		ErrorText:  errText,
		DurationMS: end.Sub(start).Milliseconds(),
	}
	if _, err := s.store.AppendRunLog(ctx, runLog); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: could not persist run log")
	}
	if err := s.store.SetTaskRunState(ctx, taskID, status, end, true); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: could not persist final run state")
	}
}

// dispatch runs cmd per the shared agent:/shell: command grammar: agent
// commands enter the reasoning loop with the goal substring, shell
// commands are spawned with the process shell.
func (s *Scheduler) dispatch(ctx context.Context, cmd string) (string, error) {
	kind, payload := command.Parse(cmd)
	switch kind {
	case command.Agent:
		if s.agent == nil {
			return "", fmt.Errorf("scheduler: agent runner not available")
		}
		return s.agent.Run(ctx, payload)
	default:
		res, err := s.shell.Run(ctx, cli.Request{Shell: payload})
		if err != nil {
			return "", err
		}
		if !res.OK {
			return res.Stdout, fmt.Errorf("scheduler: shell command exited %d: %s", res.ExitCode, res.Stderr)
		}
		return res.Stdout, nil
	}
}

// Create persists a new task and, if enabled, subscribes it immediately.
func (s *Scheduler) Create(ctx context.Context, task persistence.ScheduledTask) (persistence.ScheduledTask, error) {
	if task.CronExpr == "" || task.Command == "" {
		return persistence.ScheduledTask{}, fmt.Errorf("scheduler: cron expression and command are required")
	}
	saved, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return persistence.ScheduledTask{}, err
	}
	if saved.Enabled {
		if err := s.subscribe(ctx, saved); err != nil {
			saved.Enabled = false
			saved.LastRunStatus = "FAILED"
			_, _ = s.store.UpdateTask(ctx, saved)
			return saved, err
		}
	}
	return saved, nil
}

// List returns every persisted task.
func (s *Scheduler) List(ctx context.Context) ([]persistence.ScheduledTask, error) {
	return s.store.ListTasks(ctx)
}

// Get returns one task by id.
func (s *Scheduler) Get(ctx context.Context, id string) (persistence.ScheduledTask, error) {
	return s.store.GetTask(ctx, id)
}

// Update overwrites a task's row and re-subscribes it according to its
// new Enabled/CronExpr.
func (s *Scheduler) Update(ctx context.Context, task persistence.ScheduledTask) (persistence.ScheduledTask, error) {
	s.unsubscribe(task.ID)
	saved, err := s.store.UpdateTask(ctx, task)
	if err != nil {
		return persistence.ScheduledTask{}, err
	}
	if saved.Enabled {
		if err := s.subscribe(ctx, saved); err != nil {
			saved.Enabled = false
			saved.LastRunStatus = "FAILED"
			_, _ = s.store.UpdateTask(ctx, saved)
			return saved, err
		}
	}
	return saved, nil
}

// Pause unsubscribes task id from the cron clock without deleting it.
func (s *Scheduler) Pause(ctx context.Context, id string) (persistence.ScheduledTask, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return persistence.ScheduledTask{}, err
	}
	s.unsubscribe(id)
	task.Enabled = false
	return s.store.UpdateTask(ctx, task)
}

// Resume re-subscribes a previously paused task.
func (s *Scheduler) Resume(ctx context.Context, id string) (persistence.ScheduledTask, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return persistence.ScheduledTask{}, err
	}
	task.Enabled = true
	saved, err := s.store.UpdateTask(ctx, task)
	if err != nil {
		return persistence.ScheduledTask{}, err
	}
	if err := s.subscribe(ctx, saved); err != nil {
		saved.Enabled = false
		saved.LastRunStatus = "FAILED"
		_, _ = s.store.UpdateTask(ctx, saved)
		return saved, err
	}
	return saved, nil
}

// Delete unsubscribes and removes a task and its run logs (cascade).
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	s.unsubscribe(id)
	return s.store.DeleteTask(ctx, id)
}

// RunNow forces one immediate execution outside the tick schedule,
// subject to the same per-task serialization as a regular tick.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return err
	}
	s.onTick(id)
	return nil
}

// ListLogs returns up to limit of the most recent run-log rows for a task.
func (s *Scheduler) ListLogs(ctx context.Context, id string, limit int) ([]persistence.TaskRunLog, error) {
	return s.store.ListRunLogs(ctx, id, limit)
}

// PruneLogs removes run-log rows older than the configured retention
// window; callers invoke this periodically (e.g. alongside
// MemoryManager.ManageMemory's cold-storage cleanup cadence).
func (s *Scheduler) PruneLogs(ctx context.Context) error {
	days := s.cfg.RunLogRetention
	if days <= 0 {
		return nil
	}
	return s.store.PruneRunLogs(ctx, days)
}
