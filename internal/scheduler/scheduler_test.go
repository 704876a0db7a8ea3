package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"lavis/internal/config"
	"lavis/internal/persistence"
	"lavis/internal/persistence/memstore"
	"lavis/internal/tools/cli"
)

type fakeAgent struct {
	calls int32
	goal  string
}

func (f *fakeAgent) Run(ctx context.Context, goal string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.goal = goal
	return "agent ran: " + goal, nil
}

func newTestScheduler(t *testing.T, agent *fakeAgent) (*Scheduler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	shell := cli.NewExecutor(time.Second)
	sched := New(store, agent, shell, config.SchedulerConfig{WorkerPoolSize: 2})
	return sched, store
}

func TestCreateSubscribesEnabledTask(t *testing.T) {
	agent := &fakeAgent{}
	sched, _ := newTestScheduler(t, agent)

	task, err := sched.Create(context.Background(), persistence.ScheduledTask{
		Name:     "daily reminder",
		CronExpr: "0 0 9 * * *",
		Command:  "agent: say good morning",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sched.entries[task.ID]; !ok {
		t.Fatal("expected the created enabled task to have a cron entry")
	}
}

func TestCreateWithInvalidCronReturnsErrorAndPausesTask(t *testing.T) {
	agent := &fakeAgent{}
	sched, store := newTestScheduler(t, agent)

	_, err := sched.Create(context.Background(), persistence.ScheduledTask{
		Name:     "broken",
		CronExpr: "not a cron expr",
		Command:  "shell: echo hi",
		Enabled:  true,
	})
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}

	tasks, _ := store.ListTasks(context.Background())
	if len(tasks) != 1 {
		t.Fatalf("expected the task row to still be persisted, got %d rows", len(tasks))
	}
	if tasks[0].Enabled {
		t.Fatal("expected the task to be paused after a failed subscribe")
	}
	if tasks[0].LastRunStatus != "FAILED" {
		t.Fatalf("expected LastRunStatus FAILED, got %q", tasks[0].LastRunStatus)
	}
}

func TestRunNowDispatchesAgentCommandAndRecordsLog(t *testing.T) {
	agent := &fakeAgent{}
	sched, store := newTestScheduler(t, agent)

	task, err := sched.Create(context.Background(), persistence.ScheduledTask{
		Name:     "manual",
		CronExpr: "0 0 0 1 1 *", // once a year, never fires during the test
		Command:  "agent: summarize the day",
		Enabled:  true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := sched.RunNow(context.Background(), task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&agent.calls) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&agent.calls) != 1 {
		t.Fatalf("expected exactly one agent invocation, got %d", agent.calls)
	}
	if agent.goal != "summarize the day" {
		t.Fatalf("expected the agent: prefix stripped, got %q", agent.goal)
	}

	logs, err := store.ListRunLogs(context.Background(), task.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != "SUCCESS" {
		t.Fatalf("expected one SUCCESS run log, got %+v", logs)
	}
}

func TestOnTickSkipsWhileTaskStillRunning(t *testing.T) {
	agent := &fakeAgent{}
	sched, _ := newTestScheduler(t, agent)

	sched.mu.Lock()
	sched.running["busy-task"] = true
	sched.mu.Unlock()

	sched.onTick("busy-task")

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&agent.calls) != 0 {
		t.Fatal("a tick for an already-running task must be skipped, not executed")
	}
}

func TestPauseThenResumeRoundTrips(t *testing.T) {
	agent := &fakeAgent{}
	sched, _ := newTestScheduler(t, agent)

	task, err := sched.Create(context.Background(), persistence.ScheduledTask{
		Name:     "toggle",
		CronExpr: "0 0 9 * * *",
		Command:  "shell: echo hi",
		Enabled:  true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sched.Pause(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}
	sched.mu.Lock()
	_, stillSubscribed := sched.entries[task.ID]
	sched.mu.Unlock()
	if stillSubscribed {
		t.Fatal("expected pause to remove the cron entry")
	}

	if _, err := sched.Resume(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}
	sched.mu.Lock()
	_, resubscribed := sched.entries[task.ID]
	sched.mu.Unlock()
	if !resubscribed {
		t.Fatal("expected resume to re-add the cron entry")
	}
}

func TestDeleteRemovesTaskAndLogs(t *testing.T) {
	agent := &fakeAgent{}
	sched, store := newTestScheduler(t, agent)

	task, err := sched.Create(context.Background(), persistence.ScheduledTask{
		Name:     "throwaway",
		CronExpr: "0 0 9 * * *",
		Command:  "shell: echo hi",
		Enabled:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendRunLog(context.Background(), persistence.TaskRunLog{TaskID: task.ID, Status: "SUCCESS"}); err != nil {
		t.Fatal(err)
	}

	if err := sched.Delete(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetTask(context.Background(), task.ID); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	logs, err := store.ListRunLogs(context.Background(), task.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected run logs removed with the task, got %+v", logs)
	}
}
