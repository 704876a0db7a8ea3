package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lavis/internal/persistence"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	sess, err := s.CreateSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", sess.Key)

	require.NoError(t, s.TouchSession(ctx, "sess-1", 1, 42))
	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, 1, got.MessageCount)
	require.Equal(t, 42, got.TokenEstimate)

	_, err = s.GetSession(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestMessageOrderingAndCompression(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.CreateSession(ctx, "sess-1")

	m1, err := s.AppendMessage(ctx, persistence.Message{SessionKey: "sess-1", Kind: persistence.MessageUser, Content: "hi"})
	require.NoError(t, err)
	m2, err := s.AppendMessage(ctx, persistence.Message{SessionKey: "sess-1", Kind: persistence.MessageAssistant, Content: "hello"})
	require.NoError(t, err)
	require.Equal(t, 0, m1.Position)
	require.Equal(t, 1, m2.Position)

	msgs, err := s.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NoError(t, s.MarkCompressed(ctx, []string{m1.ID}))
	msgs, _ = s.ListMessages(ctx, "sess-1")
	require.True(t, msgs[0].IsCompressed)
	require.False(t, msgs[1].IsCompressed)
}

func TestScheduledTaskAndRunLogs(t *testing.T) {
	ctx := context.Background()
	s := New()

	task, err := s.CreateTask(ctx, persistence.ScheduledTask{Name: "cleanup", CronExpr: "0 0 * * * *", Command: "shell:echo hi", Enabled: true})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	_, err = s.AppendRunLog(ctx, persistence.TaskRunLog{TaskID: task.ID, Status: "SUCCESS"})
	require.NoError(t, err)
	_, err = s.AppendRunLog(ctx, persistence.TaskRunLog{TaskID: task.ID, Status: "FAILED"})
	require.NoError(t, err)

	logs, err := s.ListRunLogs(ctx, task.ID, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "FAILED", logs[0].Status)

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	_, err = s.GetTask(ctx, task.ID)
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSkillUseTracking(t *testing.T) {
	ctx := context.Background()
	s := New()

	sk, err := s.UpsertSkill(ctx, persistence.Skill{Name: "open-mail", Command: "shell:open -a Mail"})
	require.NoError(t, err)

	require.NoError(t, s.RecordSkillUse(ctx, sk.ID))
	got, err := s.GetSkill(ctx, sk.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UseCount)
	require.NotNil(t, got.LastUsedAt)
}
