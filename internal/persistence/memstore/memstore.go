// Package memstore implements persistence.Store entirely in process
// memory, guarded by a single mutex: plain maps keyed by id, copy-on-read
// to keep callers from mutating internal state.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lavis/internal/persistence"
)

type Store struct {
	mu sync.Mutex

	sessions map[string]persistence.Session
	messages map[string][]persistence.Message // sessionKey -> ordered messages
	tasks    map[string]persistence.ScheduledTask
	runLogs  map[string][]persistence.TaskRunLog // taskID -> logs
	nextLog  int64
	skills   map[string]persistence.Skill
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]persistence.Session),
		messages: make(map[string][]persistence.Message),
		tasks:    make(map[string]persistence.ScheduledTask),
		runLogs:  make(map[string][]persistence.TaskRunLog),
		skills:   make(map[string]persistence.Skill),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateSession(ctx context.Context, key string) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}
	now := time.Now()
	sess := persistence.Session{Key: key, CreatedAt: now, UpdatedAt: now, Metadata: map[string]any{}}
	s.sessions[key] = sess
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, key string) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, key string, addMessages, addTokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return persistence.ErrNotFound
	}
	sess.MessageCount += addMessages
	sess.TokenEstimate += addTokens
	sess.UpdatedAt = time.Now()
	s.sessions[key] = sess
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg persistence.Message) (persistence.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	existing := s.messages[msg.SessionKey]
	msg.Position = len(existing)
	s.messages[msg.SessionKey] = append(existing, msg)
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionKey string) ([]persistence.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.messages[sessionKey]
	out := make([]persistence.Message, len(src))
	copy(out, src)
	return out, nil
}

func (s *Store) MarkCompressed(ctx context.Context, messageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = struct{}{}
	}
	for key, msgs := range s.messages {
		for i := range msgs {
			if _, ok := want[msgs[i].ID]; ok {
				msgs[i].IsCompressed = true
			}
		}
		s.messages[key] = msgs
	}
	return nil
}

func (s *Store) DeleteSessionMessages(ctx context.Context, sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionKey)
	return nil
}

func (s *Store) CreateTask(ctx context.Context, task persistence.ScheduledTask) (persistence.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	s.tasks[task.ID] = task
	return task, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (persistence.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return persistence.ScheduledTask{}, persistence.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]persistence.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, task persistence.ScheduledTask) (persistence.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID]
	if !ok {
		return persistence.ScheduledTask{}, persistence.ErrNotFound
	}
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = task
	return task, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	delete(s.runLogs, id)
	return nil
}

func (s *Store) SetTaskRunState(ctx context.Context, id string, status string, ranAt time.Time, incrementRunCount bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return persistence.ErrNotFound
	}
	t.LastRunStatus = status
	t.LastRunAt = &ranAt
	if incrementRunCount {
		t.RunCount++
	}
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	return nil
}

func (s *Store) AppendRunLog(ctx context.Context, log persistence.TaskRunLog) (persistence.TaskRunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLog++
	log.ID = s.nextLog
	s.runLogs[log.TaskID] = append(s.runLogs[log.TaskID], log)
	return log, nil
}

func (s *Store) ListRunLogs(ctx context.Context, taskID string, limit int) ([]persistence.TaskRunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.runLogs[taskID]
	start := 0
	if limit > 0 && len(logs) > limit {
		start = len(logs) - limit
	}
	out := make([]persistence.TaskRunLog, len(logs)-start)
	copy(out, logs[start:])
	return out, nil
}

func (s *Store) PruneRunLogs(ctx context.Context, olderThanDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	for id, logs := range s.runLogs {
		kept := logs[:0]
		for _, l := range logs {
			if l.StartedAt.After(cutoff) {
				kept = append(kept, l)
			}
		}
		s.runLogs[id] = kept
	}
	return nil
}

func (s *Store) UpsertSkill(ctx context.Context, skill persistence.Skill) (persistence.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if skill.ID == "" {
		skill.ID = uuid.NewString()
	}
	s.skills[skill.ID] = skill
	return skill, nil
}

func (s *Store) GetSkill(ctx context.Context, id string) (persistence.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skills[id]
	if !ok {
		return persistence.Skill{}, persistence.ErrNotFound
	}
	return sk, nil
}

func (s *Store) ListSkills(ctx context.Context) ([]persistence.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.Skill, 0, len(s.skills))
	for _, sk := range s.skills {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteSkill(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.skills, id)
	return nil
}

func (s *Store) RecordSkillUse(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skills[id]
	if !ok {
		return persistence.ErrNotFound
	}
	now := time.Now()
	sk.LastUsedAt = &now
	sk.UseCount++
	s.skills[id] = sk
	return nil
}

var _ persistence.Store = (*Store)(nil)
