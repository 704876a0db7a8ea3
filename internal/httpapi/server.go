// Package httpapi exposes the reasoning loop's optional HTTP boundary:
// reasoning, scheduler, and skills endpoints over a single
// net/http.ServeMux with one handler file per resource family. There is
// no multi-tenant or auth concern here — Lavis runs as a single-operator
// desktop agent, so handlers take a request straight to the loop/
// scheduler/skill service without any per-request identity check.
package httpapi

import (
	"context"
	"net/http"
	"sync"

	"lavis/internal/capture"
	"lavis/internal/llm"
	"lavis/internal/memory"
	"lavis/internal/reasoning"
	"lavis/internal/scheduler"
	"lavis/internal/skills"
)

// Server wires the reasoning loop, memory manager, scheduler, and skill
// service onto an HTTP surface.
type Server struct {
	loop      *reasoning.Loop
	mem       *memory.Manager
	sched     *scheduler.Scheduler
	skillsSvc *skills.Service
	capturer  *capture.DedupCapturer
	chat      llm.Provider
	model     string

	mu         sync.Mutex
	cancelCur  context.CancelFunc
	workActive bool
}

// NewServer builds a Server. model is surfaced verbatim by
// GET /api/agent/status; chat is the same provider wired into loop, kept
// separately so status can consult its Available without reaching
// through the loop's internals.
func NewServer(loop *reasoning.Loop, mem *memory.Manager, sched *scheduler.Scheduler, skillsSvc *skills.Service, capturer *capture.DedupCapturer, chat llm.Provider, model string) *Server {
	return &Server{loop: loop, mem: mem, sched: sched, skillsSvc: skillsSvc, capturer: capturer, chat: chat, model: model}
}

// Router builds the complete mux: one mux.HandleFunc per resource family,
// health endpoint first.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/agent/chat", s.agentChatHandler())
	mux.HandleFunc("/api/agent/task", s.agentTaskHandler())
	mux.HandleFunc("/api/agent/stop", s.agentStopHandler())
	mux.HandleFunc("/api/agent/reset", s.agentResetHandler())
	mux.HandleFunc("/api/agent/status", s.agentStatusHandler())
	mux.HandleFunc("/api/agent/screenshot", s.agentScreenshotHandler())
	mux.HandleFunc("/api/agent/history", s.agentHistoryHandler())

	mux.HandleFunc("/api/scheduler/stop", s.schedulerStopHandler())
	mux.HandleFunc("/api/scheduler/tasks", s.schedulerTasksHandler())
	mux.HandleFunc("/api/scheduler/tasks/", s.schedulerTaskDetailHandler())

	mux.HandleFunc("/api/skills", s.skillsHandler())
	mux.HandleFunc("/api/skills/", s.skillDetailHandler())

	return mux
}

// beginWork registers ctx's cancel func as the current unit of work's
// cancellation signal and returns a cleanup to run when the unit of work
// finishes. Cancellation is cooperative: agentStopHandler calls cancelCur
// directly rather than the loop polling a flag.
func (s *Server) beginWork(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancelCur = cancel
	s.workActive = true
	s.mu.Unlock()
	return ctx, func() {
		s.mu.Lock()
		s.cancelCur = nil
		s.workActive = false
		s.mu.Unlock()
		cancel()
	}
}
