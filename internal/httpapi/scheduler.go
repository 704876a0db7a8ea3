package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"lavis/internal/persistence"
)

// schedulerTasksHandler serves `GET /api/scheduler/tasks` (list) and
// `POST /api/scheduler/tasks` (create).
func (s *Server) schedulerTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			tasks, err := s.sched.List(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, tasks)
		case http.MethodPost:
			var task persistence.ScheduledTask
			if err := decodeJSON(w, r, &task); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			saved, err := s.sched.Create(r.Context(), task)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, saved)
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	}
}

// schedulerStopHandler is `POST /api/scheduler/stop`: a control-plane stop
// of the scheduler's cron clock, distinct from /api/agent/stop which
// cancels an in-flight reasoning turn.
func (s *Server) schedulerStopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		s.sched.Stop()
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}

// schedulerTaskDetailHandler serves every `/api/scheduler/tasks/{id}[...]`
// route: plain {id} is get/update/delete; {id}/pause, {id}/resume,
// {id}/start (run-now), and {id}/history are recognized trailing-segment
// actions, dispatched from one closure per resource family rather than a
// full router.
func (s *Server) schedulerTaskDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/scheduler/tasks/")
		id, action, hasAction := splitOne(rest)
		if id == "" {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}

		if hasAction {
			switch action {
			case "pause":
				s.respondTask(w, r, func() (persistence.ScheduledTask, error) { return s.sched.Pause(r.Context(), id) })
			case "resume":
				s.respondTask(w, r, func() (persistence.ScheduledTask, error) { return s.sched.Resume(r.Context(), id) })
			case "start":
				if err := s.sched.RunNow(r.Context(), id); err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
			case "history":
				limit := 50
				if v := r.URL.Query().Get("limit"); v != "" {
					if n, err := strconv.Atoi(v); err == nil && n > 0 {
						limit = n
					}
				}
				logs, err := s.sched.ListLogs(r.Context(), id, limit)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, logs)
			default:
				writeError(w, http.StatusNotFound, errNotFound)
			}
			return
		}

		switch r.Method {
		case http.MethodGet:
			task, err := s.sched.Get(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case http.MethodPut, http.MethodPatch:
			var task persistence.ScheduledTask
			if err := decodeJSON(w, r, &task); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			task.ID = id
			saved, err := s.sched.Update(r.Context(), task)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, saved)
		case http.MethodDelete:
			if err := s.sched.Delete(r.Context(), id); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	}
}

func (s *Server) respondTask(w http.ResponseWriter, r *http.Request, fn func() (persistence.ScheduledTask, error)) {
	task, err := fn()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// splitOne splits "id/action" into its two parts; a bare "id" (no slash)
// returns hasAction=false.
func splitOne(path string) (id string, action string, hasAction bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", "", false
	}
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 1 {
		return parts[0], "", false
	}
	return parts[0], parts[1], true
}
