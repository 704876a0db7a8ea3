package httpapi

import (
	"net/http"
	"strings"

	"lavis/internal/persistence"
)

// skillsHandler serves `GET /api/skills` (list) and `POST /api/skills`
// (create). The two collection-level actions `/api/skills/reload` and
// `/api/skills/categories` look like a trailing path segment, so they are
// served by skillDetailHandler, not here.
func (s *Server) skillsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.skillsSvc.List())
		case http.MethodPost:
			var skill persistence.Skill
			if err := decodeJSON(w, r, &skill); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			saved, err := s.skillsSvc.Create(r.Context(), skill)
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

type executeRequest struct {
	Params map[string]string `json:"params"`
}

// skillDetailHandler serves every `/api/skills/{...}` route beyond the
// bare collection: the two collection-level actions "reload" and
// "categories" (which have no second segment, so they're indistinguishable
// from a bare skill id until looked up), plain {id} get/update/delete, and
// {id}/execute.
func (s *Server) skillDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/skills/"), "/")
		if rest == "" {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}

		if rest == "reload" {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
				return
			}
			if err := s.skillsSvc.Reload(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
			return
		}
		if rest == "categories" {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
				return
			}
			writeJSON(w, http.StatusOK, s.skillsSvc.Categories())
			return
		}

		id, action, hasAction := splitOne(rest)

		if hasAction && action == "execute" {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
				return
			}
			var req executeRequest
			if r.ContentLength != 0 {
				if err := decodeJSON(w, r, &req); err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
			}
			result, err := s.skillsSvc.Execute(r.Context(), id, req.Params)
			if err != nil {
				writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error(), "output": result})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "output": result})
			return
		}
		if hasAction {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			skill, ok := s.skillsSvc.Get(id)
			if !ok {
				writeError(w, http.StatusNotFound, errNotFound)
				return
			}
			writeJSON(w, http.StatusOK, skill)
		case http.MethodPut, http.MethodPatch:
			var skill persistence.Skill
			if err := decodeJSON(w, r, &skill); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			skill.ID = id
			saved, err := s.skillsSvc.Update(r.Context(), skill)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, saved)
		case http.MethodDelete:
			if err := s.skillsSvc.Delete(r.Context(), id); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	}
}
