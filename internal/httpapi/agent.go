package httpapi

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"time"

	"golang.org/x/image/draw"

	"lavis/internal/capture"
	"lavis/internal/llm"
)

const thumbnailMaxWidth = 320

type chatRequest struct {
	Message string `json:"message"`
}

type taskRequest struct {
	Goal string `json:"goal"`
}

type runResponse struct {
	Success    bool   `json:"success"`
	Response   string `json:"response"`
	DurationMS int64  `json:"duration_ms"`
}

// agentChatHandler is `POST /api/agent/chat { message }`: runs the
// reasoning loop under the configured step cap.
func (s *Server) agentChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		var req chatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.runAndRespond(w, r, req.Message, 0)
	}
}

// agentTaskHandler is `POST /api/agent/task { goal }`: runs the
// reasoning loop with no practical step cap, implemented as a very large
// cap rather than a literal unbounded loop, so a runaway goal still
// eventually yields a "max iterations reached" response instead of
// spinning forever.
func (s *Server) agentTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		var req taskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		const noCap = 1 << 20
		s.runAndRespond(w, r, req.Goal, noCap)
	}
}

func (s *Server) runAndRespond(w http.ResponseWriter, r *http.Request, text string, stepCap int) {
	ctx, done := s.beginWork(r.Context())
	defer done()

	start := time.Now()
	result, err := s.loop.RunWithCap(ctx, text, stepCap)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		writeJSON(w, http.StatusOK, runResponse{Success: false, Response: err.Error(), DurationMS: elapsed})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Success: true, Response: result, DurationMS: elapsed})
}

// agentStopHandler is `POST /api/agent/stop`: signals cancellation to the
// current unit of work, if any.
func (s *Server) agentStopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		s.mu.Lock()
		cancel := s.cancelCur
		active := s.workActive
		s.mu.Unlock()

		if !active || cancel == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
			return
		}
		cancel()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// agentResetHandler is `POST /api/agent/reset`: clears memory and
// allocates a new session.
func (s *Server) agentResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		key, err := s.mem.ResetSession(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session": key})
	}
}

type statusResponse struct {
	Available         bool   `json:"available"`
	Model             string `json:"model"`
	OrchestratorState string `json:"orchestrator_state"`
}

// agentStatusHandler is `GET /api/agent/status`.
func (s *Server) agentStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		available := true
		if avail, ok := s.chat.(llm.Available); ok {
			available = avail.Available()
		}
		s.mu.Lock()
		active := s.workActive
		s.mu.Unlock()
		state := "idle"
		if active {
			state = "running"
		}
		writeJSON(w, http.StatusOK, statusResponse{Available: available, Model: s.model, OrchestratorState: state})
	}
}

type screenshotResponse struct {
	Success bool   `json:"success"`
	Image   string `json:"image,omitempty"`
	Size    struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"size"`
}

// agentScreenshotHandler is `GET /api/agent/screenshot?thumbnail=bool`.
func (s *Server) agentScreenshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		res, err := s.capturer.Capture(r.Context(), capture.CaptureOptions{})
		if err != nil {
			writeJSON(w, http.StatusOK, screenshotResponse{Success: false})
			return
		}

		data := res.Frame.Data
		width, height := res.Frame.Width, res.Frame.Height
		if r.URL.Query().Get("thumbnail") == "true" {
			if thumb, tw, th, terr := toThumbnail(data); terr == nil {
				data, width, height = thumb, tw, th
			}
		}

		resp := screenshotResponse{Success: true, Image: base64.StdEncoding.EncodeToString(data)}
		resp.Size.Width = width
		resp.Size.Height = height
		writeJSON(w, http.StatusOK, resp)
	}
}

// toThumbnail downscales a PNG/JPEG-encoded frame to thumbnailMaxWidth,
// preserving aspect ratio, the same draw.BiLinear downscale dHash already
// uses for its perceptual-hash grid.
func toThumbnail(data []byte) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= thumbnailMaxWidth {
		return data, w, h, nil
	}
	scale := float64(thumbnailMaxWidth) / float64(w)
	tw := thumbnailMaxWidth
	th := int(float64(h) * scale)
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), tw, th, nil
}

type historyMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	HasImage bool   `json:"has_image"`
}

// agentHistoryHandler serves `GET /api/agent/history` and
// `DELETE /api/agent/history`.
func (s *Server) agentHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			msgs := s.mem.Messages()
			out := make([]historyMessage, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, historyMessage{Role: m.Role, Content: m.Content, HasImage: m.Image != nil})
			}
			writeJSON(w, http.StatusOK, out)
		case http.MethodDelete:
			s.mem.ClearWindow()
			writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	}
}
