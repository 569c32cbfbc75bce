package review

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"captionkit/internal/dataset"
	"captionkit/internal/logging"
)

const maxEditBody = 1 << 20

// State is the view of one record returned by the API.
type State struct {
	Index     int             `json:"index"`
	Total     int             `json:"total"`
	Progress  string          `json:"progress"`
	Record    *dataset.Record `json:"record"`
	ImagePath string          `json:"image_path"`
}

// SessionInfo describes the session as a whole.
type SessionInfo struct {
	Name       string `json:"name"`
	Concept    string `json:"concept,omitempty"`
	DatasetDir string `json:"dataset_dir"`
	Total      int    `json:"total"`
}

// EditRequest saves a caption and optionally moves to another record.
type EditRequest struct {
	FinalCaption string `json:"final_caption"`
	// Move is one of "next", "prev", "first", "last", or "" to stay.
	Move string `json:"move,omitempty"`
}

// Handler returns the HTTP API of the session.
func (s *Session) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/records", s.handleRecord)
	mux.HandleFunc("PUT /api/records/{index}", s.handleEdit)
	mux.HandleFunc("GET /api/images/{index}", s.handleImage)
	return mux
}

func (s *Session) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, SessionInfo{
		Name:       s.opts.Name,
		Concept:    s.opts.Concept,
		DatasetDir: s.opts.DatasetDir,
		Total:      s.total(),
	})
}

func (s *Session) handleRecord(w http.ResponseWriter, r *http.Request) {
	idx := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("index")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid index")
			return
		}
		idx = parsed
	}
	s.mu.Lock()
	state := s.stateLocked(idx)
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Session) handleEdit(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEditBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body")
		return
	}
	var req EditRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	move := strings.ToLower(strings.TrimSpace(req.Move))
	switch move {
	case "", "next", "prev", "first", "last":
	default:
		s.writeError(w, http.StatusBadRequest, "invalid move")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.records)
	if total == 0 {
		s.writeError(w, http.StatusNotFound, "no records")
		return
	}

	idx = ClampIndex(idx, total)
	s.records[idx].FinalCaption = strings.TrimSpace(req.FinalCaption)
	if err := dataset.SaveRecords(s.opts.CaptionsPath, s.opts.CSVPath, s.records); err != nil {
		s.logger.Error("failed to save captions", logging.Error(err), logging.Int("index", idx))
		s.writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	s.logger.Debug("caption saved", logging.Int("index", idx), logging.String(logging.FieldImage, s.records[idx].Image))

	switch move {
	case "next":
		idx = ClampIndex(idx+1, total)
	case "prev":
		idx = ClampIndex(idx-1, total)
	case "first":
		idx = 0
	case "last":
		idx = total - 1
	}
	s.writeJSON(w, http.StatusOK, s.stateLocked(idx))
}

func (s *Session) handleImage(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	s.mu.Lock()
	state := s.stateLocked(idx)
	s.mu.Unlock()
	if state.ImagePath == "" {
		s.writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if _, err := os.Stat(state.ImagePath); errors.Is(err, os.ErrNotExist) {
		s.writeError(w, http.StatusNotFound, "image not found")
		return
	}
	http.ServeFile(w, r, state.ImagePath)
}

func (s *Session) stateLocked(idx int) State {
	total := len(s.records)
	if total == 0 {
		return State{Progress: ProgressText(0, 0)}
	}
	idx = ClampIndex(idx, total)
	record := s.records[idx]
	return State{
		Index:     idx,
		Total:     total,
		Progress:  ProgressText(idx, total),
		Record:    &record,
		ImagePath: DisplayPath(record.Image, s.opts.DatasetDir),
	}
}

func (s *Session) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Session) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
