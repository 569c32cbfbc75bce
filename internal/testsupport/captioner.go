package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// CaptionServer is a fake captioning service. Captions are keyed by the
// uploaded file name; unknown names receive an empty result.
type CaptionServer struct {
	*httptest.Server

	mu       sync.Mutex
	captions map[string]string
	failOn   map[string]int
	uploads  []string
	health   string
}

// NewCaptionServer starts a fake service and registers cleanup.
func NewCaptionServer(t testing.TB, captions map[string]string) *CaptionServer {
	t.Helper()

	cs := &CaptionServer{
		captions: captions,
		failOn:   map[string]int{},
		health:   "ok",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		status := cs.health
		cs.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": status, "model_id": "fake", "device": "cpu"})
	})
	mux.HandleFunc("POST /caption", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		task := r.FormValue("task")

		cs.mu.Lock()
		cs.uploads = append(cs.uploads, header.Filename)
		status, fail := cs.failOn[header.Filename]
		text := cs.captions[header.Filename]
		cs.mu.Unlock()

		if fail {
			writeJSON(w, status, map[string]string{"detail": "caption failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"model_id": "fake",
			"task":     task,
			"result":   map[string]string{task: text},
		})
	})
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

// FailOn makes uploads of name answer with status.
func (cs *CaptionServer) FailOn(name string, status int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.failOn[name] = status
}

// SetHealth changes the status reported by /health.
func (cs *CaptionServer) SetHealth(status string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.health = status
}

// Uploads returns the file names received so far, in arrival order.
func (cs *CaptionServer) Uploads() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.uploads...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
