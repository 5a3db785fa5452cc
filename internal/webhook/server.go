// internal/webhook/server.go
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/deskhand/internal/email"
	"github.com/user/deskhand/internal/state"
	"github.com/user/deskhand/internal/taskfile"
	"github.com/user/deskhand/internal/types"
)

const maxBodyBytes = 1 << 20

// Inbox accepts pushed emails.
type Inbox interface {
	Push(item types.EmailItem) (bool, error)
}

// TaskReader lists and reads vault entries.
type TaskReader interface {
	List(dir string) ([]string, error)
	ReadFrom(dir, name string) ([]byte, error)
}

// Sender sends a message through a named channel.
type Sender interface {
	Send(ctx context.Context, channel, target, text string) types.SendResult
}

// Server is a lightweight HTTP handler for the ingest and API endpoints.
type Server struct {
	inbox  Inbox
	tasks  TaskReader
	sender Sender
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates a new Server. Any dependency may be nil, which turns the
// matching endpoints into 503 responses.
func NewServer(inbox Inbox, tasks TaskReader, sender Sender, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		inbox:  inbox,
		tasks:  tasks,
		sender: sender,
		logger: logger.With("component", "webhook"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /ingest/email", s.handleIngestEmail)
	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/send", s.handleSend)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestRequest is the JSON body for POST /ingest/email.
type ingestRequest struct {
	ID         string    `json:"id"`
	From       string    `json:"sender"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	Body       string    `json:"body"`
	HTML       string    `json:"html"`
	ReceivedAt time.Time `json:"received_at"`
}

func (s *Server) handleIngestEmail(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		writeError(w, http.StatusServiceUnavailable, "email ingest not configured")
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	body := req.Body
	if body == "" && req.HTML != "" {
		md, err := email.HTMLToMarkdown(req.HTML)
		if err != nil {
			s.logger.Warn("html conversion failed", "id", req.ID, "error", err)
		} else {
			body = md
		}
	}

	queued, err := s.inbox.Push(types.EmailItem{
		ID:         req.ID,
		From:       req.From,
		Subject:    req.Subject,
		Snippet:    req.Snippet,
		Body:       body,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("email ingested", "id", req.ID, "queued", queued)
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

type taskSummary struct {
	Name     string         `json:"name"`
	Type     types.TaskType `json:"type"`
	Source   string         `json:"source,omitempty"`
	Priority types.Priority `json:"priority,omitempty"`
	Received *time.Time     `json:"received,omitempty"`
}

var statusDirs = map[string]string{
	"":        state.DirPending,
	"pending": state.DirPending,
	"done":    state.DirDone,
	"failed":  state.DirFailed,
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "vault not configured")
		return
	}
	dir, ok := statusDirs[r.URL.Query().Get("status")]
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be pending, done or failed")
		return
	}
	names, err := s.tasks.List(dir)
	if err != nil {
		s.logger.Error("list tasks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]taskSummary, 0, len(names))
	for _, name := range names {
		out = append(out, s.summarize(dir, name))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) summarize(dir, name string) taskSummary {
	sum := taskSummary{Name: name, Type: types.TaskUnknown}
	data, err := s.tasks.ReadFrom(dir, name)
	if err != nil {
		s.logger.Warn("read task failed", "file", name, "error", err)
		return sum
	}
	task, err := taskfile.Parse(data)
	if err != nil {
		sum.Type = taskfile.SniffType(data)
		return sum
	}
	sum.Type = task.Type
	sum.Source = task.Source
	sum.Priority = task.Priority
	if !task.Received.IsZero() {
		sum.Received = &task.Received
	}
	return sum
}

// sendRequest is the JSON body for POST /api/send.
type sendRequest struct {
	Channel string `json:"channel"`
	Target  string `json:"target"`
	Text    string `json:"text"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "messaging not configured")
		return
	}
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Channel == "" || req.Target == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "channel, target and text are required")
		return
	}

	res := s.sender.Send(r.Context(), req.Channel, req.Target, req.Text)
	if !res.Success {
		s.logger.Warn("send failed", "channel", req.Channel, "error", res.Error)
	}
	writeJSON(w, http.StatusOK, res)
}
