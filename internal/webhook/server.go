// internal/webhook/server.go
package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/taskrelay/internal/config"
	"github.com/user/taskrelay/internal/execlog"
	"github.com/user/taskrelay/internal/linker"
	"github.com/user/taskrelay/internal/telegram"
	"github.com/user/taskrelay/internal/types"
)

// Server is a lightweight HTTP handler for the relay's API surface: the
// Telegram webhook, account linking, and the execution engine's event ingest.
type Server struct {
	cfg      *config.Store
	linker   *linker.Linker
	commands *telegram.Commands
	sender   telegram.Sender
	tasks    types.TaskStore
	log      *execlog.Log
	notifier *telegram.Notifier
	mux      *http.ServeMux
}

// NewServer creates a new Server. sender and notifier may be nil when no bot
// token is configured; the webhook endpoint then acknowledges updates without
// responding.
func NewServer(cfg *config.Store, lk *linker.Linker, commands *telegram.Commands, sender telegram.Sender, tasks types.TaskStore, log *execlog.Log, notifier *telegram.Notifier) *Server {
	s := &Server{
		cfg:      cfg,
		linker:   lk,
		commands: commands,
		sender:   sender,
		tasks:    tasks,
		log:      log,
		notifier: notifier,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /telegram/webhook", s.handleTelegramWebhook)
	s.mux.HandleFunc("GET /api/telegram/link", s.handleLink)
	s.mux.HandleFunc("DELETE /api/telegram/unlink", s.handleUnlink)
	s.mux.HandleFunc("GET /api/telegram/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("POST /api/tasks/", s.handleTaskSubresource)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleTelegramWebhook processes a Telegram update. It always returns 200:
// erroring back at Telegram only makes it redeliver the same update.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("telegram webhook: bad update payload", "error", err)
		s.ack(w)
		return
	}

	if update.Message == nil || s.commands == nil {
		s.ack(w)
		return
	}

	response := s.commands.Handle(r.Context(), update.Message)
	if response != "" && s.sender != nil {
		if err := s.sender.SendHTML(update.Message.Chat.ID, response); err != nil {
			slog.Warn("telegram webhook: send response failed", "chat_id", update.Message.Chat.ID, "error", err)
		}
	}
	s.ack(w)
}

func (s *Server) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

type linkResponse struct {
	Token         string `json:"token"`
	DeepLink      string `json:"deep_link"`
	BotConfigured bool   `json:"bot_configured"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	token, deepLink := s.linker.Generate()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(linkResponse{
		Token:         string(token),
		DeepLink:      deepLink,
		BotConfigured: s.sender != nil,
	})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Update(func(c *config.Config) {
		c.Telegram.ChatID = 0
		c.Telegram.UserID = 0
		c.Telegram.Username = ""
		c.Telegram.NotificationsEnabled = false
	})
	if err != nil {
		slog.Error("unlink failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusResponse struct {
	Linked               bool   `json:"linked"`
	BotConfigured        bool   `json:"bot_configured"`
	ChatID               int64  `json:"chat_id,omitempty"`
	Username             string `json:"username,omitempty"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	NotifyOnTaskDone     bool   `json:"notify_on_task_done"`
	IncludeSummary       bool   `json:"include_llm_summary"`
	StreamEnabled        bool   `json:"stream_enabled"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		Linked:               cfg.Linked(),
		BotConfigured:        s.sender != nil,
		ChatID:               cfg.Telegram.ChatID,
		Username:             cfg.Telegram.Username,
		NotificationsEnabled: cfg.Telegram.NotificationsEnabled,
		NotifyOnTaskDone:     cfg.Telegram.NotifyOnTaskDone,
		IncludeSummary:       cfg.Telegram.IncludeSummary,
		StreamEnabled:        cfg.Telegram.StreamEnabled,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		slog.Error("list tasks failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []*types.Task{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tasks)
}

// createTaskRequest is the JSON body for POST /api/tasks.
type createTaskRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, `{"error":"title is required"}`, http.StatusBadRequest)
		return
	}

	task := &types.Task{
		ID:          types.TaskID(req.ID),
		Title:       req.Title,
		Description: req.Description,
		Status:      types.TaskStatusInProgress,
	}
	if task.ID == "" {
		task.ID = types.NewTaskID()
	}
	if err := s.tasks.Put(r.Context(), task); err != nil {
		slog.Error("create task failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(task)
}

func (s *Server) handleTaskSubresource(w http.ResponseWriter, r *http.Request) {
	// Path: /api/tasks/{id}/events or /api/tasks/{id}/done
	path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	taskID := types.TaskID(parts[0])

	switch parts[1] {
	case "events":
		s.handleIngestEvent(w, r, taskID)
	case "done":
		s.handleTaskDone(w, r, taskID)
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

// ingestRequest is the JSON body for POST /api/tasks/{id}/events, one entry
// from the execution engine's log.
type ingestRequest struct {
	EntryIndex int64             `json:"entry_index"`
	Kind       string            `json:"kind"`
	Content    string            `json:"content"`
	Action     *types.ToolAction `json:"action,omitempty"`
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request, taskID types.TaskID) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		http.Error(w, `{"error":"kind is required"}`, http.StatusBadRequest)
		return
	}
	if req.EntryIndex < 0 {
		http.Error(w, `{"error":"entry_index must not be negative"}`, http.StatusBadRequest)
		return
	}

	ev := &types.ExecutionEvent{
		TaskID:     taskID,
		EntryIndex: req.EntryIndex,
		Kind:       types.EventKind(req.Kind),
		Content:    req.Content,
		Action:     req.Action,
	}
	if err := s.log.Append(r.Context(), ev); err != nil {
		slog.Error("ingest event failed", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"id": string(ev.ID)})
}

// doneRequest is the optional JSON body for POST /api/tasks/{id}/done.
type doneRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) handleTaskDone(w http.ResponseWriter, r *http.Request, taskID types.TaskID) {
	var req doneRequest
	// Body is optional; ignore decode errors from an empty body.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.log.Finish(r.Context(), taskID); err != nil {
		slog.Error("finish stream failed", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	task, err := s.tasks.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			s.ack(w)
			return
		}
		slog.Error("load task failed", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	task.Status = types.TaskStatusDone
	if err := s.tasks.Put(r.Context(), task); err != nil {
		slog.Error("update task failed", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	if s.notifier != nil {
		s.notifier.TaskDone(task, req.Summary)
	}
	s.ack(w)
}
