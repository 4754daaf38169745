package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/taskrelay/internal/config"
	"github.com/user/taskrelay/internal/execlog"
	"github.com/user/taskrelay/internal/linker"
	"github.com/user/taskrelay/internal/relay"
	"github.com/user/taskrelay/internal/state"
	"github.com/user/taskrelay/internal/telegram"
	"github.com/user/taskrelay/internal/types"
)

type recordingSender struct {
	chats []int64
	msgs  []string
}

func (r *recordingSender) SendHTML(chatID int64, text string) error {
	r.chats = append(r.chats, chatID)
	r.msgs = append(r.msgs, text)
	return nil
}

type nopChannel struct{}

func (nopChannel) Send(context.Context, int64, string) (types.MessageHandle, error) {
	return "1", nil
}
func (nopChannel) Edit(context.Context, int64, types.MessageHandle, string) error {
	return nil
}

type fixture struct {
	srv    *Server
	cfg    *config.Store
	tasks  *state.TaskStore
	log    *execlog.Log
	sender *recordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.json")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	store := config.NewStore(cfgPath, cfg)

	tasks := state.NewTaskStore(filepath.Join(dir, "tasks.json"))

	log, err := execlog.Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	lk := linker.New("taskrelay_bot")
	manager := relay.NewManager(log, nopChannel{}, relay.DefaultOptions())
	t.Cleanup(manager.Shutdown)
	commands := telegram.NewCommands(context.Background(), store, lk, tasks, manager)

	sender := &recordingSender{}
	notifier := telegram.NewNotifier(store, sender)

	return &fixture{
		srv:    NewServer(store, lk, commands, sender, tasks, log, notifier),
		cfg:    store,
		tasks:  tasks,
		log:    log,
		sender: sender,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestLinkReturnsDeepLink(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/telegram/link", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp linkResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Error("expected a token")
	}
	want := "https://t.me/taskrelay_bot?start=" + resp.Token
	if resp.DeepLink != want {
		t.Errorf("expected deep link %q, got %q", want, resp.DeepLink)
	}
	if !resp.BotConfigured {
		t.Error("expected bot_configured true")
	}
}

func TestStatusReflectsLink(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/telegram/status", "")
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Linked {
		t.Error("expected unlinked initially")
	}

	if err := f.cfg.Update(func(c *config.Config) {
		c.Telegram.ChatID = 42
		c.Telegram.Username = "tester"
	}); err != nil {
		t.Fatal(err)
	}

	w = f.do(t, http.MethodGet, "/api/telegram/status", "")
	resp = statusResponse{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Linked || resp.ChatID != 42 || resp.Username != "tester" {
		t.Errorf("expected linked status for chat 42, got %+v", resp)
	}
}

func TestUnlinkClearsAccount(t *testing.T) {
	f := newFixture(t)
	if err := f.cfg.Update(func(c *config.Config) {
		c.Telegram.ChatID = 42
		c.Telegram.UserID = 7
		c.Telegram.Username = "tester"
		c.Telegram.NotificationsEnabled = true
	}); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodDelete, "/api/telegram/unlink", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	cfg := f.cfg.Get()
	if cfg.Linked() || cfg.Telegram.Username != "" || cfg.Telegram.NotificationsEnabled {
		t.Errorf("expected cleared link state, got %+v", cfg.Telegram)
	}
}

func TestCreateAndListTasks(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/tasks", `{"title":"Fix login bug"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
	var created types.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != types.TaskStatusInProgress {
		t.Errorf("unexpected created task: %+v", created)
	}

	w = f.do(t, http.MethodGet, "/api/tasks", "")
	var tasks []*types.Task
	if err := json.NewDecoder(w.Body).Decode(&tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Fix login bug" {
		t.Errorf("expected one task, got %+v", tasks)
	}
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/tasks", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestIngestEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := `{"entry_index":0,"kind":"assistant","content":"Hello.\n"}`
	w := f.do(t, http.MethodPost, "/api/tasks/t1/events", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	count, err := f.log.Count(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 stored event, got %d", count)
	}
}

func TestIngestRejectsMissingKind(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/tasks/t1/events", `{"entry_index":0,"content":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestTaskDoneUpdatesStatusAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := &types.Task{ID: "t1", Title: "Ship it", Status: types.TaskStatusInProgress}
	if err := f.tasks.Put(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := f.cfg.Update(func(c *config.Config) {
		c.Telegram.ChatID = 42
		c.Telegram.NotificationsEnabled = true
		c.Telegram.NotifyOnTaskDone = true
		c.Telegram.IncludeSummary = true
	}); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodPost, "/api/tasks/t1/done", `{"summary":"All tests pass"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	updated, err := f.tasks.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != types.TaskStatusDone {
		t.Errorf("expected done status, got %s", updated.Status)
	}

	if len(f.sender.msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.sender.msgs))
	}
	if !strings.Contains(f.sender.msgs[0], "Ship it") || !strings.Contains(f.sender.msgs[0], "All tests pass") {
		t.Errorf("unexpected notification: %q", f.sender.msgs[0])
	}
	if f.sender.chats[0] != 42 {
		t.Errorf("expected notification to chat 42, got %d", f.sender.chats[0])
	}
}

func TestTaskDoneUnknownTaskStillFinishesStream(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/tasks/ghost/done", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(f.sender.msgs) != 0 {
		t.Errorf("expected no notification, got %v", f.sender.msgs)
	}
}

func TestWebhookAcksBadPayload(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/telegram/webhook", "{not json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestWebhookRoutesCommand(t *testing.T) {
	f := newFixture(t)

	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 7, UserName: "tester"},
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      "/help",
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len("/help")},
			},
		},
	}
	body, err := json.Marshal(update)
	if err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodPost, "/telegram/webhook", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(f.sender.msgs) != 1 {
		t.Fatalf("expected 1 response, got %d", len(f.sender.msgs))
	}
	if f.sender.chats[0] != 42 {
		t.Errorf("expected response to chat 42, got %d", f.sender.chats[0])
	}
	if !strings.Contains(f.sender.msgs[0], "/watch") {
		t.Errorf("expected help text, got %q", f.sender.msgs[0])
	}
}
