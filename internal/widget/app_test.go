package widget_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"supportwidget/entity"
	"supportwidget/internal/stubserver"
	"supportwidget/internal/widget"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder keeps the latest snapshot; tests poll it the way the DOM would
// reflect the latest render.
type recorder struct {
	mu   sync.Mutex
	last widget.Snapshot
	has  bool
}

func (r *recorder) Render(s widget.Snapshot) {
	r.mu.Lock()
	r.last = s
	r.has = true
	r.mu.Unlock()
}

func (r *recorder) snapshot() (widget.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.has
}

func waitFor(t *testing.T, rec *recorder, desc string, cond func(widget.Snapshot) bool) widget.Snapshot {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := rec.snapshot(); ok && cond(s) {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	s, _ := rec.snapshot()
	t.Fatalf("timed out waiting for %s; last view %q with %d messages", desc, s.View, len(s.Messages))
	return widget.Snapshot{}
}

func newApp(t *testing.T, apiURL string) (*widget.App, *recorder) {
	t.Helper()

	rec := &recorder{}
	app, err := widget.New(widget.Config{
		ApiURL:      apiURL,
		SiteOrigin:  "http://localhost:3000",
		StoragePath: filepath.Join(t.TempDir(), "profile.json"),
	}, rec, testLogger())
	if err != nil {
		t.Fatalf("widget.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	app.Run(ctx)
	return app, rec
}

func newRunningChat(t *testing.T) (*stubserver.Server, *widget.App, *recorder, string) {
	t.Helper()

	srv := stubserver.New(testLogger())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	app, rec := newApp(t, ts.URL)
	app.Open()
	waitFor(t, rec, "categories", func(s widget.Snapshot) bool {
		return s.View == widget.ViewCategories && !s.CategoriesLoading && len(s.Categories) > 0
	})

	app.SelectCategory("billing")
	snap := waitFor(t, rec, "chat view", func(s widget.Snapshot) bool {
		return s.View == widget.ViewChat
	})

	if len(snap.Messages) != 1 {
		t.Fatalf("expected exactly one synthetic system message, got %d", len(snap.Messages))
	}
	if snap.Messages[0].SenderType != entity.SenderSystem || snap.Messages[0].Content != stubserver.NoAgentsMessage {
		t.Fatalf("unexpected system message: %+v", snap.Messages[0])
	}
	threadID := snap.Messages[0].ThreadID

	// give the realtime attachment a beat before relying on echoes
	time.Sleep(300 * time.Millisecond)
	return srv, app, rec, threadID
}

func TestStartChatWithNoAgents(t *testing.T) {
	newRunningChat(t)
}

func TestAutoAnswerFlow(t *testing.T) {
	srv := stubserver.New(testLogger())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	app, rec := newApp(t, ts.URL)
	app.Open()
	waitFor(t, rec, "categories", func(s widget.Snapshot) bool {
		return s.View == widget.ViewCategories && len(s.Categories) > 0
	})

	app.SelectCategory("hours")
	snap := waitFor(t, rec, "auto answer", func(s widget.Snapshot) bool {
		return s.View == widget.ViewAutoAnswer
	})
	if snap.SelectedCategory.AutoAnswer == "" {
		t.Fatalf("auto-answer view without canned answer")
	}

	app.Back()
	waitFor(t, rec, "back to categories", func(s widget.Snapshot) bool {
		return s.View == widget.ViewCategories
	})

	app.SelectCategory("hours")
	waitFor(t, rec, "auto answer again", func(s widget.Snapshot) bool {
		return s.View == widget.ViewAutoAnswer
	})
	app.TalkToAgent()
	waitFor(t, rec, "chat after talk-to-agent", func(s widget.Snapshot) bool {
		return s.View == widget.ViewChat
	})
}

func TestSendReconcilesOptimisticEcho(t *testing.T) {
	_, app, rec, _ := newRunningChat(t)

	app.Send("hello there")

	// optimistic echo first
	waitFor(t, rec, "optimistic entry", func(s widget.Snapshot) bool {
		for _, m := range s.Messages {
			if m.Content == "hello there" {
				return true
			}
		}
		return false
	})

	// then the authoritative copy replaces it in place
	snap := waitFor(t, rec, "reconciled entry", func(s widget.Snapshot) bool {
		for _, m := range s.Messages {
			if m.Content == "hello there" && !m.IsOptimistic() {
				return true
			}
		}
		return false
	})

	count := 0
	for _, m := range snap.Messages {
		if m.Content == "hello there" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("send duplicated: %d entries", count)
	}
}

func TestUploadSuccessAppendsMediaMessage(t *testing.T) {
	_, app, rec, _ := newRunningChat(t)

	app.Attach("photo.png", []byte("fake-png-bytes"))

	snap := waitFor(t, rec, "media message", func(s widget.Snapshot) bool {
		for _, m := range s.Messages {
			if m.MediaType == entity.MediaImage && strings.Contains(m.MediaURL, "/uploads/") {
				return true
			}
		}
		return false
	})

	for _, m := range snap.Messages {
		if strings.HasPrefix(m.Content, "Uploading ") {
			t.Fatalf("upload placeholder still present: %+v", m)
		}
	}
}

func TestUploadFailureShowsSystemMessage(t *testing.T) {
	_, app, rec, _ := newRunningChat(t)

	app.Attach("script.exe", []byte("nope"))

	snap := waitFor(t, rec, "upload failure notice", func(s widget.Snapshot) bool {
		for _, m := range s.Messages {
			if strings.HasPrefix(m.Content, "Upload failed:") {
				return true
			}
		}
		return false
	})

	for _, m := range snap.Messages {
		if strings.HasPrefix(m.Content, "Uploading ") {
			t.Fatalf("placeholder not removed: %+v", m)
		}
		if strings.HasPrefix(m.Content, "Upload failed:") && m.SenderType != entity.SenderSystem {
			t.Fatalf("failure notice has sender %q", m.SenderType)
		}
	}
}

func TestEndChatEntersEndedState(t *testing.T) {
	_, app, rec, _ := newRunningChat(t)

	app.EndChat()

	snap := waitFor(t, rec, "ended state", func(s widget.Snapshot) bool {
		return s.View == widget.ViewChatEnded
	})

	ended := 0
	for _, m := range snap.Messages {
		if m.Content == "Chat ended" && m.SenderType == entity.SenderSystem {
			ended++
		}
	}
	if ended != 1 {
		t.Fatalf("expected exactly one Chat ended message, got %d", ended)
	}
	if snap.AgentTyping {
		t.Fatalf("typing indicator survives chat end")
	}
}

func TestAgentAssignedUpdatesStatusAndSeen(t *testing.T) {
	srv, app, rec, threadID := newRunningChat(t)

	app.Send("anyone there?")
	waitFor(t, rec, "customer message", func(s widget.Snapshot) bool {
		for _, m := range s.Messages {
			if m.SenderType == entity.SenderCustomer {
				return true
			}
		}
		return false
	})

	srv.Hub().Broadcast(threadID, stubserver.Event{
		Type: "agent:assigned",
		Data: map[string]any{"agent": map[string]any{"name": "Maya"}},
	})

	snap := waitFor(t, rec, "agent status", func(s widget.Snapshot) bool {
		return s.AgentName == "Maya" && s.AgentTyping
	})

	seen := false
	for _, m := range snap.Messages {
		if m.SenderType == entity.SenderCustomer && m.IsSeen {
			seen = true
		}
	}
	if !seen {
		t.Fatalf("customer message not marked seen after assignment")
	}
}

func TestCategoriesFetchFailureIsSilent(t *testing.T) {
	dead := httptest.NewServer(nil)
	url := dead.URL
	dead.Close()

	app, rec := newApp(t, url)

	// the list view still opens; it just stays empty
	app.Open()
	waitFor(t, rec, "categories view", func(s widget.Snapshot) bool {
		return s.View == widget.ViewCategories && !s.CategoriesLoading
	})
	if cats := app.Categories(); len(cats) != 0 {
		t.Fatalf("failed fetch produced categories: %+v", cats)
	}
}

func TestStartFailureOffersRetry(t *testing.T) {
	srv := stubserver.New(testLogger())
	stubRouter := srv.Router()

	// categories load fine; every chat start fails
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/v1/categories" {
			stubRouter.ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(ts.Close)

	app, rec := newApp(t, ts.URL)
	app.Open()
	waitFor(t, rec, "categories", func(s widget.Snapshot) bool {
		return s.View == widget.ViewCategories && len(s.Categories) > 0
	})

	app.SelectCategory("billing")
	snap := waitFor(t, rec, "error view", func(s widget.Snapshot) bool {
		return s.View == widget.ViewError
	})
	if snap.ErrorText == "" {
		t.Fatalf("error view without error text")
	}
	if len(snap.Messages) != 0 {
		t.Fatalf("failed start left %d messages behind", len(snap.Messages))
	}

	// retry re-runs the same category and fails the same way
	app.Retry()
	waitFor(t, rec, "loading after retry", func(s widget.Snapshot) bool {
		return s.View == widget.ViewChatLoading || s.View == widget.ViewError
	})
	waitFor(t, rec, "error view after retry", func(s widget.Snapshot) bool {
		return s.View == widget.ViewError
	})
}

func TestDismissDuringStartStaysHidden(t *testing.T) {
	srv := stubserver.New(testLogger())
	stubRouter := srv.Router()

	// chat start is slow enough for the visitor to change their mind
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/chat/start" {
			time.Sleep(700 * time.Millisecond)
		}
		stubRouter.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	app, rec := newApp(t, ts.URL)
	app.Open()
	waitFor(t, rec, "categories", func(s widget.Snapshot) bool {
		return s.View == widget.ViewCategories && len(s.Categories) > 0
	})

	app.SelectCategory("billing")
	waitFor(t, rec, "loading", func(s widget.Snapshot) bool {
		return s.View == widget.ViewChatLoading
	})

	app.Dismiss()
	waitFor(t, rec, "button view", func(s widget.Snapshot) bool {
		return s.View == widget.ViewButton
	})

	// let the delayed start settle; its result must be discarded
	time.Sleep(1200 * time.Millisecond)

	snap, _ := rec.snapshot()
	if snap.View != widget.ViewButton || len(snap.Messages) != 0 {
		t.Fatalf("late start result resurrected a dismissed widget: view=%q messages=%d",
			snap.View, len(snap.Messages))
	}
}

func TestDismissDropsStaleRealtimeEvents(t *testing.T) {
	srv, app, rec, threadID := newRunningChat(t)

	app.Dismiss()
	waitFor(t, rec, "button view", func(s widget.Snapshot) bool {
		return s.View == widget.ViewButton
	})

	srv.Hub().Broadcast(threadID, stubserver.Event{
		Type: "message:new",
		Data: entity.Message{
			ID:         "late-1",
			ThreadID:   threadID,
			SenderType: entity.SenderAgent,
			Content:    "too late",
			CreatedAt:  time.Now(),
		},
	})

	time.Sleep(200 * time.Millisecond)
	snap, _ := rec.snapshot()
	if snap.View != widget.ViewButton || len(snap.Messages) != 0 {
		t.Fatalf("stale event leaked into the widget: view=%q messages=%d", snap.View, len(snap.Messages))
	}
}
