package backend_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"supportwidget/entity"
	"supportwidget/internal/service/backend"
	"supportwidget/internal/stubserver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startChat(t *testing.T, c *backend.Client) *entity.ChatStartResponse {
	t.Helper()
	resp, err := c.StartChat(context.Background(), entity.ChatStartRequest{
		Username:   "Guest",
		CategoryID: "billing",
		DeviceHash: "abc123",
		User:       entity.WidgetUser{ID: "guest_m1abc_x9y8z7q"},
	})
	if err != nil {
		t.Fatalf("StartChat failed: %v", err)
	}
	return resp
}

func TestChatRoundTrip(t *testing.T) {
	ts := httptest.NewServer(stubserver.New(testLogger()).Router())
	defer ts.Close()
	c := backend.NewClient(ts.URL, testLogger())
	ctx := context.Background()

	resp := startChat(t, c)
	if resp.ThreadID == "" || resp.WSToken == "" {
		t.Fatalf("incomplete start response: %+v", resp)
	}
	if resp.AgentStatus != entity.AgentStatusNoAgents {
		t.Fatalf("agent_status = %q", resp.AgentStatus)
	}

	if err := c.PostMessage(ctx, resp.ThreadID, entity.PostMessageRequest{Content: "hello"}); err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}

	msgs, err := c.LoadMessages(ctx, resp.ThreadID, resp.WSToken)
	if err != nil {
		t.Fatalf("LoadMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	if _, err := c.LoadMessages(ctx, resp.ThreadID, "wrong-token"); err == nil {
		t.Fatalf("LoadMessages accepted a bad token")
	}

	if err := c.CloseChat(ctx, resp.ThreadID); err != nil {
		t.Fatalf("CloseChat failed: %v", err)
	}
}

func TestUpload(t *testing.T) {
	ts := httptest.NewServer(stubserver.New(testLogger()).Router())
	defer ts.Close()
	c := backend.NewClient(ts.URL, testLogger())
	ctx := context.Background()

	resp := startChat(t, c)

	up, err := c.Upload(ctx, resp.ThreadID, "photo.png", bytes.NewReader([]byte("fake-png")))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if up.Error != "" {
		t.Fatalf("upload rejected: %s", up.Error)
	}
	if up.MediaType != entity.MediaImage {
		t.Fatalf("media_type = %q, want image", up.MediaType)
	}
	if !strings.Contains(up.URL, "/uploads/") {
		t.Fatalf("unexpected url %q", up.URL)
	}

	bad, err := c.Upload(ctx, resp.ThreadID, "script.exe", bytes.NewReader([]byte("nope")))
	if err != nil {
		t.Fatalf("Upload transport failed: %v", err)
	}
	if bad.Error == "" || bad.URL != "" {
		t.Fatalf("unsupported type accepted: %+v", bad)
	}
}

func TestUploadReasonSurvivesFailureStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"file too large"}`))
	}))
	defer ts.Close()

	c := backend.NewClient(ts.URL, testLogger())
	up, err := c.Upload(context.Background(), "t1", "big.png", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if up.Error != "file too large" || up.URL != "" {
		t.Fatalf("server reason lost: %+v", up)
	}
}

func TestUploadFailureStatusWithoutBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := backend.NewClient(ts.URL, testLogger())
	if _, err := c.Upload(context.Background(), "t1", "a.png", bytes.NewReader([]byte("x"))); err == nil {
		t.Fatalf("bare failure status not reported as an error")
	}
}
