package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"supportwidget/entity"
	"supportwidget/internal/lib/sl"
)

// Client talks to the support backend's HTTP API. It is a plain
// request/response consumer: no retries, no caching, callers decide what a
// failure means for the view.
type Client struct {
	BaseURL string
	Log     *slog.Logger

	http *http.Client
}

func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		Log:     log.With(sl.Module("backend client")),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchCategories lists the support topics.
func (c *Client) FetchCategories(ctx context.Context) ([]entity.Category, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/categories", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out entity.CategoriesResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// StartChat opens a new thread for the resolved identity.
func (c *Client) StartChat(ctx context.Context, body entity.ChatStartRequest) (*entity.ChatStartResponse, error) {
	req, err := c.jsonRequest(ctx, http.MethodPost, c.BaseURL+"/api/v1/chat/start", body)
	if err != nil {
		return nil, err
	}

	var out entity.ChatStartResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	c.Log.With(
		slog.String("thread_id", out.ThreadID),
		sl.Secret("ws_token", out.WSToken),
		slog.String("agent_status", out.AgentStatus),
	).Debug("chat started")

	return &out, nil
}

// LoadMessages fetches the persisted history of a thread.
func (c *Client) LoadMessages(ctx context.Context, threadID, token string) ([]entity.Message, error) {
	url := fmt.Sprintf("%s/api/v1/chat/%s/messages", c.BaseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var out entity.MessagesResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PostMessage submits a customer message to the thread.
func (c *Client) PostMessage(ctx context.Context, threadID string, body entity.PostMessageRequest) error {
	url := fmt.Sprintf("%s/api/v1/chat/%s/message", c.BaseURL, threadID)
	req, err := c.jsonRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Upload sends a file as multipart form data and returns the stored media
// reference. A response carrying Error instead of URL is returned to the
// caller as data, not as a transport error.
func (c *Client) Upload(ctx context.Context, threadID, filename string, file io.Reader) (*entity.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	if err := mw.WriteField("thread_id", threadID); err != nil {
		return nil, fmt.Errorf("failed to write thread_id field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// rejections carry their reason in the body regardless of status code
	var out entity.UploadResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if decodeErr == nil && out.Error != "" {
		return &out, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	return &out, nil
}

// CloseChat asks the backend to end the thread. The chat-ended transition is
// driven by the realtime chat:closed event, never by this ack.
func (c *Client) CloseChat(ctx context.Context, threadID string) error {
	url := fmt.Sprintf("%s/api/v1/chat/%s/close", c.BaseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) jsonRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
