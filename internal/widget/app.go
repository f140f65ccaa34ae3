package widget

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"supportwidget/entity"
	"supportwidget/internal/identity"
	"supportwidget/internal/lib/sl"
	"supportwidget/internal/service/backend"
	"supportwidget/internal/storage"
	"supportwidget/internal/store/category"
	"supportwidget/internal/store/conversation"
	"supportwidget/internal/ws"
)

const (
	PositionBottomRight = "bottom-right"
	PositionBottomLeft  = "bottom-left"
)

const startErrorText = "Failed to connect. Please try again."

// Config is the single initialization object supplied by the host.
type Config struct {
	ApiURL      string `validate:"required"`
	Username    string
	User        entity.WidgetUser
	Position    string
	SiteOrigin  string
	StoragePath string
}

// App is the widget: one explicit object created by New, no ambient global
// state. All mutations happen on its event-loop goroutine; user intents,
// network completions, realtime frames and presence timers are events
// processed in arrival order.
type App struct {
	cfg      Config
	log      *slog.Logger
	renderer Renderer

	backend      *backend.Client
	categories   *category.Store
	conversation *conversation.Store
	presence     *simulator

	identity   entity.GuestIdentity
	deviceHash string

	events chan event
	done   chan struct{}

	// loop-owned state below; never touched outside the loop goroutine
	view      View
	selected  entity.Category
	agentName string
	typing    bool
	errorText string
	adapter   *ws.Adapter
	gen       uint64
}

// New initializes the widget: resolves the guest identity once, derives the
// device fingerprint and wires the stores. The renderer may be nil for
// headless use.
func New(cfg Config, renderer Renderer, log *slog.Logger) (*App, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid widget config: %w", err)
	}
	if cfg.Position != PositionBottomLeft {
		cfg.Position = PositionBottomRight
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = ".support-widget.json"
	}

	store, err := storage.New(cfg.StoragePath, log)
	if err != nil {
		return nil, err
	}

	resolver := identity.NewResolver(store, log)
	resolved, err := resolver.Resolve(cfg.User)
	if err != nil {
		return nil, err
	}
	deviceHash, err := resolver.DeviceHash(identity.DetectEnvironment())
	if err != nil {
		return nil, err
	}

	client := backend.NewClient(cfg.ApiURL, log)

	a := &App{
		cfg:          cfg,
		log:          log.With(sl.Module("widget")),
		renderer:     renderer,
		backend:      client,
		categories:   category.NewStore(client, log),
		conversation: conversation.NewStore(log),
		identity:     resolved,
		deviceHash:   deviceHash,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
		view:         ViewButton,
	}
	a.presence = newSimulator(func(e evPresence) { a.post(e) })

	return a, nil
}

// Identity returns the finalized guest identity.
func (a *App) Identity() entity.GuestIdentity { return a.identity }

// DeviceHash returns the derived device fingerprint.
func (a *App) DeviceHash() string { return a.deviceHash }

// Categories returns the cached topic list (read-only view for hosts).
func (a *App) Categories() []entity.Category { return a.categories.Categories() }

// Run starts the event loop and the initial category fetch. It returns
// immediately; the loop stops when ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	go a.loop(ctx)
	go func() {
		a.categories.Fetch(ctx)
		a.post(evCategoriesSettled{})
	}()
	a.log.Info("widget initialized",
		slog.String("guest_id", a.identity.ID),
		slog.String("device_hash", a.deviceHash),
		slog.String("position", a.cfg.Position),
	)
}

// User intents. Each is fire-and-forget: the effect shows up through the
// renderer once the loop has processed it.

func (a *App) Open()                    { a.post(evOpen{}) }
func (a *App) Dismiss()                 { a.post(evClose{}) }
func (a *App) SelectCategory(id string) { a.post(evSelect{categoryID: id}) }
func (a *App) Back()                    { a.post(evBack{}) }
func (a *App) TalkToAgent()             { a.post(evTalk{}) }
func (a *App) Retry()                   { a.post(evRetry{}) }
func (a *App) Send(content string)      { a.post(evSend{content: content}) }
func (a *App) EndChat()                 { a.post(evEndChat{}) }
func (a *App) Attach(name string, data []byte) {
	a.post(evAttach{filename: name, data: data})
}

func (a *App) post(e event) {
	select {
	case a.events <- e:
	case <-a.done:
	}
}

func (a *App) loop(ctx context.Context) {
	defer func() {
		a.teardownSession()
		close(a.done)
	}()

	a.render()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.events:
			a.handle(ctx, e)
			a.render()
		}
	}
}

func (a *App) handle(ctx context.Context, e event) {
	switch e := e.(type) {
	case evOpen:
		if a.view == ViewButton {
			a.view = ViewCategories
		}

	case evClose:
		// never abandon an active realtime connection silently, and
		// invalidate any start sequence still in flight
		a.teardownSession()
		a.conversation.Clear()
		a.gen++
		a.view = ViewButton

	case evCategoriesSettled:
		// loading flag cleared by the store; re-render only

	case evSelect:
		if a.view != ViewCategories {
			return
		}
		cat, ok := a.categories.Find(e.categoryID)
		if !ok {
			return
		}
		a.selected = cat
		if cat.AutoAnswer != "" {
			a.view = ViewAutoAnswer
			return
		}
		a.startChat(ctx, cat)

	case evBack:
		if a.view == ViewAutoAnswer {
			a.view = ViewCategories
		}

	case evTalk:
		if a.view == ViewAutoAnswer {
			a.startChat(ctx, a.selected)
		}

	case evRetry:
		if a.view == ViewError {
			a.startChat(ctx, a.selected)
		}

	case evStartResult:
		a.handleStartResult(ctx, e)

	case evConnected:
		a.handleConnected(ctx, e)

	case evRealtime:
		a.handleRealtime(e)

	case evSend:
		a.handleSend(ctx, e)

	case evSent:
		if e.gen != a.gen {
			return
		}
		// richer status already on screen once a real agent is assigned
		if a.agentName == "" {
			a.presence.Trigger(a.conversation.ThreadID())
		}

	case evAttach:
		a.handleAttach(ctx, e)

	case evUploadResult:
		a.handleUploadResult(ctx, e)

	case evEndChat:
		if a.view != ViewChat {
			return
		}
		threadID := a.conversation.ThreadID()
		go func() {
			if err := a.backend.CloseChat(ctx, threadID); err != nil {
				a.log.Error("failed to close chat", sl.Err(err))
			}
		}()
		// the ended transition is driven by the chat:closed event only

	case evPresence:
		a.handlePresence(e)
	}
}

// startChat tears down the old session, requests a thread, loads history,
// then attaches realtime.
func (a *App) startChat(ctx context.Context, cat entity.Category) {
	a.teardownSession()
	a.conversation.Clear()
	a.gen++
	gen := a.gen
	a.view = ViewChatLoading
	a.errorText = ""
	a.agentName = ""
	a.typing = false

	req := entity.ChatStartRequest{
		Username:   a.username(),
		SiteOrigin: a.cfg.SiteOrigin,
		CategoryID: cat.ID,
		DeviceHash: a.deviceHash,
		User:       a.requestUser(),
	}

	go func() {
		resp, err := a.backend.StartChat(ctx, req)
		if err != nil {
			a.post(evStartResult{gen: gen, category: cat, err: err})
			return
		}

		history, err := a.backend.LoadMessages(ctx, resp.ThreadID, resp.WSToken)
		if err != nil {
			// history is best-effort; the chat still opens
			a.log.Error("failed to load history", sl.Err(err))
		}
		a.post(evStartResult{gen: gen, category: cat, resp: resp, history: history})
	}()
}

func (a *App) handleStartResult(ctx context.Context, e evStartResult) {
	if e.gen != a.gen {
		return
	}

	if e.err != nil {
		a.log.Error("failed to start chat", sl.Err(e.err))
		a.view = ViewError
		a.errorText = startErrorText
		return
	}

	a.conversation.StartSession(e.resp.ThreadID, e.resp.WSToken)
	a.conversation.MergeHistory(e.history)

	if e.resp.AgentStatus == entity.AgentStatusNoAgents && a.conversation.Len() == 0 {
		a.conversation.AppendSystem(entity.NewSystem("system-1", e.resp.ThreadID, e.resp.Message))
	}

	a.view = ViewChat

	gen := a.gen
	go func() {
		adapter, err := ws.Connect(ctx, a.cfg.ApiURL, e.resp.WSToken, a.log)
		a.post(evConnected{gen: gen, adapter: adapter, err: err})
	}()
}

func (a *App) handleConnected(ctx context.Context, e evConnected) {
	if e.gen != a.gen {
		if e.adapter != nil {
			e.adapter.Close()
		}
		return
	}

	if e.err != nil {
		// chat stays usable over HTTP; pushes are just absent
		a.log.Error("realtime connect failed", sl.Err(e.err))
		return
	}

	a.adapter = e.adapter
	if err := a.adapter.JoinThread(a.conversation.ThreadID()); err != nil {
		a.log.Error("failed to join thread", sl.Err(err))
	}

	gen := a.gen
	adapter := e.adapter
	go func() {
		for event := range adapter.Events() {
			a.post(evRealtime{gen: gen, event: event})
		}
	}()
}

func (a *App) handleRealtime(e evRealtime) {
	if e.gen != a.gen {
		return
	}

	switch e.event.Type {
	case ws.EventMessageNew:
		msg, err := ws.DecodeMessage(e.event)
		if err != nil {
			a.log.Error("bad message event", sl.Err(err))
			return
		}
		a.conversation.ReceiveRealtime(msg)

	case ws.EventAgentAssigned:
		if a.view != ViewChat {
			return
		}
		data, err := ws.DecodeAgentAssigned(e.event)
		if err != nil {
			a.log.Error("bad agent event", sl.Err(err))
			return
		}
		a.agentName = data.Agent.Name
		a.presence.Cancel()
		a.conversation.MarkLastCustomerSeen()
		a.typing = true

	case ws.EventChatClosed:
		if a.view != ViewChat {
			return
		}
		a.presence.Cancel()
		a.typing = false
		a.conversation.AppendSystem(entity.NewSystem(
			entity.CloseIDPrefix+uuid.NewString(),
			a.conversation.ThreadID(),
			"Chat ended",
		))
		a.view = ViewChatEnded

	case ws.EventDisconnect:
		a.log.Debug("realtime channel disconnected")
	}
}

func (a *App) handleSend(ctx context.Context, e evSend) {
	content := strings.TrimSpace(e.content)
	if a.view != ViewChat || content == "" {
		return
	}

	a.conversation.AppendOptimistic(content)

	gen := a.gen
	threadID := a.conversation.ThreadID()
	go func() {
		err := a.backend.PostMessage(ctx, threadID, entity.PostMessageRequest{Content: content})
		if err != nil {
			// optimistic entry stays; the visitor is not interrupted
			a.log.Error("failed to send message", sl.Err(err))
			return
		}
		a.post(evSent{gen: gen})
	}()
}

func (a *App) handleAttach(ctx context.Context, e evAttach) {
	if a.view != ViewChat {
		return
	}

	threadID := a.conversation.ThreadID()
	placeholder := entity.NewSystem(
		entity.TempIDPrefix+uuid.NewString(),
		threadID,
		fmt.Sprintf("Uploading %s...", e.filename),
	)
	a.conversation.AppendSystem(placeholder)

	gen := a.gen
	go func() {
		resp, err := a.backend.Upload(ctx, threadID, e.filename, bytes.NewReader(e.data))
		a.post(evUploadResult{
			gen:           gen,
			placeholderID: placeholder.ID,
			filename:      e.filename,
			resp:          resp,
			err:           err,
		})
	}()
}

func (a *App) handleUploadResult(ctx context.Context, e evUploadResult) {
	if e.gen != a.gen {
		return
	}

	a.conversation.RemoveMessage(e.placeholderID)
	threadID := a.conversation.ThreadID()

	if e.err != nil {
		a.log.Error("failed to upload file", sl.Err(e.err))
		a.conversation.AppendSystem(entity.NewSystem(
			entity.ErrIDPrefix+uuid.NewString(), threadID, "Upload failed: Network error"))
		return
	}
	if e.resp.URL == "" {
		reason := e.resp.Error
		if reason == "" {
			reason = "Unknown error"
		}
		a.conversation.AppendSystem(entity.NewSystem(
			entity.ErrIDPrefix+uuid.NewString(), threadID, "Upload failed: "+reason))
		return
	}

	gen := a.gen
	body := entity.PostMessageRequest{
		Content:   "",
		MediaURL:  e.resp.URL,
		MediaType: e.resp.MediaType,
	}
	go func() {
		if err := a.backend.PostMessage(ctx, threadID, body); err != nil {
			a.log.Error("failed to send media message", sl.Err(err))
			return
		}
		a.post(evSent{gen: gen})
	}()
}

func (a *App) handlePresence(e evPresence) {
	if e.threadID == "" || e.threadID != a.conversation.ThreadID() {
		return
	}

	switch e.kind {
	case presenceSeen:
		a.conversation.MarkLastCustomerSeen()
	case presenceTyping:
		if a.view == ViewChat {
			a.typing = true
		}
	}
}

func (a *App) teardownSession() {
	a.presence.Cancel()
	if a.adapter != nil {
		a.adapter.Close()
		a.adapter = nil
	}
	a.agentName = ""
	a.typing = false
}

// username mirrors the host-page fallback chain: explicit override, supplied
// name, a non-placeholder supplied id, then "Guest".
func (a *App) username() string {
	if a.cfg.Username != "" {
		return a.cfg.Username
	}
	if a.cfg.User.Name != "" {
		return a.cfg.User.Name
	}
	if a.cfg.User.ID != "" && !identity.IsPlaceholderID(a.cfg.User.ID, a.cfg.User.Name) {
		return a.cfg.User.ID
	}
	return "Guest"
}

// requestUser is the user payload for chat-start: the caller's fields with
// the finalized id in place of a rejected one.
func (a *App) requestUser() entity.WidgetUser {
	user := a.cfg.User
	user.ID = a.identity.ID
	if user.Name == "" {
		user.Name = a.identity.DisplayName
	}
	return user
}

func (a *App) render() {
	if a.renderer == nil {
		return
	}
	a.renderer.Render(Snapshot{
		View:              a.view,
		Position:          a.cfg.Position,
		CategoriesLoading: a.categories.Loading(),
		Categories:        a.categories.Categories(),
		SelectedCategory:  a.selected,
		Messages:          a.conversation.Messages(),
		AgentName:         a.agentName,
		AgentTyping:       a.typing,
		ErrorText:         a.errorText,
	})
}
