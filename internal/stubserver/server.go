package stubserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"supportwidget/entity"
	"supportwidget/internal/lib/api/response"
	"supportwidget/internal/lib/sl"
)

// NoAgentsMessage is the server-provided text shown when no agents are online.
const NoAgentsMessage = "No agents are online right now. Leave a message and we will get back to you."

// thread is one stub conversation.
type thread struct {
	id       string
	token    string
	category string
	messages []entity.Message
}

// Server is a reference backend for the widget: the HTTP contract the
// client expects plus the realtime channel, entirely in memory. It exists
// for the demo binary and for integration tests; it is not a product
// backend.
type Server struct {
	log      *slog.Logger
	hub      *Hub
	validate *validator.Validate

	mu         sync.Mutex
	categories []entity.Category
	threads    map[string]*thread // by thread id
	tokens     map[string]string  // ws token -> thread id
	uploads    map[string][]byte  // served under /uploads/
}

func New(log *slog.Logger) *Server {
	return &Server{
		log:      log.With(sl.Module("stub server")),
		hub:      NewHub(log),
		validate: validator.New(),
		categories: []entity.Category{
			{ID: "billing", Title: "Billing", Description: "Invoices and payments"},
			{ID: "shipping", Title: "Shipping", Description: "Where is my order"},
			{
				ID:         "hours",
				Title:      "Opening hours",
				AutoAnswer: "We are open Monday to Friday, 9:00-18:00.",
			},
		},
		threads: make(map[string]*thread),
		tokens:  make(map[string]string),
		uploads: make(map[string][]byte),
	}
}

// SetCategories replaces the topic list (test hook).
func (s *Server) SetCategories(categories []entity.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = categories
}

// Hub exposes the realtime hub so tests and the demo can push agent events.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.With(render.SetContentType(render.ContentTypeJSON)).Group(func(g chi.Router) {
			g.Get("/categories", s.listCategories)
			g.Post("/chat/start", s.startChat)
			g.Get("/chat/{threadID}/messages", s.listMessages)
			g.Post("/chat/{threadID}/message", s.postMessage)
			g.Post("/chat/{threadID}/close", s.closeChat)
			g.Post("/upload", s.upload)
		})
	})

	r.Get("/uploads/{name}", s.serveUpload)
	r.Get("/ws", s.serveWs)

	return r
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]entity.Category, len(s.categories))
	copy(out, s.categories)
	s.mu.Unlock()

	render.JSON(w, r, entity.CategoriesResponse{Categories: out})
}

func (s *Server) startChat(w http.ResponseWriter, r *http.Request) {
	var req entity.ChatStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}

	t := &thread{
		id:       uuid.NewString(),
		token:    uuid.NewString(),
		category: req.CategoryID,
	}

	s.mu.Lock()
	s.threads[t.id] = t
	s.tokens[t.token] = t.id
	s.mu.Unlock()

	s.log.Info("chat started",
		slog.String("thread_id", t.id),
		slog.String("category_id", req.CategoryID),
		slog.String("username", req.Username),
		slog.String("device_hash", req.DeviceHash),
	)

	render.JSON(w, r, entity.ChatStartResponse{
		ThreadID:    t.id,
		WSToken:     t.token,
		AgentStatus: entity.AgentStatusNoAgents,
		Message:     NoAgentsMessage,
	})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	t, ok := s.threads[threadID]
	authorized := ok && t.token == token
	var out []entity.Message
	if authorized {
		out = make([]entity.Message, len(t.messages))
		copy(out, t.messages)
	}
	s.mu.Unlock()

	if !authorized {
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	render.JSON(w, r, entity.MessagesResponse{Messages: out})
}

// postMessage stores the customer message and echoes the authoritative copy
// back over the realtime channel, which is what the widget's reconciliation
// consumes.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req entity.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	msg := entity.Message{
		ID:         uuid.NewString(),
		ThreadID:   threadID,
		SenderType: entity.SenderCustomer,
		Content:    req.Content,
		MediaURL:   req.MediaURL,
		MediaType:  req.MediaType,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	t, ok := s.threads[threadID]
	if ok {
		t.messages = append(t.messages, msg)
	}
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("unknown thread"))
		return
	}

	s.hub.Broadcast(threadID, Event{Type: "message:new", Data: msg})
	render.JSON(w, r, response.Ok(nil))
}

func (s *Server) closeChat(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	s.mu.Lock()
	_, ok := s.threads[threadID]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("unknown thread"))
		return
	}

	s.hub.Broadcast(threadID, Event{Type: "chat:closed"})
	render.JSON(w, r, response.Ok(nil))
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		render.JSON(w, r, entity.UploadResponse{Error: "invalid multipart body"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		render.JSON(w, r, entity.UploadResponse{Error: "missing file"})
		return
	}
	defer func() { _ = file.Close() }()

	mediaType, ok := mediaTypeFor(header.Filename)
	if !ok {
		render.JSON(w, r, entity.UploadResponse{Error: "unsupported file type"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		render.JSON(w, r, entity.UploadResponse{Error: "failed to read file"})
		return
	}

	name := uuid.NewString() + strings.ToLower(path.Ext(header.Filename))
	s.mu.Lock()
	s.uploads[name] = data
	s.mu.Unlock()

	base := "http://" + r.Host
	render.JSON(w, r, entity.UploadResponse{
		URL:       fmt.Sprintf("%s/uploads/%s", base, name),
		MediaType: mediaType,
	})
}

func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	data, ok := s.uploads[name]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	threadID, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	c := &client{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, 64),
		threadID: threadID,
	}

	go c.writePump()
	go c.readPump()
}

func mediaTypeFor(filename string) (entity.MediaType, bool) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return entity.MediaImage, true
	case ".mp4", ".mov", ".webm":
		return entity.MediaVideo, true
	case ".mp3", ".wav", ".ogg", ".m4a":
		return entity.MediaVoice, true
	default:
		return "", false
	}
}
