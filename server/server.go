// Package server exposes the chat pipeline over HTTP: a Server-Sent Events
// endpoint for message processing plus paginated listing endpoints, a health
// check and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// Server serves the chat API.
type Server struct {
	manager *chat.Manager
	logger  logging.Logger
	metrics *Metrics
	http    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNoOp(l) }
}

// WithMetrics sets the server's metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server over manager listening on addr.
func New(addr string, manager *chat.Manager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		logger:  logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /chat", s.handleProcessMessage)
	mux.HandleFunc("POST /chat/{$}", s.handleProcessMessage)
	// /chat/list/{owner} and /chat/{chat_id}/messages overlap under the
	// ServeMux precedence rules, so GET routing under /chat/ is done by hand.
	mux.HandleFunc("GET /chat/", s.routeChatGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting http server", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

type chatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
	Owner   string `json:"owner"`
}

type paginatedResponse struct {
	Items      any `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleProcessMessage streams pipeline progress as Server-Sent Events. A
// request that fails before the pipeline starts still answers with a short
// SSE stream carrying a fatal_error and a done event, so clients only ever
// parse one framing.
func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer s.observe(r.Method, "/chat", http.StatusOK, start)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorStream(w, http.StatusBadRequest, fmt.Sprintf("Failed to start stream: invalid request body: %v", err))
		return
	}
	if req.Message == "" {
		s.writeErrorStream(w, http.StatusBadRequest, "Failed to start stream: message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	status := "success"
	for ev := range s.manager.ProcessMessage(r.Context(), req.Message, req.ChatID, req.Owner) {
		if ev.Data.Step == core.StepFatalError {
			status = "error"
		}
		if s.metrics != nil {
			step := string(ev.Data.Step)
			if ev.IsDone() {
				step = "done"
			}
			s.metrics.EventCounter.WithLabelValues(step).Inc()
		}
		if err := writeSSE(w, ev); err != nil {
			s.logger.Warn("client disconnected mid-stream", "chat_id", req.ChatID, "error", err)
			status = "error"
			break
		}
		flusher.Flush()
	}
	if s.metrics != nil {
		s.metrics.PipelineRunCounter.WithLabelValues(status).Inc()
	}
}

// routeChatGet dispatches GET /chat/list/{owner} and
// GET /chat/{chat_id}/messages.
func (s *Server) routeChatGet(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/chat/"), "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "list" && parts[1] != "":
		s.handleListChats(w, r, parts[1])
	case len(parts) == 2 && parts[1] == "messages" && parts[0] != "":
		s.handleListMessages(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request, owner string) {
	start := time.Now()
	page, pageSize := pagination(r)
	search := r.URL.Query().Get("searchQuery")

	chats, total, err := s.manager.ChatsByOwner(r.Context(), owner, page, pageSize, search)
	if err != nil {
		s.logger.Error("failed to list chats", "owner", owner, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		s.observe(r.Method, "/chat/list", http.StatusInternalServerError, start)
		return
	}
	if chats == nil {
		chats = []core.ChatSummary{}
	}
	s.writeJSON(w, http.StatusOK, paginate(chats, total, page, pageSize))
	s.observe(r.Method, "/chat/list", http.StatusOK, start)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, chatID string) {
	start := time.Now()
	page, pageSize := pagination(r)

	messages, total, err := s.manager.ChatMessages(r.Context(), chatID, page, pageSize)
	if err != nil {
		s.logger.Error("failed to list messages", "chat_id", chatID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		s.observe(r.Method, "/chat/messages", http.StatusInternalServerError, start)
		return
	}
	if messages == nil {
		messages = []core.MessageView{}
	}
	s.writeJSON(w, http.StatusOK, paginate(messages, total, page, pageSize))
	s.observe(r.Method, "/chat/messages", http.StatusOK, start)
}

// writeErrorStream answers with a minimal SSE stream: one fatal_error event
// followed by the closing done event.
func (s *Server) writeErrorStream(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = writeSSE(w, core.NewFatalErrorEvent(detail))
	_ = writeSSE(w, core.NewDoneEvent(nil))
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) observe(method, path string, status int, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.HTTPRequestCounter.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	s.metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
}

// writeSSE frames one event as a Server-Sent Events data line.
func writeSSE(w http.ResponseWriter, ev core.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func paginate(items any, total, page, pageSize int) paginatedResponse {
	return paginatedResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}

func pagination(r *http.Request) (page, pageSize int) {
	page = queryInt(r, "page", defaultPage)
	if page < 1 {
		page = defaultPage
	}
	pageSize = queryInt(r, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
