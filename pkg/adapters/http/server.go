package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"

	"github.com/aretw0/anamnesis"
	iruntime "github.com/aretw0/anamnesis/internal/runtime"
	"github.com/aretw0/anamnesis/pkg/domain"
)

// DefaultMaxImageSize bounds uploads to POST /api/chat/image.
const DefaultMaxImageSize = 10 << 20

// UserIDHeader names the record owner for the request.
const UserIDHeader = "X-User-ID"

// Service is what the HTTP adapter needs from the orchestrator.
type Service interface {
	Handle(ctx context.Context, sessionID, message string) (anamnesis.Reply, error)
	HandleImage(ctx context.Context, sessionID string, image []byte, mimeType string) (anamnesis.Reply, error)
	Restart(ctx context.Context, sessionID string) (anamnesis.Reply, error)
	History(ctx context.Context, userID string, limit int) ([]domain.Record, error)
}

var _ Service = (*anamnesis.Service)(nil)

// Server holds the handlers for the JSON API.
type Server struct {
	service      Service
	logger       *slog.Logger
	metrics      http.Handler
	maxImageSize int64
	apiVersion   string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMaxImageSize overrides DefaultMaxImageSize.
func WithMaxImageSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxImageSize = n
		}
	}
}

// NewHandler creates the HTTP handler for the service.
func NewHandler(service Service, opts ...Option) (http.Handler, error) {
	doc, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	v, err := newValidator(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build request validator: %w", err)
	}

	s := &Server{
		service:      service,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxImageSize: DefaultMaxImageSize,
		apiVersion:   doc.Info.Version,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(v.middleware)
		r.Post("/chat", s.Chat)
		r.Post("/chat/image", s.ChatImage)
		r.Post("/restart", s.Restart)
		r.Get("/users/{userID}/records", s.ListRecords)
		r.Get("/ping", s.Ping)
		r.Get("/info", s.Info)
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Anamnesis API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// RestartRequest is the body of POST /api/restart.
type RestartRequest struct {
	SessionID string `json:"session_id"`
}

// ChatResponse is returned by every conversational endpoint.
type ChatResponse struct {
	SessionID string       `json:"session_id"`
	Reply     string       `json:"reply"`
	Done      bool         `json:"done"`
	State     domain.State `json:"state"`
	Persisted *bool        `json:"persisted,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// RecordView is a stored record plus its rendered summary.
type RecordView struct {
	domain.Record
	Summary string `json:"summary"`
}

// RecordList is returned by GET /api/users/{userID}/records.
type RecordList struct {
	Records []RecordView `json:"records"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		s.logger.Warn("Chat: Invalid request body", "err", err)
		return
	}

	reply, err := s.service.Handle(withUser(r), body.SessionID, body.Message)
	s.respond(w, r, reply, err)
}

// ChatImage handles POST /api/chat/image.
func (s *Server) ChatImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageSize+1<<20)
	if err := r.ParseMultipartForm(s.maxImageSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart body"})
		s.logger.Warn("ChatImage: Invalid multipart body", "err", err)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image is required"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, s.maxImageSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read image"})
		return
	}
	if int64(len(image)) > s.maxImageSize {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image is too large"})
		return
	}

	reply, err := s.service.HandleImage(withUser(r), r.FormValue("session_id"), image, header.Header.Get("Content-Type"))
	s.respond(w, r, reply, err)
}

// Restart handles POST /api/restart.
func (s *Server) Restart(w http.ResponseWriter, r *http.Request) {
	var body RestartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	reply, err := s.service.Restart(r.Context(), body.SessionID)
	s.respond(w, r, reply, err)
}

// ListRecords handles GET /api/users/{userID}/records.
func (s *Server) ListRecords(w http.ResponseWriter, r *http.Request) {
	var userID string
	err := runtime.BindStyledParameterWithOptions("simple", "userID", chi.URLParam(r, "userID"), &userID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid format for parameter userID: %v", err)})
		return
	}

	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid format for parameter limit: %v", err)})
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	records, err := s.service.History(r.Context(), userID, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := RecordList{Records: make([]RecordView, 0, len(records))}
	for _, rec := range records {
		out.Records = append(out.Records, RecordView{Record: rec, Summary: rec.Summary()})
	}
	writeJSON(w, http.StatusOK, out)
}

// Ping handles GET /api/ping.
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Info handles GET /api/info.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "anamnesis-http",
		"version":     strings.TrimSpace(anamnesis.Version),
		"api_version": s.apiVersion,
		"about":       iruntime.About,
		"privacy":     iruntime.Privacy,
	})
}

// respond writes a conversational reply. A persistence failure still carries the
// final reply with status 200.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, reply anamnesis.Reply, err error) {
	var perr *anamnesis.PersistenceError
	switch {
	case err == nil:
		resp := toResponse(reply)
		if reply.Done {
			resp.Persisted = ptr(true)
		}
		writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &perr):
		s.logger.Error("Record was not stored", "session_id", perr.SessionID, "err", err)
		resp := toResponse(reply)
		resp.Persisted = ptr(false)
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
	default:
		s.writeError(w, r, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		s.logger.Warn("Request rejected", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrGenerationFailed):
		s.logger.Error("Generation failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Retryable: true})
	case errors.Is(err, context.Canceled):
		s.logger.Info("Request cancelled by client", "path", r.URL.Path)
	default:
		s.logger.Error("Request failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func withUser(r *http.Request) context.Context {
	if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
		return anamnesis.WithUserID(r.Context(), id)
	}
	return r.Context()
}

func toResponse(reply anamnesis.Reply) ChatResponse {
	return ChatResponse{
		SessionID: reply.SessionID,
		Reply:     reply.Text,
		Done:      reply.Done,
		State:     reply.State,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ptr[T any](v T) *T {
	return &v
}
