package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/anamnesis"
	"github.com/aretw0/anamnesis/internal/runtime"
	"github.com/aretw0/anamnesis/pkg/domain"
)

// AboutURI is the resource carrying the service description and privacy notice.
const AboutURI = "anamnesis://about"

// Service is what the MCP server needs from the orchestrator.
type Service interface {
	Handle(ctx context.Context, sessionID, message string) (anamnesis.Reply, error)
	Restart(ctx context.Context, sessionID string) (anamnesis.Reply, error)
	History(ctx context.Context, userID string, limit int) ([]domain.Record, error)
}

// ConsultArgs are the arguments of the consult tool.
type ConsultArgs struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	UserID    string `json:"user_id,omitempty"`
}

// RestartArgs are the arguments of the restart tool.
type RestartArgs struct {
	SessionID string `json:"session_id"`
}

// HistoryArgs are the arguments of the history tool.
type HistoryArgs struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

// ConsultResponse mirrors the HTTP chat response.
type ConsultResponse struct {
	SessionID string `json:"session_id" jsonschema_description:"Session to pass back on the next call"`
	Reply     string `json:"reply" jsonschema_description:"Next question or narrative"`
	Done      bool   `json:"done" jsonschema_description:"True once the final narrative was produced"`
	State     string `json:"state" jsonschema_description:"Questionnaire step the session is at"`
	Persisted *bool  `json:"persisted,omitempty" jsonschema_description:"On the final reply, whether the record was stored"`
	Retryable bool   `json:"retryable,omitempty" jsonschema_description:"The model call failed; send the same message again"`
	Error     string `json:"error,omitempty"`
}

// HistoryResponse lists completed sessions newest first.
type HistoryResponse struct {
	Records []HistoryEntry `json:"records"`
}

// HistoryEntry is one completed session.
type HistoryEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Summary   string    `json:"summary"`
	Final     string    `json:"final"`
}

// Server exposes the questionnaire as MCP tools.
type Server struct {
	service   Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(service Service, opts ...Option) *Server {
	s := &Server{
		service:   service,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mcpServer: server.NewMCPServer("anamnesis-mcp", strings.TrimSpace(anamnesis.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	consultTool := mcp.NewTool("consult",
		mcp.WithDescription("Send one answer of the health questionnaire. Omit session_id to start; "+
			"the first call returns the opening question and does not consume the message."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's answer to the current question")),
		mcp.WithString("session_id", mcp.Description("Session returned by a previous call")),
		mcp.WithString("user_id", mcp.Description("Owner of the stored record (defaults to the session id)")),
		mcp.WithOutputSchema[ConsultResponse](),
	)
	s.mcpServer.AddTool(consultTool, mcp.NewStructuredToolHandler(s.handleConsult))

	restartTool := mcp.NewTool("restart",
		mcp.WithDescription("Discard the session and return the opening question."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to restart")),
		mcp.WithOutputSchema[ConsultResponse](),
	)
	s.mcpServer.AddTool(restartTool, mcp.NewStructuredToolHandler(s.handleRestart))

	historyTool := mcp.NewTool("history",
		mcp.WithDescription("List the user's completed sessions, newest first."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Record owner")),
		mcp.WithNumber("limit", mcp.Min(1), mcp.Max(100), mcp.Description("Maximum number of records (default 5)")),
		mcp.WithOutputSchema[HistoryResponse](),
	)
	s.mcpServer.AddTool(historyTool, mcp.NewStructuredToolHandler(s.handleHistory))
}

// handleConsult maps generation and persistence failures into the response so
// the caller can tell them apart from a broken tool call.
func (s *Server) handleConsult(ctx context.Context, request mcp.CallToolRequest, args ConsultArgs) (ConsultResponse, error) {
	if args.UserID != "" {
		ctx = anamnesis.WithUserID(ctx, args.UserID)
	}

	reply, err := s.service.Handle(ctx, args.SessionID, args.Message)
	resp := toResponse(reply)

	var perr *anamnesis.PersistenceError
	switch {
	case err == nil:
		if reply.Done {
			persisted := true
			resp.Persisted = &persisted
		}
		return resp, nil
	case errors.As(err, &perr):
		s.logger.Error("MCP consult: record was not stored", "session_id", perr.SessionID, "err", err)
		persisted := false
		resp.Persisted = &persisted
		resp.Error = err.Error()
		return resp, nil
	case errors.Is(err, domain.ErrGenerationFailed):
		s.logger.Warn("MCP consult: generation failed", "session_id", args.SessionID, "err", err)
		return ConsultResponse{SessionID: args.SessionID, Retryable: true, Error: err.Error()}, nil
	default:
		s.logger.Warn("MCP consult: rejected", "session_id", args.SessionID, "err", err)
		return ConsultResponse{}, fmt.Errorf("consult failed: %w", err)
	}
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest, args RestartArgs) (ConsultResponse, error) {
	if strings.TrimSpace(args.SessionID) == "" {
		return ConsultResponse{}, fmt.Errorf("%w: session_id is required", domain.ErrMalformedInput)
	}
	reply, err := s.service.Restart(ctx, args.SessionID)
	if err != nil {
		return ConsultResponse{}, fmt.Errorf("restart failed: %w", err)
	}
	return toResponse(reply), nil
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest, args HistoryArgs) (HistoryResponse, error) {
	records, err := s.service.History(ctx, args.UserID, args.Limit)
	if err != nil {
		return HistoryResponse{}, fmt.Errorf("history failed: %w", err)
	}

	out := HistoryResponse{Records: make([]HistoryEntry, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, HistoryEntry{
			ID:        r.ID,
			SessionID: r.SessionID,
			CreatedAt: r.CreatedAt,
			Summary:   r.Summary(),
			Final:     r.Final,
		})
	}
	return out, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(AboutURI, "About this assistant",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      AboutURI,
				MIMEType: "text/plain",
				Text:     runtime.About + "\n\n" + runtime.Privacy,
			},
		}, nil
	})
}

func toResponse(reply anamnesis.Reply) ConsultResponse {
	return ConsultResponse{
		SessionID: reply.SessionID,
		Reply:     reply.Text,
		Done:      reply.Done,
		State:     reply.State.String(),
	}
}
