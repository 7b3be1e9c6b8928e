// Package httpapi is the loopback HTTP/JSON-RPC front-end: CORS/Host/
// bearer-token gating, session lifecycle on POST /mcp, and the
// SSE-backed per-session push channel on GET /mcp.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/ctxstate"
	"github.com/brwse/ide-companion-bridge/internal/diffcoord"
	"github.com/brwse/ide-companion-bridge/internal/rpc"
	"github.com/brwse/ide-companion-bridge/internal/session"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// ContextProvider supplies the current aggregated IDE context for the
// initial push a newly attached session receives.
type ContextProvider interface {
	State() ctxstate.IdeContext
}

// Server is the C5 HTTP/JSON-RPC front-end.
type Server struct {
	logger      *zap.Logger
	hub         *session.Hub
	coordinator *diffcoord.Coordinator
	contextProv ContextProvider
	authToken   string

	mcpHandler http.Handler
	port       int
}

// New constructs a Server. The MCP server and its tool surface are
// wired once, in stateless mode, exactly as the bare MCP handler
// dispatches tool calls for every session; session bookkeeping itself
// lives entirely in hub, outside the SDK.
func New(hub *session.Hub, coordinator *diffcoord.Coordinator, contextProv ContextProvider, authToken string, logger *zap.Logger) *Server {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    "ide-companion-bridge",
		Version: "0.1.0",
	}, nil)

	sdk.AddTool(mcpServer, &OpenDiffTool, newOpenDiffHandler(coordinator))
	sdk.AddTool(mcpServer, &CloseDiffTool, newCloseDiffHandler(coordinator))

	mcpHandler := sdk.NewStreamableHTTPHandler(func(r *http.Request) *sdk.Server {
		return mcpServer
	}, &sdk.StreamableHTTPOptions{
		Stateless: true,
	})

	return &Server{
		logger:      logger,
		hub:         hub,
		coordinator: coordinator,
		contextProv: contextProv,
		authToken:   authToken,
		mcpHandler:  mcpHandler,
	}
}

// Listen binds the loopback listener and records its assigned port,
// needed by the Host allow-list middleware.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("binding loopback listener: %w", err)
	}
	s.port = ln.Addr().(*net.TCPAddr).Port
	return ln, nil
}

// Port returns the bound ephemeral port. Valid only after Listen.
func (s *Server) Port() int {
	return s.port
}

// Serve runs the HTTP server on ln until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.handlePost(w, r)
		case http.MethodGet:
			s.handleGet(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	return chain(mux,
		withLimitedBody,
		withCORSReject,
		withHostAllowList(s.port),
		withBearerAuth(s.authToken),
	)
}

const sessionIDHeader = "mcp-session-id"

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, rpc.ErrCodeBadSession, "Bad Request: could not read request body.")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID != "" {
		if _, ok := s.hub.Get(sessionID); !ok {
			writeJSONRPCError(w, http.StatusBadRequest, rpc.ErrCodeBadSession,
				"Bad Request: No valid session ID provided for non-initialize request.")
			return
		}
		s.dispatch(w, r)
		return
	}

	var peek rpc.Request
	if err := json.Unmarshal(body, &peek); err == nil && peek.Method == "initialize" {
		sess := s.hub.Create()
		w.Header().Set(sessionIDHeader, sess.ID)
		s.dispatch(w, r)
		return
	}

	writeJSONRPCError(w, http.StatusBadRequest, rpc.ErrCodeBadSession,
		"Bad Request: No valid session ID provided for non-initialize request.")
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	s.mcpHandler.ServeHTTP(rec, r)
	if !rec.wrote {
		writeJSONRPCError(w, http.StatusInternalServerError, rpc.ErrCodeInternal, "Internal error.")
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSONRPCError(w, http.StatusBadRequest, rpc.ErrCodeBadSession, "Bad Request: mcp-session-id header is required.")
		return
	}
	if _, ok := s.hub.Get(sessionID); !ok {
		writeJSONRPCError(w, http.StatusBadRequest, rpc.ErrCodeBadSession, "Bad Request: unknown session.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	transport, err := newSSETransport(w)
	if err != nil {
		s.logger.Error("SSE unsupported by response writer", zap.Error(err))
		return
	}

	s.hub.AttachTransport(sessionID, transport, s.contextProv.State())

	select {
	case <-r.Context().Done():
	case <-transport.Done():
	}
}

type statusRecorder struct {
	http.ResponseWriter
	wrote bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

func writeJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpc.NewErrorResponse(nil, code, message))
}
