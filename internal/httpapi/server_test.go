package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/ctxstate"
	"github.com/brwse/ide-companion-bridge/internal/diffcoord"
	"github.com/brwse/ide-companion-bridge/internal/ideevent"
	"github.com/brwse/ide-companion-bridge/internal/session"
)

type stubContextProvider struct{}

func (stubContextProvider) State() ctxstate.IdeContext { return ctxstate.IdeContext{} }

type fakeEditorForHTTP struct{}

func (fakeEditorForHTTP) ShowDiff(ctx context.Context, filePath, newContent string) error {
	return nil
}

func (fakeEditorForHTTP) CloseDiff(ctx context.Context, filePath string) (*string, error) {
	return nil, nil
}

func (fakeEditorForHTTP) OnEvent(cb func(ideevent.Event)) (dispose func()) {
	return func() {}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	hub := session.New(time.Hour, 3, zap.NewNop())
	coordinator := diffcoord.New(fakeEditorForHTTP{}, zap.NewNop())
	return New(hub, coordinator, stubContextProvider{}, "secret-token", zap.NewNop())
}

func TestHandlePostUnknownSessionRejected(t *testing.T) {
	s := newTestServer(t)
	s.port = 9999

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/call","id":1}`))
	req.Header.Set(sessionIDHeader, "nonexistent")
	rec := httptest.NewRecorder()

	s.handlePost(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No valid session ID")
}

func TestHandlePostNonInitializeWithoutSessionRejected(t *testing.T) {
	s := newTestServer(t)
	s.port = 9999

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/call","id":1}`))
	rec := httptest.NewRecorder()

	s.handlePost(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetMissingSessionHeaderRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()

	s.handleGet(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetUnknownSessionRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(sessionIDHeader, "nonexistent")
	rec := httptest.NewRecorder()

	s.handleGet(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
