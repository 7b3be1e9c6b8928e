package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/ctxstate"
	"github.com/brwse/ide-companion-bridge/internal/rpc"
)

type fakeTransport struct {
	mu       sync.Mutex
	messages []any
	fail     bool
	closed   bool
}

func (f *fakeTransport) Send(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeTransport) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestAttachTransportSendsInitialContextOnce(t *testing.T) {
	h := New(time.Hour, 3, zap.NewNop())
	defer h.DestroyAll()

	s := h.Create()
	ft := &fakeTransport{}
	ok := h.AttachTransport(s.ID, ft, ctxstate.IdeContext{})
	require.True(t, ok)
	assert.Equal(t, 1, ft.count())

	ft2 := &fakeTransport{}
	h.AttachTransport(s.ID, ft2, ctxstate.IdeContext{})
	assert.Equal(t, 0, ft2.count())
}

func TestAttachTransportUnknownSessionFails(t *testing.T) {
	h := New(time.Hour, 3, zap.NewNop())
	defer h.DestroyAll()

	ok := h.AttachTransport("nope", &fakeTransport{}, ctxstate.IdeContext{})
	assert.False(t, ok)
}

func TestBroadcastContextReachesAllSessions(t *testing.T) {
	h := New(time.Hour, 3, zap.NewNop())
	defer h.DestroyAll()

	s1 := h.Create()
	s2 := h.Create()
	ft1, ft2 := &fakeTransport{}, &fakeTransport{}
	h.AttachTransport(s1.ID, ft1, ctxstate.IdeContext{})
	h.AttachTransport(s2.ID, ft2, ctxstate.IdeContext{})

	h.BroadcastContext(ctxstate.IdeContext{})
	assert.Equal(t, 2, ft1.count())
	assert.Equal(t, 2, ft2.count())
}

func TestBroadcastDiffOutcomeReachesSessions(t *testing.T) {
	h := New(time.Hour, 3, zap.NewNop())
	defer h.DestroyAll()

	s := h.Create()
	ft := &fakeTransport{}
	h.AttachTransport(s.ID, ft, ctxstate.IdeContext{})

	h.BroadcastDiffOutcome(rpc.NewNotification("ide/diffAccepted", nil))
	assert.Equal(t, 2, ft.count())
}

func TestKeepAliveAbandonsAfterMaxMissedPings(t *testing.T) {
	h := New(20*time.Millisecond, 3, zap.NewNop())
	defer h.DestroyAll()

	s := h.Create()
	ft := &fakeTransport{}
	h.AttachTransport(s.ID, ft, ctxstate.IdeContext{})
	ft.setFail(true)

	require.Eventually(t, func() bool {
		_, ok := h.Get(s.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.True(t, ft.isClosed())
}

func TestDestroyStopsKeepAliveAndClosesTransport(t *testing.T) {
	h := New(time.Hour, 3, zap.NewNop())
	s := h.Create()
	ft := &fakeTransport{}
	h.AttachTransport(s.ID, ft, ctxstate.IdeContext{})

	h.Destroy(s.ID)
	_, ok := h.Get(s.ID)
	assert.False(t, ok)
	assert.True(t, ft.isClosed())
}
