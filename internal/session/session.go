// Package session tracks per-client SSE connections, paces keep-alive
// pings against them, and fans out context and diff-outcome
// notifications to every attached transport.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/ctxstate"
	"github.com/brwse/ide-companion-bridge/internal/rpc"
)

// Session is one HTTP client's connection state. A Session can
// exist before its transport attaches: initialize() creates the ID, and
// the GET /mcp handler attaches the SSE transport once the client opens
// its stream.
type Session struct {
	ID string

	mu        sync.Mutex
	transport Transport

	missedPings        atomic.Int32
	initialContextSent atomic.Bool

	stopKeepAlive chan struct{}
}

func newSession() *Session {
	return &Session{
		ID:            uuid.NewString(),
		stopKeepAlive: make(chan struct{}),
	}
}

func (s *Session) setTransport(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

func (s *Session) send(msg any) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Send(msg)
}

func (s *Session) close() {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t != nil {
		_ = t.Close()
	}
}

// Hub owns every live Session and paces the keep-alive state machine
// (active -> failing -> abandoned -> closed) described for the protocol
// front-end.
type Hub struct {
	logger *zap.Logger

	keepAliveInterval time.Duration
	maxMissedPings    int

	mu       sync.RWMutex
	sessions map[string]*Session

	wg sync.WaitGroup
}

// New constructs a Hub. keepAliveInterval and maxMissedPings come from
// configuration rather than fixed constants so operators can tune the
// abandonment window.
func New(keepAliveInterval time.Duration, maxMissedPings int, logger *zap.Logger) *Hub {
	return &Hub{
		logger:            logger,
		keepAliveInterval: keepAliveInterval,
		maxMissedPings:    maxMissedPings,
		sessions:          make(map[string]*Session),
	}
}

// Create registers a new Session and starts its keep-alive ticker. The
// returned Session has no transport attached yet.
func (h *Hub) Create() *Session {
	s := newSession()

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	h.wg.Add(1)
	go h.runKeepAlive(s)

	return s
}

// Get looks up a session by id. The second return value is false if no
// such session exists, the caller's cue to respond with ErrCodeBadSession.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// AttachTransport binds an SSE transport to an existing session and, if
// this is the session's first attach, delivers the current IDE context
// as the initial ide/contextUpdate notification.
func (h *Hub) AttachTransport(id string, t Transport, initial ctxstate.IdeContext) bool {
	s, ok := h.Get(id)
	if !ok {
		return false
	}
	s.setTransport(t)

	if s.initialContextSent.CompareAndSwap(false, true) {
		if err := s.send(rpc.NewNotification(NotifyContextUpdate, initial)); err != nil {
			h.logger.Debug("initial context delivery failed", zap.String("session", id), zap.Error(err))
		}
	}
	return true
}

// Destroy stops a session's keep-alive ticker, closes its transport, and
// removes it from the hub. Safe to call more than once.
func (h *Hub) Destroy(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	close(s.stopKeepAlive)
	s.close()
}

// DestroyAll tears down every session, used on bridge shutdown.
func (h *Hub) DestroyAll() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Destroy(id)
	}
	h.wg.Wait()
}

// NotifyContextUpdate is the method of the context notification the Hub
// broadcasts to every attached session. Diff-outcome notifications reach
// the Hub already built by the diff coordinator.
const NotifyContextUpdate = "ide/contextUpdate"

// BroadcastContext pushes the latest aggregated IDE context to every
// attached session.
func (h *Hub) BroadcastContext(ctx ctxstate.IdeContext) {
	h.broadcast(rpc.NewNotification(NotifyContextUpdate, ctx))
}

// BroadcastDiffOutcome pushes a diff-outcome notification (already built
// by the diff coordinator) to every attached session.
func (h *Hub) BroadcastDiffOutcome(n rpc.Notification) {
	h.broadcast(n)
}

func (h *Hub) broadcast(msg any) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.send(msg); err != nil {
			h.logger.Debug("broadcast to session failed", zap.String("session", s.ID), zap.Error(err))
		}
	}
}

// runKeepAlive pings a session on the hub's cadence. A missed ping
// (Send returning an error) advances the session from active toward
// failing; MaxMissedPings consecutive misses moves it to abandoned and
// the session is torn down.
func (h *Hub) runKeepAlive(s *Session) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopKeepAlive:
			return
		case <-ticker.C:
			if err := s.send(rpc.Ping); err != nil {
				missed := s.missedPings.Add(1)
				h.logger.Debug("missed keep-alive ping",
					zap.String("session", s.ID), zap.Int32("missed", missed))
				if int(missed) >= h.maxMissedPings {
					h.logger.Info("session abandoned after missed pings", zap.String("session", s.ID))
					h.Destroy(s.ID)
					return
				}
				continue
			}
			s.missedPings.Store(0)
		}
	}
}
