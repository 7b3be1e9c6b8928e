// Package editoradapter attaches to the editor over its RPC socket,
// subscribes to its fixed event vocabulary, and exposes the two remote
// procedures the editor plugin implements for diff review.
package editoradapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/ideevent"
)

// Remote procedure names exposed downward by the editor plugin. Fixed by
// the editor side; the bridge only calls them.
const (
	methodOpenDiff  = "ide/openDiff"
	methodCloseDiff = "ide/closeDiff"
)

// Adapter attaches to a single editor session over a Unix domain socket
// and bridges its JSON-RPC notifications into the typed ideevent
// vocabulary, synchronously on the notification-dispatch goroutine. It
// does not itself debounce; that's the Context Aggregator's job.
type Adapter struct {
	logger *zap.Logger

	mu   sync.Mutex
	conn jsonrpc2.Conn

	subMu     sync.Mutex
	nextSubID int
	subs      map[int]func(ideevent.Event)
}

// New constructs an unattached Adapter.
func New(logger *zap.Logger) *Adapter {
	return &Adapter{
		logger: logger,
		subs:   make(map[int]func(ideevent.Event)),
	}
}

// Attach dials the given socket path and begins serving inbound
// notifications. Attach failures are the caller's cue to log and exit
// with a non-zero status; the adapter does not retry.
func (a *Adapter) Attach(ctx context.Context, socketPath string) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("attaching to editor RPC socket %q: %w", socketPath, err)
	}

	stream := jsonrpc2.NewStream(conn)
	rpcConn := jsonrpc2.NewConn(stream)
	rpcConn.Go(ctx, a.handle)

	a.mu.Lock()
	a.conn = rpcConn
	a.mu.Unlock()

	return nil
}

// Done reports when the underlying connection has closed.
func (a *Adapter) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.Done()
}

// OnEvent subscribes cb to every event emitted by the editor. Events are
// delivered synchronously on the JSON-RPC dispatch goroutine; cb must not
// block.
func (a *Adapter) OnEvent(cb func(ideevent.Event)) (dispose func()) {
	a.subMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = cb
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

// ShowDiff invokes the editor's "open diff" procedure.
func (a *Adapter) ShowDiff(ctx context.Context, filePath, newContent string) error {
	conn, err := a.activeConn()
	if err != nil {
		return err
	}
	params := struct {
		FilePath   string `json:"filePath"`
		NewContent string `json:"newContent"`
	}{FilePath: filePath, NewContent: newContent}

	if _, err := conn.Call(ctx, methodOpenDiff, params, nil); err != nil {
		return fmt.Errorf("showing diff for %q: %w", filePath, err)
	}
	return nil
}

// CloseDiff invokes the editor's "close diff" procedure. A nil result
// means no such diff was open.
func (a *Adapter) CloseDiff(ctx context.Context, filePath string) (*string, error) {
	conn, err := a.activeConn()
	if err != nil {
		return nil, err
	}
	params := struct {
		FilePath string `json:"filePath"`
	}{FilePath: filePath}

	var result struct {
		Content *string `json:"content"`
	}
	if _, err := conn.Call(ctx, methodCloseDiff, params, &result); err != nil {
		return nil, fmt.Errorf("closing diff for %q: %w", filePath, err)
	}
	return result.Content, nil
}

func (a *Adapter) activeConn() (jsonrpc2.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil, fmt.Errorf("editor adapter is not attached")
	}
	return a.conn, nil
}

// handle is the jsonrpc2.Handler invoked for every inbound message.
// Ingress filtering happens here: events with an empty or non-absolute
// path are dropped and logged at debug rather than propagated upward.
func (a *Adapter) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	evt, ok := a.decode(req)
	if ok {
		a.dispatch(evt)
	}

	if _, isCall := req.(*jsonrpc2.Call); isCall {
		// The editor never issues calls against the bridge in this
		// vocabulary; reply with nil to avoid leaving the peer hanging.
		return reply(ctx, nil, nil)
	}
	return nil
}

func (a *Adapter) decode(req jsonrpc2.Request) (ideevent.Event, bool) {
	method := req.Method()
	params := req.Params()

	switch method {
	case ideevent.MethodBufferEnter:
		var p ideevent.BufferEnter
		if !unmarshalOrDrop(a.logger, method, params, &p) {
			return ideevent.Event{}, false
		}
		if !isAbsolutePath(p.Path) {
			a.logger.Debug("dropping buffer_enter with invalid path", zap.String("path", p.Path))
			return ideevent.Event{}, false
		}
		return ideevent.Event{Method: method, BufferEnter: &p}, true

	case ideevent.MethodCursorMoved:
		var p ideevent.CursorMoved
		if !unmarshalOrDrop(a.logger, method, params, &p) {
			return ideevent.Event{}, false
		}
		return ideevent.Event{Method: method, CursorMoved: &p}, true

	case ideevent.MethodVisualChanged:
		var p ideevent.VisualChanged
		if !unmarshalOrDrop(a.logger, method, params, &p) {
			return ideevent.Event{}, false
		}
		return ideevent.Event{Method: method, VisualChanged: &p}, true

	case ideevent.MethodBufferClosed:
		var p ideevent.BufferClosed
		if !unmarshalOrDrop(a.logger, method, params, &p) {
			return ideevent.Event{}, false
		}
		if !isAbsolutePath(p.Path) {
			a.logger.Debug("dropping buffer_closed with invalid path", zap.String("path", p.Path))
			return ideevent.Event{}, false
		}
		return ideevent.Event{Method: method, BufferClosed: &p}, true

	case ideevent.MethodDiffAccepted:
		var p ideevent.DiffAccepted
		if !unmarshalOrDrop(a.logger, method, params, &p) {
			return ideevent.Event{}, false
		}
		return ideevent.Event{Method: method, DiffAccepted: &p}, true

	case ideevent.MethodDiffRejected:
		var p ideevent.DiffRejected
		if !unmarshalOrDrop(a.logger, method, params, &p) {
			return ideevent.Event{}, false
		}
		return ideevent.Event{Method: method, DiffRejected: &p}, true

	default:
		a.logger.Debug("dropping event with unknown method", zap.String("method", method))
		return ideevent.Event{}, false
	}
}

func (a *Adapter) dispatch(evt ideevent.Event) {
	a.subMu.Lock()
	callbacks := make([]func(ideevent.Event), 0, len(a.subs))
	for _, cb := range a.subs {
		callbacks = append(callbacks, cb)
	}
	a.subMu.Unlock()

	for _, cb := range callbacks {
		cb(evt)
	}
}

func unmarshalOrDrop(logger *zap.Logger, method string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		logger.Debug("dropping malformed event", zap.String("method", method), zap.Error(err))
		return false
	}
	return true
}

func isAbsolutePath(path string) bool {
	return path != "" && filepath.IsAbs(path)
}
