// Package diffcoord invokes the editor's diff-review remote procedures
// and translates editor-emitted diff-outcome events into protocol
// notifications for the Session Hub to fan out.
package diffcoord

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/ideevent"
	"github.com/brwse/ide-companion-bridge/internal/rpc"
)

// Editor is the subset of the editor adapter the coordinator depends on.
type Editor interface {
	ShowDiff(ctx context.Context, filePath, newContent string) error
	CloseDiff(ctx context.Context, filePath string) (*string, error)
	OnEvent(cb func(ideevent.Event)) (dispose func())
}

const (
	// NotifyDiffAccepted is the protocol notification method sent when
	// the editor reports the user accepted a pending diff.
	NotifyDiffAccepted = "ide/diffAccepted"
	// NotifyDiffRejected is the protocol notification method sent when
	// the editor reports the user rejected a pending diff.
	NotifyDiffRejected = "ide/diffRejected"
)

// DiffAcceptedParams is the params payload of an ide/diffAccepted
// notification.
type DiffAcceptedParams struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// DiffRejectedParams is the params payload of an ide/diffRejected
// notification.
type DiffRejectedParams struct {
	FilePath string `json:"filePath"`
}

// Coordinator wraps the editor adapter's diff operations and fans its
// diff-outcome events out to subscribers (the Session Hub) as
// rpc.Notification values.
type Coordinator struct {
	editor Editor
	logger *zap.Logger

	dispose func()

	subMu     sync.Mutex
	nextSubID int
	subs      map[int]func(rpc.Notification)
}

// New constructs a Coordinator and subscribes once to the editor's
// diff_accepted/diff_rejected events.
func New(editor Editor, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		editor: editor,
		logger: logger,
		subs:   make(map[int]func(rpc.Notification)),
	}
	c.dispose = editor.OnEvent(c.onEditorEvent)
	return c
}

// Close unsubscribes from the editor adapter.
func (c *Coordinator) Close() {
	if c.dispose != nil {
		c.dispose()
	}
}

// ShowDiff invokes the editor's "open diff" procedure.
func (c *Coordinator) ShowDiff(ctx context.Context, filePath, newContent string) error {
	return c.editor.ShowDiff(ctx, filePath, newContent)
}

// CloseDiff invokes the editor's "close diff" procedure.
func (c *Coordinator) CloseDiff(ctx context.Context, filePath string) (*string, error) {
	return c.editor.CloseDiff(ctx, filePath)
}

// OnDiffOutcome subscribes cb to every translated diff-outcome
// notification, in the order the originating editor events arrived.
func (c *Coordinator) OnDiffOutcome(cb func(rpc.Notification)) (dispose func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = cb
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Coordinator) onEditorEvent(evt ideevent.Event) {
	var notification rpc.Notification
	switch {
	case evt.DiffAccepted != nil:
		notification = rpc.NewNotification(NotifyDiffAccepted, DiffAcceptedParams{
			FilePath: evt.DiffAccepted.FilePath,
			Content:  evt.DiffAccepted.Content,
		})
	case evt.DiffRejected != nil:
		notification = rpc.NewNotification(NotifyDiffRejected, DiffRejectedParams{
			FilePath: evt.DiffRejected.FilePath,
		})
	default:
		return
	}

	c.subMu.Lock()
	callbacks := make([]func(rpc.Notification), 0, len(c.subs))
	for _, cb := range c.subs {
		callbacks = append(callbacks, cb)
	}
	c.subMu.Unlock()

	for _, cb := range callbacks {
		cb(notification)
	}
}
