package diffcoord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/ideevent"
	"github.com/brwse/ide-companion-bridge/internal/rpc"
)

type fakeEditor struct {
	showDiffCalls  []string
	closeDiffCalls []string
	closeResult    *string
	handlers       []func(ideevent.Event)
}

func (f *fakeEditor) ShowDiff(ctx context.Context, filePath, newContent string) error {
	f.showDiffCalls = append(f.showDiffCalls, filePath)
	return nil
}

func (f *fakeEditor) CloseDiff(ctx context.Context, filePath string) (*string, error) {
	f.closeDiffCalls = append(f.closeDiffCalls, filePath)
	return f.closeResult, nil
}

func (f *fakeEditor) OnEvent(cb func(ideevent.Event)) (dispose func()) {
	idx := len(f.handlers)
	f.handlers = append(f.handlers, cb)
	return func() { f.handlers[idx] = nil }
}

func (f *fakeEditor) emit(evt ideevent.Event) {
	for _, h := range f.handlers {
		if h != nil {
			h(evt)
		}
	}
}

func TestShowDiffDelegatesToEditor(t *testing.T) {
	editor := &fakeEditor{}
	c := New(editor, zap.NewNop())

	require.NoError(t, c.ShowDiff(context.Background(), "/a.go", "new content"))
	assert.Equal(t, []string{"/a.go"}, editor.showDiffCalls)
}

func TestCloseDiffDelegatesToEditor(t *testing.T) {
	content := "resolved"
	editor := &fakeEditor{closeResult: &content}
	c := New(editor, zap.NewNop())

	got, err := c.CloseDiff(context.Background(), "/a.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "resolved", *got)
}

func TestDiffAcceptedTranslatesToNotification(t *testing.T) {
	editor := &fakeEditor{}
	c := New(editor, zap.NewNop())

	var method string
	var params any
	c.OnDiffOutcome(func(n rpc.Notification) {
		method = n.Method
		params = n.Params
	})

	editor.emit(ideevent.Event{DiffAccepted: &ideevent.DiffAccepted{FilePath: "/a.go", Content: "hi"}})

	assert.Equal(t, NotifyDiffAccepted, method)
	p, ok := params.(DiffAcceptedParams)
	require.True(t, ok)
	assert.Equal(t, "/a.go", p.FilePath)
	assert.Equal(t, "hi", p.Content)
}

func TestDiffRejectedTranslatesToNotification(t *testing.T) {
	editor := &fakeEditor{}
	c := New(editor, zap.NewNop())

	var method string
	c.OnDiffOutcome(func(n rpc.Notification) {
		method = n.Method
	})

	editor.emit(ideevent.Event{DiffRejected: &ideevent.DiffRejected{FilePath: "/b.go"}})

	assert.Equal(t, NotifyDiffRejected, method)
}

func TestDisposeStopsOutcomeDelivery(t *testing.T) {
	editor := &fakeEditor{}
	c := New(editor, zap.NewNop())

	calls := 0
	dispose := c.OnDiffOutcome(func(n rpc.Notification) { calls++ })
	dispose()

	editor.emit(ideevent.Event{DiffAccepted: &ideevent.DiffAccepted{FilePath: "/a.go"}})
	assert.Equal(t, 0, calls)
}
