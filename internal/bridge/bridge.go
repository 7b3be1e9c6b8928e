// Package bridge wires the editor adapter, context aggregator, diff
// coordinator, session hub, HTTP front-end, and discovery publisher into
// one process and drives its startup/shutdown sequence.
package bridge

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brwse/ide-companion-bridge/internal/config"
	"github.com/brwse/ide-companion-bridge/internal/ctxstate"
	"github.com/brwse/ide-companion-bridge/internal/diffcoord"
	"github.com/brwse/ide-companion-bridge/internal/discovery"
	"github.com/brwse/ide-companion-bridge/internal/editoradapter"
	"github.com/brwse/ide-companion-bridge/internal/httpapi"
	"github.com/brwse/ide-companion-bridge/internal/ideevent"
	"github.com/brwse/ide-companion-bridge/internal/session"
)

// Bridge owns the full set of components for one process lifetime.
type Bridge struct {
	cfg    config.Config
	logger *zap.Logger

	adapter     *editoradapter.Adapter
	aggregator  *ctxstate.Aggregator
	coordinator *diffcoord.Coordinator
	hub         *session.Hub
	server      *httpapi.Server
	publisher   *discovery.Publisher

	authToken string
}

// New wires every component together. Nothing runs yet; Run starts the
// editor attach, the HTTP listener, and the discovery publish.
func New(cfg config.Config, logger *zap.Logger) *Bridge {
	adapter := editoradapter.New(logger)
	aggregator := ctxstate.New(cfg.DebounceInterval, cfg.TrustWorkspace, logger)
	coordinator := diffcoord.New(adapter, logger)
	hub := session.New(cfg.KeepAliveInterval, cfg.MaxMissedPings, logger)
	authToken := uuid.NewString()
	server := httpapi.New(hub, coordinator, aggregator, authToken, logger)
	publisher := discovery.New(logger)

	b := &Bridge{
		cfg:         cfg,
		logger:      logger,
		adapter:     adapter,
		aggregator:  aggregator,
		coordinator: coordinator,
		hub:         hub,
		server:      server,
		publisher:   publisher,
		authToken:   authToken,
	}

	adapter.OnEvent(b.routeEditorEvent)
	aggregator.OnDidChange(func() { hub.BroadcastContext(aggregator.State()) })
	coordinator.OnDiffOutcome(hub.BroadcastDiffOutcome)

	return b
}

// routeEditorEvent feeds the raw editor event stream into the context
// aggregator. Diff-outcome events are handled separately by the diff
// coordinator's own subscription to the same adapter.
func (b *Bridge) routeEditorEvent(evt ideevent.Event) {
	switch {
	case evt.BufferEnter != nil:
		b.aggregator.IngestBufferEnter(evt.BufferEnter.Path)
	case evt.CursorMoved != nil:
		b.aggregator.IngestCursorMoved(evt.CursorMoved.Line, evt.CursorMoved.Col)
	case evt.VisualChanged != nil:
		b.aggregator.IngestVisualChanged(evt.VisualChanged.SelectedText)
	case evt.BufferClosed != nil:
		b.aggregator.IngestBufferClosed(evt.BufferClosed.Path)
	}
}

// Run attaches to the editor, binds the HTTP listener, publishes
// discovery files, and blocks until ctx is cancelled or a component
// fails. On return after a successful start, the HTTP server has shut
// down, every session is destroyed, and the discovery files are removed;
// the editor connection is not closed here.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.adapter.Attach(ctx, b.cfg.EditorSocketPath); err != nil {
		return fmt.Errorf("attaching to editor: %w", err)
	}

	ln, err := b.server.Listen()
	if err != nil {
		return fmt.Errorf("binding HTTP listener: %w", err)
	}

	workspacePath := b.cfg.WorkspacePath
	if workspacePath == "" {
		if wd, err := os.Getwd(); err == nil {
			workspacePath = wd
		}
	}

	var ideInfo *discovery.IdeInfo
	if b.cfg.IDEName != "" {
		ideInfo = &discovery.IdeInfo{Name: b.cfg.IDEName, DisplayName: b.cfg.IDEName}
	}

	if err := b.publisher.Publish(os.Getpid(), b.server.Port(), workspacePath, b.authToken, b.cfg.IDEName, ideInfo); err != nil {
		return fmt.Errorf("publishing discovery files: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.server.Serve(gCtx, ln)
	})
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return nil
		case <-b.adapter.Done():
			b.logger.Info("editor connection closed")
			return nil
		}
	})

	err = g.Wait()

	b.hub.DestroyAll()
	b.publisher.Cleanup()

	return err
}
