package ctxstate

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Subscription is returned by (*Aggregator).OnDidChange. Dispose is safe
// to call from within the subscriber's own callback.
type Subscription struct {
	dispose func()
}

// Dispose cancels the subscription. Calling it more than once is a no-op.
func (s Subscription) Dispose() {
	if s.dispose != nil {
		s.dispose()
	}
}

// Aggregator maintains the open-file list with active-file, cursor, and
// selection state, and notifies subscribers of changes on a
// throttle+debounce schedule: each mutation (re)arms a trailing timer,
// and firing it invokes every subscriber exactly once with the
// post-mutation state. Subscribers are never invoked concurrently for the
// same Aggregator.
type Aggregator struct {
	logger *zap.Logger

	mu        sync.Mutex
	files     []OpenFile
	isTrusted bool
	seq       atomic.Int64

	debounce time.Duration

	timerMu sync.Mutex
	timer   *time.Timer

	notifyMu sync.Mutex // serializes subscriber invocation

	subMu     sync.Mutex
	subs      map[int]func()
	nextSubID int
}

// New constructs an Aggregator with the given debounce/throttle interval
// and initial workspace-trust flag.
func New(debounceInterval time.Duration, isTrusted bool, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		logger:    logger,
		debounce:  debounceInterval,
		isTrusted: isTrusted,
		subs:      make(map[int]func()),
	}
}

// State returns a copy-on-read snapshot; callers may retain and inspect
// it freely without racing the aggregator's internal mutation path.
func (a *Aggregator) State() IdeContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return IdeContext{WorkspaceState: WorkspaceState{
		OpenFiles: FileList(a.files).clone(),
		IsTrusted: a.isTrusted,
	}}
}

// OnDidChange registers cb to be invoked (with no arguments; it should
// read State()) after the debounce window following the last mutation.
func (a *Aggregator) OnDidChange(cb func()) Subscription {
	a.subMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = cb
	a.subMu.Unlock()

	return Subscription{dispose: func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}}
}

// IngestBufferEnter handles a buffer_enter event: the editor focused
// path. Any existing entry for path is removed, the previously-active
// entry (if any) is demoted, and a new active entry is inserted at the
// front. On overflow the oldest entry (necessarily non-active, since
// exactly one entry is active and it is always the one just inserted) is
// dropped.
func (a *Aggregator) IngestBufferEnter(path string) {
	if !isAbsolutePath(path) {
		a.logger.Debug("dropping buffer_enter with non-absolute path", zap.String("path", path))
		return
	}

	a.mu.Lock()
	a.files = removePath(a.files, path)
	demoteActive(a.files)
	entry := OpenFile{
		Path:      path,
		Timestamp: a.seq.Add(1),
		IsActive:  true,
	}
	a.files = append([]OpenFile{entry}, a.files...)
	if len(a.files) > MaxFiles {
		a.files = a.files[:MaxFiles]
	}
	a.mu.Unlock()

	a.scheduleNotify()
}

// IngestCursorMoved handles a cursor_moved event, updating the active
// file's cursor if one exists.
func (a *Aggregator) IngestCursorMoved(line, col int) {
	a.mu.Lock()
	idx := activeIndex(a.files)
	if idx >= 0 {
		a.files[idx].Cursor = &Cursor{Line: line, Character: col}
	}
	a.mu.Unlock()

	if idx >= 0 {
		a.scheduleNotify()
	}
}

// IngestVisualChanged handles a visual_changed event, updating the
// active file's selection if one exists.
func (a *Aggregator) IngestVisualChanged(text string) {
	a.mu.Lock()
	idx := activeIndex(a.files)
	if idx >= 0 {
		a.files[idx].SelectedText = truncateSelection(text)
	}
	a.mu.Unlock()

	if idx >= 0 {
		a.scheduleNotify()
	}
}

// IngestBufferClosed handles a buffer_closed event, removing any entry
// for path.
func (a *Aggregator) IngestBufferClosed(path string) {
	if !isAbsolutePath(path) {
		a.logger.Debug("dropping buffer_closed with non-absolute path", zap.String("path", path))
		return
	}

	a.mu.Lock()
	before := len(a.files)
	a.files = removePath(a.files, path)
	changed := len(a.files) != before
	a.mu.Unlock()

	if changed {
		a.scheduleNotify()
	}
}

// scheduleNotify (re)arms the debounce timer. Each call resets the
// deadline, so a burst of mutations yields exactly one firing, shortly
// after the last mutation in the burst.
func (a *Aggregator) scheduleNotify() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.debounce, a.fire)
}

// fire invokes every subscriber once, sequentially, so subscribers are
// never called concurrently for this Aggregator.
func (a *Aggregator) fire() {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.subMu.Lock()
	callbacks := make([]func(), 0, len(a.subs))
	for _, cb := range a.subs {
		callbacks = append(callbacks, cb)
	}
	a.subMu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func isAbsolutePath(path string) bool {
	return path != "" && filepath.IsAbs(path)
}

// removePath returns files with any entry matching path removed,
// preserving relative order of the rest.
func removePath(files []OpenFile, path string) []OpenFile {
	out := files[:0:0]
	for _, f := range files {
		if f.Path != path {
			out = append(out, f)
		}
	}
	return out
}

// demoteActive clears IsActive/Cursor/SelectedText on whichever entry is
// currently active, if any.
func demoteActive(files []OpenFile) {
	idx := activeIndex(files)
	if idx < 0 {
		return
	}
	files[idx].IsActive = false
	files[idx].Cursor = nil
	files[idx].SelectedText = nil
}

func activeIndex(files []OpenFile) int {
	for i, f := range files {
		if f.IsActive {
			return i
		}
	}
	return -1
}
