// Package ideevent defines the fixed event vocabulary that flows from the
// editor RPC adapter up into the context aggregator and diff coordinator.
//
// The wire payloads from the editor are schemaless JSON-RPC notification
// params. This package is the single narrow-schema boundary: a method name
// is mapped to exactly one typed variant, and anything that doesn't parse
// into its variant is dropped rather than handed to the core as an
// "unknown"-typed value.
package ideevent

// Method names the editor RPC adapter (C1) listens for, fixed by the
// editor plugin side.
const (
	MethodBufferEnter    = "buffer_enter"
	MethodCursorMoved    = "cursor_moved"
	MethodVisualChanged  = "visual_changed"
	MethodBufferClosed   = "buffer_closed"
	MethodDiffAccepted   = "diff_accepted"
	MethodDiffRejected   = "diff_rejected"
)

// Event is the typed union of everything C1 can emit upward. Exactly one
// of the Buffer*/Cursor*/Visual*/Diff* fields is populated, matching
// Method.
type Event struct {
	Method string

	BufferEnter   *BufferEnter
	CursorMoved   *CursorMoved
	VisualChanged *VisualChanged
	BufferClosed  *BufferClosed
	DiffAccepted  *DiffAccepted
	DiffRejected  *DiffRejected
}

// BufferEnter reports that the editor focused a buffer.
type BufferEnter struct {
	Path  string `json:"path"`
	Bufnr int    `json:"bufnr"`
}

// CursorMoved reports a cursor position change in the active buffer.
// Both fields are 1-indexed per the editor RPC convention.
type CursorMoved struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// VisualChanged reports a visual selection update in the active buffer.
type VisualChanged struct {
	SelectedText string `json:"selectedText"`
}

// BufferClosed reports that a buffer was deleted.
type BufferClosed struct {
	Path string `json:"path"`
}

// DiffAccepted reports that the user accepted a pending diff. Content is
// the editor's final, possibly user-edited, text.
type DiffAccepted struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// DiffRejected reports that the user rejected a pending diff.
type DiffRejected struct {
	FilePath string `json:"filePath"`
}
