package output

import (
	"fmt"
	"io"
	"sync"
)

// Notifier prints transient messages, one per line, the way toasts appear
// in a browser. It is safe for concurrent use.
type Notifier struct {
	mu      sync.Mutex
	w       io.Writer
	quiet   bool
	history []Note
}

// Note is one message shown by a Notifier.
type Note struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Note levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

// NewNotifier creates a notifier writing to w, usually stderr.
func NewNotifier(w io.Writer) *Notifier {
	return &Notifier{w: w}
}

// SetQuiet stops printing. Messages are still recorded.
func (n *Notifier) SetQuiet(quiet bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quiet = quiet
}

// Info shows an informational message.
func (n *Notifier) Info(msg string) { n.show(LevelInfo, "ℹ️  ", msg) }

// Success shows a success message.
func (n *Notifier) Success(msg string) { n.show(LevelSuccess, "✅ ", msg) }

// Error shows an error message.
func (n *Notifier) Error(msg string) { n.show(LevelError, "❌ ", msg) }

// Notes returns every message shown so far.
func (n *Notifier) Notes() []Note {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Note(nil), n.history...)
}

func (n *Notifier) show(level, prefix, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, Note{Level: level, Message: msg})
	if n.quiet || n.w == nil {
		return
	}
	_, _ = fmt.Fprintln(n.w, prefix+msg)
}
