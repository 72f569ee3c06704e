package runtime

import (
	"sync"

	"github.com/kalambet/enquiro/internal/model"
)

// Window is a bounded, ordered view of one thread's recent messages.
// Appends past the cap drop the oldest entries.
type Window struct {
	mu   sync.Mutex
	max  int
	msgs []model.Message
}

func NewWindow(max int) *Window {
	if max <= 0 {
		max = 1
	}
	return &Window{max: max}
}

// Append adds a message, evicting from the front when full.
func (w *Window) Append(role, content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, model.Message{Role: role, Content: content})
	if len(w.msgs) > w.max {
		over := len(w.msgs) - w.max
		w.msgs = append(w.msgs[:0:0], w.msgs[over:]...)
	}
}

// Snapshot returns a copy of the current window in conversation order.
func (w *Window) Snapshot() []model.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}
