package runtime

import (
	"sync"

	"github.com/kalambet/enquiro/internal/agent"
)

// recentShortlist caps the per-instance shortlist of queries injected
// into turn context. The full recent-query history lives on the profile.
const recentShortlist = 3

// Instance is a live conversational handle for one (user, thread) pair.
// The identity fields and agent are fixed at creation; the window and
// recent-query shortlist evolve per turn.
type Instance struct {
	UserID   string
	ThreadID string
	Role     string

	TopTechnologies []string
	TopDomains      []string

	Agent  *agent.Agent
	Window *Window

	mu     sync.Mutex
	recent []string
}

// NoteQuery records a query on the shortlist, keeping only the newest
// recentShortlist entries.
func (i *Instance) NoteQuery(query string) {
	if query == "" {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.recent = append(i.recent, query)
	if len(i.recent) > recentShortlist {
		i.recent = append(i.recent[:0:0], i.recent[len(i.recent)-recentShortlist:]...)
	}
}

// RecentQueries returns a copy of the shortlist, oldest first.
func (i *Instance) RecentQueries() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.recent))
	copy(out, i.recent)
	return out
}
