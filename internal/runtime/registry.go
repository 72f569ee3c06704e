// Package runtime keeps live conversational instances. The registry
// guarantees at most one instance per (user, thread) pair, initializes
// instances lazily from the personalization profile and stored history,
// and evicts the least recently used pair when the cap is reached.
package runtime

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kalambet/enquiro/internal/agent"
	"github.com/kalambet/enquiro/internal/personalize"
	"github.com/kalambet/enquiro/internal/storage"
)

// Profiles is the slice of the personalization engine the registry needs.
type Profiles interface {
	LoadOrCreate(userID, roleOverride string) (*personalize.Profile, error)
	DefaultRole() string
}

// MessageStore rehydrates thread history. Implemented by storage.Store.
type MessageStore interface {
	RecentMessages(threadID string, limit int) ([]storage.Message, error)
}

// AgentBuilder constructs the agent for a freshly initialized instance.
type AgentBuilder func(p agent.Params) *agent.Agent

// Options bound registry behaviour. Zero values fall back to defaults.
type Options struct {
	MaxInstances  int
	WindowSize    int
	MaxWindowSize int
	TopInterests  int
}

func (o Options) withDefaults() Options {
	if o.MaxInstances <= 0 {
		o.MaxInstances = 256
	}
	if o.WindowSize <= 0 {
		o.WindowSize = 10
	}
	if o.MaxWindowSize <= 0 {
		o.MaxWindowSize = 200
	}
	if o.TopInterests <= 0 {
		o.TopInterests = 5
	}
	return o
}

type instanceKey struct {
	userID   string
	threadID string
}

type entry struct {
	inst *Instance
	elem *list.Element
}

// Registry owns all live instances.
type Registry struct {
	profiles Profiles
	messages MessageStore
	build    AgentBuilder
	opts     Options

	mu        sync.RWMutex
	instances map[instanceKey]*entry
	lru       *list.List // front = most recently used, values are instanceKey

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex

	inits atomic.Int64
}

func NewRegistry(profiles Profiles, messages MessageStore, build AgentBuilder, opts Options) *Registry {
	return &Registry{
		profiles:  profiles,
		messages:  messages,
		build:     build,
		opts:      opts.withDefaults(),
		instances: make(map[instanceKey]*entry),
		lru:       list.New(),
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Ensure returns the live instance for (userID, threadID), creating it
// if needed. Concurrent calls for the same pair initialize exactly once.
// roleOverride, when non-empty, updates the stored profile role.
func (r *Registry) Ensure(ctx context.Context, userID, threadID, roleOverride string) (*Instance, error) {
	k := instanceKey{userID: userID, threadID: threadID}

	// Fast path: instance already live.
	r.mu.RLock()
	e, ok := r.instances[k]
	r.mu.RUnlock()
	if ok {
		r.touch(e)
		return e.inst, nil
	}

	// Slow path: serialize per user, then re-check.
	lock := r.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	e, ok = r.instances[k]
	r.mu.RUnlock()
	if ok {
		r.touch(e)
		return e.inst, nil
	}

	inst := r.initialize(ctx, userID, threadID, roleOverride)
	r.insert(k, inst)
	r.inits.Add(1)
	return inst, nil
}

// Len reports the number of live instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Initializations reports how many instances have been created. Eviction
// does not decrement it.
func (r *Registry) Initializations() int64 {
	return r.inits.Load()
}

func (r *Registry) lockFor(userID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.userLocks[userID] = l
	}
	return l
}

// initialize builds an instance from the profile and stored history.
// Storage failures degrade to defaults; a conversation must start even
// when the persistence layer is unhealthy.
func (r *Registry) initialize(ctx context.Context, userID, threadID, roleOverride string) *Instance {
	prof, err := r.profiles.LoadOrCreate(userID, roleOverride)
	if err != nil {
		slog.Warn("profile load failed, starting with defaults", "user_id", userID, "error", err)
		role := roleOverride
		if role == "" {
			role = r.profiles.DefaultRole()
		}
		prof = personalize.NewProfile(role)
	}

	topTech := personalize.TopK(prof.TechnologyInterest, r.opts.TopInterests)
	topDomain := personalize.TopK(prof.DomainInterest, r.opts.TopInterests)

	inst := &Instance{
		UserID:          userID,
		ThreadID:        threadID,
		Role:            prof.Role,
		TopTechnologies: topTech,
		TopDomains:      topDomain,
		Window:          NewWindow(r.opts.MaxWindowSize),
	}
	inst.Agent = r.build(agent.Params{
		UserID:          userID,
		Role:            prof.Role,
		Tone:            dominantLabel(prof.ToneScore),
		Verbosity:       dominantLabel(prof.VerbosityScore),
		TopTechnologies: topTech,
		TopDomains:      topDomain,
	})

	// Seed the shortlist from the profile's recent queries.
	for _, q := range tail(prof.RecentQueries, recentShortlist) {
		inst.NoteQuery(q)
	}

	r.rehydrate(ctx, inst)
	return inst
}

func (r *Registry) rehydrate(_ context.Context, inst *Instance) {
	msgs, err := r.messages.RecentMessages(inst.ThreadID, r.opts.WindowSize)
	if err != nil {
		slog.Warn("history rehydration failed, starting with empty window",
			"thread_id", inst.ThreadID, "error", err)
		return
	}
	for _, m := range msgs {
		inst.Window.Append(m.Role, m.Content)
	}
}

func (r *Registry) insert(k instanceKey, inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elem := r.lru.PushFront(k)
	r.instances[k] = &entry{inst: inst, elem: elem}

	for len(r.instances) > r.opts.MaxInstances {
		oldest := r.lru.Back()
		if oldest == nil {
			break
		}
		old := oldest.Value.(instanceKey)
		r.lru.Remove(oldest)
		delete(r.instances, old)
		slog.Debug("evicted least recently used instance",
			"user_id", old.userID, "thread_id", old.threadID)
	}
}

func (r *Registry) touch(e *entry) {
	r.mu.Lock()
	r.lru.MoveToFront(e.elem)
	r.mu.Unlock()
}

// dominantLabel picks the strictly highest-weighted category; ties and
// empty maps yield no preference.
func dominantLabel(scores map[string]float64) string {
	var best string
	var bestScore float64
	tied := false
	for label, score := range scores {
		switch {
		case score > bestScore:
			best, bestScore, tied = label, score, false
		case score == bestScore && bestScore > 0:
			tied = true
		}
	}
	if tied || best == "neutral" {
		return ""
	}
	return best
}

func tail(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
