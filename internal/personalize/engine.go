package personalize

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/enquiro/internal/classifier"
	"github.com/kalambet/enquiro/internal/storage"
)

// Options are the tuning knobs for the scoring scheme.
type Options struct {
	ToneThreshold      float64
	VerbosityThreshold float64
	ToneIncrement      float64
	ToneDecay          float64
	VerbosityIncrement float64
	VerbosityDecay     float64
	InterestIncrement  float64
	InterestDecay      float64
	MaxRecentQueries   int
	MaxInterestItems   int
	DefaultRole        string
}

// DefaultOptions returns the scheme's stock tuning.
func DefaultOptions() Options {
	return Options{
		ToneThreshold:      0.3,
		VerbosityThreshold: 0.2,
		ToneIncrement:      0.15,
		ToneDecay:          0.85,
		VerbosityIncrement: 0.15,
		VerbosityDecay:     0.8,
		InterestIncrement:  0.2,
		InterestDecay:      0.95,
		MaxRecentQueries:   5,
		MaxInterestItems:   20,
		DefaultRole:        "general user",
	}
}

// Engine owns per-user adaptive state: tone and verbosity axis weights
// updated with an exponential-moving-average scheme, bounded interest maps,
// and a capped recent-query list. Profiles are cached in memory and
// persisted (upsert) after every mutation.
//
// The engine serializes mutations per user with its own lock map, so the
// background update path is safe to call from any goroutine.
type Engine struct {
	store Store
	opts  Options

	mu       sync.Mutex
	users    map[string]*Profile
	userLock map[string]*sync.Mutex
}

// NewEngine creates an Engine over the given profile store.
func NewEngine(store Store, opts Options) *Engine {
	if opts.MaxRecentQueries <= 0 {
		opts.MaxRecentQueries = DefaultOptions().MaxRecentQueries
	}
	if opts.MaxInterestItems <= 0 {
		opts.MaxInterestItems = DefaultOptions().MaxInterestItems
	}
	if opts.DefaultRole == "" {
		opts.DefaultRole = DefaultOptions().DefaultRole
	}
	return &Engine{
		store:    store,
		opts:     opts,
		users:    make(map[string]*Profile),
		userLock: make(map[string]*sync.Mutex),
	}
}

// DefaultRole exposes the configured fallback role label.
func (e *Engine) DefaultRole() string {
	return e.opts.DefaultRole
}

func (e *Engine) lockFor(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.userLock[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLock[userID] = l
	}
	return l
}

// LoadOrCreate resolves the profile for userID, creating and persisting a
// default one on first reference. A non-empty roleOverride updates the
// stored role; otherwise the stored role is kept. The returned profile is a
// copy safe for concurrent use.
func (e *Engine) LoadOrCreate(userID, roleOverride string) (*Profile, error) {
	l := e.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	p, err := e.resolveLocked(userID)
	if err != nil {
		return nil, err
	}

	if roleOverride != "" && roleOverride != p.Role {
		p.Role = roleOverride
		e.persistLocked(userID, p)
	}
	return p.Clone(), nil
}

// resolveLocked returns the cached or loaded profile, creating a default
// when the store has no row. Caller holds the per-user lock.
func (e *Engine) resolveLocked(userID string) (*Profile, error) {
	e.mu.Lock()
	p, ok := e.users[userID]
	e.mu.Unlock()
	if ok {
		return p, nil
	}

	rec, err := e.store.GetProfile(userID)
	switch {
	case err == nil:
		p = fromRecord(rec, e.opts.DefaultRole)
	case errors.Is(err, storage.ErrNotFound):
		p = NewProfile(e.opts.DefaultRole)
		e.persistLocked(userID, p)
	default:
		return nil, err
	}

	e.mu.Lock()
	e.users[userID] = p
	e.mu.Unlock()
	return p, nil
}

// Update applies one query's worth of signal to the user's profile and
// persists the result. Storage failures are logged, never propagated —
// personalization is best-effort.
func (e *Engine) Update(userID, query string, sig classifier.Signal) {
	l := e.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	p, err := e.resolveLocked(userID)
	if err != nil {
		slog.Error("profile resolution failed, skipping personalization update", "user_id", userID, "error", err)
		return
	}

	p.RecentQueries = append(p.RecentQueries, query)
	if len(p.RecentQueries) > e.opts.MaxRecentQueries {
		p.RecentQueries = p.RecentQueries[len(p.RecentQueries)-e.opts.MaxRecentQueries:]
	}

	tone, toneExplicit := resolveAxis(query, sig.Tone, p.ToneScore, toneTriggers, e.opts.ToneThreshold)
	verbosity, verbExplicit := resolveAxis(query, sig.Verbosity, p.VerbosityScore, verbosityTriggers, e.opts.VerbosityThreshold)

	updateScores(p.ToneScore, tone, e.opts.ToneIncrement, e.opts.ToneDecay, toneExplicit)
	updateScores(p.VerbosityScore, verbosity, e.opts.VerbosityIncrement, e.opts.VerbosityDecay, verbExplicit)

	e.updateInterests(p, sig)

	e.persistLocked(userID, p)

	slog.Debug("profile updated",
		"user_id", userID,
		"tone", tone, "tone_explicit", toneExplicit,
		"verbosity", verbosity, "verbosity_explicit", verbExplicit,
	)
}

// Snapshot returns a copy of the user's current profile without mutating it.
func (e *Engine) Snapshot(userID string) (*Profile, error) {
	l := e.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	p, err := e.resolveLocked(userID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (e *Engine) persistLocked(userID string, p *Profile) {
	rec, err := toRecord(userID, p)
	if err != nil {
		slog.Error("encoding profile failed", "user_id", userID, "error", err)
		return
	}
	if err := e.store.UpsertProfile(rec); err != nil {
		slog.Error("persisting profile failed", "user_id", userID, "error", err)
	}
}

// --- resolution & scoring ---

// trigger maps an explicit keyword in the raw query to its category.
type trigger struct {
	word     string
	category string
}

// Trigger order matters: the first match wins.
var toneTriggers = []trigger{
	{"formal", "formal"},
	{"casual", "casual"},
	{"neutral", "neutral"},
}

var verbosityTriggers = []trigger{
	{"brief", "brief"},
	{"short", "brief"},
	{"detailed", "detailed"},
	{"long", "detailed"},
	{"neutral", "neutral"},
}

// resolveAxis picks the category for one axis. An explicit trigger word in
// the query wins outright. Otherwise: all-zero weights fall back to neutral;
// a clear historical leader (gap ≥ threshold) wins; close scores defer to
// the classifier label unless that label is itself neutral.
func resolveAxis(query, label string, scores map[string]float64, triggers []trigger, threshold float64) (string, bool) {
	q := strings.ToLower(query)
	for _, t := range triggers {
		if strings.Contains(q, t.word) {
			return t.category, true
		}
	}

	if allZero(scores) {
		return "neutral", false
	}

	best, gap := topWithGap(scores)
	if gap >= threshold {
		return best, false
	}
	if label != "" && label != "neutral" {
		return label, false
	}
	return best, false
}

func allZero(scores map[string]float64) bool {
	for _, v := range scores {
		if v != 0 {
			return false
		}
	}
	return true
}

// topWithGap returns the highest-weighted category and its lead over the
// second highest. Tie winners are unspecified.
func topWithGap(scores map[string]float64) (string, float64) {
	var best string
	var top, second float64
	first := true
	for k, v := range scores {
		switch {
		case first || v > top:
			if !first {
				second = top
			}
			best, top = k, v
			first = false
		case v > second:
			second = v
		}
	}
	return best, top - second
}

// updateScores decays every weight geometrically, then boosts the chosen
// category. Explicit signal counts double.
func updateScores(scores map[string]float64, chosen string, increment, decay float64, explicit bool) {
	for k := range scores {
		scores[k] *= decay
	}
	boost := increment
	if explicit {
		boost *= 2
	}
	scores[chosen] += boost
}

// updateInterests decays both interest maps, boosts every extracted term
// (creating new entries at the increment), and prunes back to the
// configured maximum by weight.
func (e *Engine) updateInterests(p *Profile, sig classifier.Signal) {
	for k := range p.TechnologyInterest {
		p.TechnologyInterest[k] *= e.opts.InterestDecay
	}
	for k := range p.DomainInterest {
		p.DomainInterest[k] *= e.opts.InterestDecay
	}

	for _, tech := range sig.Technologies {
		p.TechnologyInterest[tech] += e.opts.InterestIncrement
	}
	for _, dom := range sig.Domains {
		p.DomainInterest[dom] += e.opts.InterestIncrement
	}

	p.TechnologyInterest = pruneInterests(p.TechnologyInterest, e.opts.MaxInterestItems)
	p.DomainInterest = pruneInterests(p.DomainInterest, e.opts.MaxInterestItems)
}

// pruneInterests keeps only the top max entries by weight. Order of discard
// among equal weights is unspecified.
func pruneInterests(m map[string]float64, max int) map[string]float64 {
	if len(m) <= max {
		return m
	}
	kept := TopK(m, max)
	out := make(map[string]float64, max)
	for _, k := range kept {
		out[k] = m[k]
	}
	return out
}
