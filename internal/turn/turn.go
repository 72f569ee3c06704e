// Package turn orchestrates a single conversational exchange: it ensures
// the live instance, persists the transcript, runs the agent, distills
// the reply, and schedules the background personalization update.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/enquiro/internal/classifier"
	"github.com/kalambet/enquiro/internal/runtime"
	"github.com/kalambet/enquiro/internal/storage"
)

// fallbackReply is returned when the model pipeline fails; the turn still
// completes so the conversation can continue.
const fallbackReply = "I'm sorry, I couldn't process your request at this time."

// MessageStore persists transcript entries. Implemented by storage.Store.
type MessageStore interface {
	AppendMessage(m storage.Message) error
}

// SignalSource extracts personalization signals from a query.
// Implemented by classifier.Classifier.
type SignalSource interface {
	Classify(ctx context.Context, query string) classifier.Signal
}

// ProfileUpdater folds a signal into a user's profile. Implemented by
// personalize.Engine.
type ProfileUpdater interface {
	Update(userID, query string, sig classifier.Signal)
}

// Result is the outcome of one turn.
type Result struct {
	ThreadID string
	Message  string
	FileName string
	FilePath string
	Role     string

	SetupTime time.Duration
	TotalTime time.Duration
}

// Orchestrator wires the registry, the classifier, and the profile engine
// into the per-turn pipeline.
type Orchestrator struct {
	registry *runtime.Registry
	signals  SignalSource
	profiles ProfileUpdater
	store    MessageStore

	updates sync.WaitGroup
}

func NewOrchestrator(reg *runtime.Registry, signals SignalSource, profiles ProfileUpdater, store MessageStore) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		signals:  signals,
		profiles: profiles,
		store:    store,
	}
}

// HandleTurn processes one user message. An empty threadID starts a new
// thread. Model failures are converted into a fallback reply rather than
// an error; the error return covers only invalid input.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, threadID, message, role string) (*Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("turn: empty user id")
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("turn: empty message")
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}

	start := time.Now()

	inst, err := o.registry.Ensure(ctx, userID, threadID, role)
	if err != nil {
		return nil, fmt.Errorf("turn: ensure instance: %w", err)
	}

	o.persist(storage.Message{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		UserID:   userID,
		Role:     "user",
		Content:  message,
	})
	inst.Window.Append("user", message)
	inst.NoteQuery(message)

	setup := time.Since(start)

	steps, execErr := inst.Agent.Execute(ctx, dynamicContext(inst), inst.Window.Snapshot())
	reply, ref, hasRef := distill(steps)
	if execErr != nil {
		slog.Error("turn execution failed", "user_id", userID, "thread_id", threadID, "error", execErr)
		if reply == "" {
			reply = fallbackReply
		}
	}
	if reply == "" {
		reply = fallbackReply
	}

	assistant := storage.Message{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		UserID:   userID,
		Role:     "assistant",
		Content:  reply,
	}
	if hasRef {
		assistant.FileName = ref.Name
		assistant.FilePath = ref.Path
	}
	o.persist(assistant)
	inst.Window.Append("assistant", reply)

	o.scheduleProfileUpdate(ctx, userID, message)

	res := &Result{
		ThreadID:  threadID,
		Message:   reply,
		Role:      inst.Role,
		SetupTime: setup,
		TotalTime: time.Since(start),
	}
	if hasRef {
		res.FileName = ref.Name
		res.FilePath = ref.Path
	}
	return res, nil
}

// Flush waits for in-flight background profile updates. Used on shutdown
// and in tests.
func (o *Orchestrator) Flush() {
	o.updates.Wait()
}

func (o *Orchestrator) persist(m storage.Message) {
	if err := o.store.AppendMessage(m); err != nil {
		slog.Warn("message persistence failed", "thread_id", m.ThreadID, "role", m.Role, "error", err)
	}
}

// scheduleProfileUpdate runs classification and the profile fold outside
// the turn's latency path. The update outlives the request context; a
// panic in the classifier must not take the server down.
func (o *Orchestrator) scheduleProfileUpdate(ctx context.Context, userID, message string) {
	bg := context.WithoutCancel(ctx)
	o.updates.Add(1)
	go func() {
		defer o.updates.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("profile update panicked", "user_id", userID,
					"panic", r, "stack", string(debug.Stack()))
			}
		}()
		sig := o.signals.Classify(bg, message)
		o.profiles.Update(userID, message, sig)
	}()
}

// dynamicContext renders the per-turn system context block from instance
// state. The static persona lives in the agent's own system prompt.
func dynamicContext(inst *runtime.Instance) string {
	var sb strings.Builder
	sb.WriteString("Dynamic context:\n")
	fmt.Fprintf(&sb, "User ID: %s\n", inst.UserID)
	fmt.Fprintf(&sb, "Role: %s\n", inst.Role)
	if recent := inst.RecentQueries(); len(recent) > 0 {
		fmt.Fprintf(&sb, "Recent queries: %s\n", strings.Join(recent, "; "))
	}
	if len(inst.TopTechnologies) > 0 {
		fmt.Fprintf(&sb, "Top technologies: %s\n", strings.Join(inst.TopTechnologies, ", "))
	}
	if len(inst.TopDomains) > 0 {
		fmt.Fprintf(&sb, "Top domains: %s\n", strings.Join(inst.TopDomains, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}
