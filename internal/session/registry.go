package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xaimorph/morphd/internal/log"
	"github.com/xaimorph/morphd/internal/metrics"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

type record struct {
	id         string
	state      State
	createdAt  time.Time
	source     string
	target     string
	errMsg     string
	result     *Result
	terminalAt time.Time
	plog       *ProgressLog
}

// Registry is the process-wide session table. It is the only state shared
// across concurrent jobs; create/get/evict are serialized here. Session ids
// are UUIDs: unpredictable and unique for the registry's lifetime.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*record

	ttl   time.Duration
	clock func() time.Time
}

// NewRegistry builds a registry retaining terminal sessions for ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*record),
		ttl:      ttl,
		clock:    time.Now,
	}
}

// Create allocates a fresh session in state waiting and returns its handle.
// Only the job running this session may use the handle to mutate it.
func (r *Registry) Create(source, target string) *Handle {
	rec := &record{
		id:        uuid.New().String(),
		state:     StateWaiting,
		createdAt: r.clock(),
		source:    source,
		target:    target,
		plog:      NewProgressLog(),
	}
	r.mu.Lock()
	r.sessions[rec.id] = rec
	r.mu.Unlock()

	metrics.SessionsActive.Inc()
	return &Handle{registry: r, rec: rec}
}

// Get returns a read-only snapshot of a session.
func (r *Registry) Get(id string) (View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	if !ok {
		return View{}, ErrNotFound
	}
	return View{
		ID:        rec.id,
		State:     rec.state,
		CreatedAt: rec.createdAt,
		Source:    rec.source,
		Target:    rec.target,
		Error:     rec.errMsg,
		Result:    rec.result,
	}, nil
}

// Attach returns a progress reader for the session. Readers attached before
// eviction stay valid after it: the log outlives its registry entry.
func (r *Registry) Attach(id string) (*Reader, error) {
	r.mu.RLock()
	rec, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return rec.plog.Reader(), nil
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RunJanitor evicts terminal sessions past the retention window until ctx
// ends. Eviction frequency is a fraction of the TTL so retention overshoot
// stays small.
func (r *Registry) RunJanitor(ctx context.Context) {
	logger := log.WithComponent("session")
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := r.evictExpired(); evicted > 0 {
				logger.Info().Int("evicted", evicted).Msg("evicted expired sessions")
			}
		}
	}
}

func (r *Registry) evictExpired() int {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, rec := range r.sessions {
		if rec.state.IsTerminal() && now.Sub(rec.terminalAt) >= r.ttl {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.SessionsActive.Sub(float64(evicted))
		metrics.SessionsEvictedTotal.Add(float64(evicted))
	}
	return evicted
}

// Handle is the single-writer mutator for one session, owned by the job's
// sequencer. All mutations validate the pipeline's stage order.
type Handle struct {
	registry *Registry
	rec      *record
}

// ID returns the session identifier.
func (h *Handle) ID() string { return h.rec.id }

// Source returns the source image reference.
func (h *Handle) Source() string { return h.rec.source }

// Target returns the target image reference.
func (h *Handle) Target() string { return h.rec.target }

// State returns the session's current pipeline state.
func (h *Handle) State() State {
	h.registry.mu.RLock()
	defer h.registry.mu.RUnlock()
	return h.rec.state
}

// Transition advances the session to the next pipeline state. Skipping
// states or moving out of a terminal state is a programming error and is
// rejected.
func (h *Handle) Transition(to State) error {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()

	from := h.rec.state
	if from.IsTerminal() {
		return fmt.Errorf("invalid transition: session %s is terminal (%s)", h.rec.id, from)
	}
	if transitions[from] != to {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	h.rec.state = to
	return nil
}

// Progress appends a stage progress event without changing state.
func (h *Handle) Progress(stage string, current, total int) error {
	return h.rec.plog.Append(Event{Kind: EventStage, Stage: stage, Current: current, Total: total})
}

// Complete transitions to the terminal complete state, stores the immutable
// result, and appends the terminal event.
func (h *Handle) Complete(res *Result) error {
	h.registry.mu.Lock()
	if h.rec.state != StateExplaining {
		state := h.rec.state
		h.registry.mu.Unlock()
		return fmt.Errorf("invalid transition: %s -> %s", state, StateComplete)
	}
	h.rec.state = StateComplete
	h.rec.result = res
	h.rec.terminalAt = h.registry.clock()
	h.registry.mu.Unlock()

	return h.rec.plog.Append(Event{Kind: EventComplete, Result: res})
}

// Fail transitions to the terminal error state from any non-terminal state
// and appends the terminal event. No result is ever produced for a failed
// session.
func (h *Handle) Fail(msg string) error {
	h.registry.mu.Lock()
	if h.rec.state.IsTerminal() {
		state := h.rec.state
		h.registry.mu.Unlock()
		return fmt.Errorf("invalid transition: session already terminal (%s)", state)
	}
	h.rec.state = StateError
	h.rec.errMsg = msg
	h.rec.terminalAt = h.registry.clock()
	h.registry.mu.Unlock()

	return h.rec.plog.Append(Event{Kind: EventError, Message: msg})
}
