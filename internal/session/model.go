// Package session owns per-job state: the registry mapping session ids to
// job status, the append-only progress log each job writes to, and the
// immutable result payload.
package session

import "time"

// State is the client-visible lifecycle of one morph job.
type State string

const (
	StateWaiting    State = "waiting"
	StateLoading    State = "loading"
	StateDetecting  State = "detecting"
	StateMorphing   State = "morphing"
	StateExplaining State = "explaining"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// IsTerminal returns true if the state is a final state.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateError
}

// transitions is the strict forward order of the pipeline. Error is reachable
// from any non-terminal state and is handled separately.
var transitions = map[State]State{
	StateWaiting:    StateLoading,
	StateLoading:    StateDetecting,
	StateDetecting:  StateMorphing,
	StateMorphing:   StateExplaining,
	StateExplaining: StateComplete,
}

// EventKind tags the progress event union.
type EventKind string

const (
	EventStage    EventKind = "stage"
	EventError    EventKind = "error"
	EventComplete EventKind = "complete"
)

// Event is one unit of a session's append-only progress stream.
// Exactly one of the kind-specific field groups is meaningful.
type Event struct {
	Kind EventKind `json:"kind"`

	// Stage events
	Stage   string `json:"stage,omitempty"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`

	// Error events
	Message string `json:"error,omitempty"`

	// Complete events
	Result *Result `json:"result,omitempty"`
}

// IsTerminal reports whether no event may follow this one.
func (e Event) IsTerminal() bool {
	return e.Kind == EventError || e.Kind == EventComplete
}

// TimelineEntry summarizes one frame of the analysis.
type TimelineEntry struct {
	FrameIndex int     `json:"frame_index"`
	Alpha      float64 `json:"alpha"`
	Position   string  `json:"position"` // "Start (100% Source)", "25%", ...
	Label      string  `json:"predicted_label"`
	Confidence float64 `json:"confidence"`
}

// Summary aggregates the classifier's behavior across the whole morph.
type Summary struct {
	UniqueClasses []string `json:"unique_classes"`
	ClassChanges  int      `json:"num_class_changes"`
	DominantClass string   `json:"dominant_class"`
}

// Result is the immutable final payload of a completed session.
type Result struct {
	SessionID      string          `json:"session_id"`
	MorphVideo     string          `json:"morph_video"`
	AttentionVideo string          `json:"gradcam_video"`
	MorphMode      string          `json:"morph_type"`
	FrameCount     int             `json:"num_frames"`
	Timeline       []TimelineEntry `json:"timeline"`
	Summary        Summary         `json:"summary"`
}

// View is a read-only snapshot of a session for status queries.
type View struct {
	ID        string    `json:"session_id"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Error     string    `json:"error,omitempty"`
	Result    *Result   `json:"result,omitempty"`
}
