package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"

	// Pipeline fields
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldFrame     = "frame"
	FieldFrames    = "frames"
	FieldMorphMode = "morph_mode"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath     = "path"
	FieldSource   = "source"
	FieldTarget   = "target"
	FieldCategory = "category"
)
