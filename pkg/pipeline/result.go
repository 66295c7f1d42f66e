package pipeline

import "context"

// StageResult is the only way a stage influences the run state. Updates is a
// partial view over schema fields; Failures are appended to the run's
// failures field regardless of which fields the stage updated.
type StageResult struct {
	Updates  map[string]any
	Failures []FailureRecord
}

// Handler is one stage's body. It receives an immutable snapshot of the run
// state and must never retain or mutate it; all effects travel back through
// the returned StageResult.
type Handler func(ctx context.Context, state StateView) StageResult

// StateView is a read-only snapshot of the run state taken at the moment a
// stage is launched. Dependency edges guarantee the snapshot already holds
// the merged output of every declared predecessor.
type StateView struct {
	values map[string]any
}

// Get returns the field's current value.
func (v StateView) Get(field string) (any, bool) {
	val, ok := v.values[field]

	return val, ok
}

// GetString returns the field coerced to string, or "" when absent or of
// another type.
func (v StateView) GetString(field string) string {
	s, _ := v.values[field].(string)

	return s
}

// GetStrings returns the field coerced to []string, or nil.
func (v StateView) GetStrings(field string) []string {
	s, _ := v.values[field].([]string)

	return s
}

// Failures returns the failure records accumulated so far under field.
func (v StateView) Failures(field string) []FailureRecord {
	f, _ := v.values[field].([]FailureRecord)

	return f
}
