package pipeline

// ErrorClass tags a FailureRecord with the condition that produced it.
type ErrorClass string

const (
	// ClassHandlerPanic marks a stage handler that panicked. Caught at the
	// stage boundary; never aborts the run.
	ClassHandlerPanic ErrorClass = "handler_panic"

	// ClassTimeout marks a stage still running, or never started, when the
	// run's overall deadline expired.
	ClassTimeout ErrorClass = "timeout"

	// ClassServiceExhausted marks a unit abandoned because the inference
	// client spent every retry and fallback target.
	ClassServiceExhausted ErrorClass = "service_exhausted"

	// ClassContractViolation marks a partial update that referenced an
	// undeclared field or wrote a field owned by another stage. In strict
	// mode this aborts the run instead.
	ClassContractViolation ErrorClass = "contract_violation"
)

// FailureRecord is one unit of work that did not complete. Records are only
// ever appended, never removed.
type FailureRecord struct {
	Unit    string     `json:"unit,omitempty"`
	Stage   string     `json:"stage"`
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
}
