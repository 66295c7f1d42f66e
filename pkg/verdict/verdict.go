// Package verdict computes the honest completion status of an investigation
// from the set of work units that failed. A non-nil override is a forced
// status string that downstream synthesis must surface verbatim; it exists so
// that partial failures are never silently reported as success.
package verdict

import (
	"fmt"
	"math"
)

// Status is the completion classification for one investigation run.
type Status string

const (
	StatusNoData          Status = "NO_DATA"
	StatusCriticalFailure Status = "CRITICAL_FAILURE"
	StatusPartialSuccess  Status = "PARTIAL_SUCCESS"
	StatusComplete        Status = "COMPLETE"
)

const (
	overrideNoData   = "UNKNOWN (NO DATA)"
	overrideCritical = "UNKNOWN (CRITICAL DATA FAILURE)"
)

// Classify maps the attempted/failed unit counts onto a Status and, for every
// non-complete outcome, a risk override string. It is a pure function: no
// clock, no randomness, no dependence on iteration order of failed.
func Classify(totalAttempted int, failed map[string]struct{}) (Status, *string) {
	switch {
	case totalAttempted == 0:
		return StatusNoData, override(overrideNoData)
	case len(failed) == totalAttempted:
		return StatusCriticalFailure, override(overrideCritical)
	case len(failed) > 0:
		rate := int(math.Round(float64(len(failed)) / float64(totalAttempted) * 100))
		return StatusPartialSuccess, override(fmt.Sprintf("UNCERTAIN (INCOMPLETE DATA - %d%% failed)", rate))
	default:
		return StatusComplete, nil
	}
}

func override(s string) *string {
	return &s
}
