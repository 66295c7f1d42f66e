// Package pipeline executes a statically declared graph of named stages,
// fanning independent stages out into concurrent goroutines and merging
// their partial results into one shared run state through a single-writer
// merge loop.
package pipeline

import "fmt"

// Policy decides how a field's contributions combine across stages.
type Policy string

const (
	// Accumulate fields union contributions commutatively. Any stage may
	// contribute; slice values are appended.
	Accumulate Policy = "accumulate"

	// LastWriteWins fields are owned by exactly one declared writer stage.
	LastWriteWins Policy = "last_write_wins"
)

// FieldSpec declares the merge behavior of one run-state field. The policy
// is fixed at schema-design time, never per call.
type FieldSpec struct {
	Policy Policy

	// Writer names the only stage allowed to write a LastWriteWins field.
	// Ignored for Accumulate fields.
	Writer string
}

// Schema maps field names to their merge specifications.
type Schema map[string]FieldSpec

func (s Schema) validate(failuresField string) error {
	if len(s) == 0 {
		return fmt.Errorf("schema declares no fields")
	}

	for field, spec := range s {
		switch spec.Policy {
		case Accumulate:
		case LastWriteWins:
			if spec.Writer == "" {
				return fmt.Errorf("field %q is %s but declares no writer stage", field, LastWriteWins)
			}
		default:
			return fmt.Errorf("field %q has unknown merge policy %q", field, spec.Policy)
		}
	}

	failSpec, ok := s[failuresField]
	if !ok {
		return fmt.Errorf("schema is missing the failures field %q", failuresField)
	}

	if failSpec.Policy != Accumulate {
		return fmt.Errorf("failures field %q must use the %s policy", failuresField, Accumulate)
	}

	return nil
}
