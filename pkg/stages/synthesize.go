package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/pipeline"
)

// Synthesize renders the final report. It enforces the anti-silent-failure
// contract: whenever the aggregation stage set a risk override, that text
// appears verbatim at the head of the report, whatever the synthesizer
// produced.
func Synthesize(synthesizer Synthesizer, logger *slog.Logger) pipeline.Handler {
	logger = logger.With("module", "stages", "stage", StageSynthesize)

	return func(ctx context.Context, state pipeline.StateView) pipeline.StageResult {
		input := SynthesisInput{
			Query:    state.GetString(FieldQuery),
			Status:   state.GetString(FieldAnalysisStatus),
			Override: overrideOf(state),
		}

		if value, ok := state.Get(FieldTextEvidence); ok {
			input.Evidence, _ = value.([]models.EvidenceItem)
		}

		if value, ok := state.Get(FieldImageFindings); ok {
			input.ImageFindings, _ = value.([]models.ImageFinding)
		}

		report, err := synthesizer.Synthesize(ctx, input)
		if err != nil {
			logger.WarnContext(ctx, "Synthesis failed", "error", err)

			return pipeline.StageResult{
				Updates: map[string]any{FieldReport: fallbackReport(input.Override)},
				Failures: []pipeline.FailureRecord{{
					Stage:   StageSynthesize,
					Class:   failureClass(err),
					Message: fmt.Sprintf("synthesis failed: %v", err),
				}},
			}
		}

		if input.Override != nil && !strings.Contains(report, *input.Override) {
			report = *input.Override + "\n\n" + report
		}

		return pipeline.StageResult{
			Updates: map[string]any{FieldReport: report},
		}
	}
}

func overrideOf(state pipeline.StateView) *string {
	value, ok := state.Get(FieldRiskOverride)
	if !ok {
		return nil
	}

	override, _ := value.(*string)

	return override
}

func fallbackReport(override *string) string {
	if override != nil {
		return *override
	}

	return "Report unavailable: synthesis failed."
}
