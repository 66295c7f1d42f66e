package stages

import (
	"context"
	"log/slog"

	"github.com/veracitybio/veracity/pkg/pipeline"
	"github.com/veracitybio/veracity/pkg/verdict"
)

// Aggregate joins the mining and auditing branches and computes the honest
// completion status from the accumulated failures. It is the single writer
// of analysis_status and risk_override.
func Aggregate(logger *slog.Logger) pipeline.Handler {
	logger = logger.With("module", "stages", "stage", StageAggregate)

	return func(ctx context.Context, state pipeline.StateView) pipeline.StageResult {
		attempted := len(harvestedDocs(state))

		failed := make(map[string]struct{})
		for _, record := range state.Failures(FieldFailures) {
			if record.Unit != "" {
				failed[record.Unit] = struct{}{}
			}
		}

		status, override := verdict.Classify(attempted, failed)

		logger.InfoContext(ctx, "Classified run",
			"attempted", attempted,
			"failed_units", len(failed),
			"status", string(status),
		)

		return pipeline.StageResult{
			Updates: map[string]any{
				FieldAnalysisStatus: string(status),
				FieldRiskOverride:   override,
			},
		}
	}
}
