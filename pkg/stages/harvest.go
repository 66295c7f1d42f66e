package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/pipeline"
)

// Harvest fetches candidate literature for the claim and seeds the unit
// list. Caller-pinned unit refs from the initial input are kept; retrieved
// documents are appended. A retriever failure degrades the run to NO_DATA
// via the aggregation stage rather than aborting.
func Harvest(retriever Retriever, logger *slog.Logger) pipeline.Handler {
	logger = logger.With("module", "stages", "stage", StageHarvest)

	return func(ctx context.Context, state pipeline.StateView) pipeline.StageResult {
		query := strings.TrimSpace(state.GetString(FieldQuery))
		if query == "" {
			return pipeline.StageResult{
				Failures: []pipeline.FailureRecord{{
					Stage:   StageHarvest,
					Class:   pipeline.ClassContractViolation,
					Message: "empty query",
				}},
			}
		}

		docs, err := retriever.Fetch(ctx, query)
		if err != nil {
			logger.WarnContext(ctx, "Retriever failed", "error", err)

			return pipeline.StageResult{
				Updates: map[string]any{FieldQuery: query},
				Failures: []pipeline.FailureRecord{{
					Stage:   StageHarvest,
					Class:   failureClass(err),
					Message: fmt.Sprintf("retrieval failed: %v", err),
				}},
			}
		}

		// Pinned refs already live in the state; only new documents are
		// appended here.
		pinned := make(map[string]bool)
		for _, ref := range state.GetStrings(FieldUnitRefs) {
			pinned[ref] = true
		}

		refs := make([]string, 0, len(docs))
		kept := make([]models.DocumentRef, 0, len(docs))

		for _, doc := range docs {
			if doc.ID == "" || pinned[doc.ID] {
				continue
			}

			pinned[doc.ID] = true
			refs = append(refs, doc.ID)
			kept = append(kept, doc)
		}

		logger.InfoContext(ctx, "Harvested documents", "count", len(kept))

		return pipeline.StageResult{
			Updates: map[string]any{
				FieldQuery:     query,
				FieldUnitRefs:  refs,
				FieldHarvested: kept,
			},
		}
	}
}
