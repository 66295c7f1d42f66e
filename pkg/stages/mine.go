package stages

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/pipeline"
)

// Mine analyzes every harvested document concurrently. A document only
// counts as a successful unit when the analyzer reports at least
// minContentChars of extracted text; thin extractions are recorded as
// failures so the aggregation stage can weigh them honestly.
func Mine(analyzer Analyzer, minContentChars int, logger *slog.Logger) pipeline.Handler {
	if minContentChars <= 0 {
		minContentChars = DefaultMinContentChars
	}

	logger = logger.With("module", "stages", "stage", StageMine)

	return func(ctx context.Context, state pipeline.StateView) pipeline.StageResult {
		docs := harvestedDocs(state)
		if len(docs) == 0 {
			return pipeline.StageResult{}
		}

		var (
			mu       sync.Mutex
			evidence []models.EvidenceItem
			failures []pipeline.FailureRecord
		)

		var wg sync.WaitGroup

		sem := make(chan struct{}, defaultWorkers)

		for _, doc := range docs {
			wg.Add(1)

			go func(doc models.DocumentRef) {
				defer wg.Done()

				sem <- struct{}{}
				defer func() { <-sem }()

				item, err := analyzer.Analyze(ctx, doc)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					failures = append(failures, pipeline.FailureRecord{
						Unit:    doc.ID,
						Stage:   StageMine,
						Class:   failureClass(err),
						Message: fmt.Sprintf("analysis failed: %v", err),
					})

					return
				}

				if item.ContentChars < minContentChars {
					failures = append(failures, pipeline.FailureRecord{
						Unit:    doc.ID,
						Stage:   StageMine,
						Class:   ClassThinContent,
						Message: fmt.Sprintf("extracted only %d chars, below minimum %d", item.ContentChars, minContentChars),
					})

					return
				}

				item.Unit = doc.ID
				evidence = append(evidence, item)
			}(doc)
		}

		wg.Wait()

		logger.InfoContext(ctx, "Mined documents",
			"documents", len(docs),
			"evidence", len(evidence),
			"failures", len(failures),
		)

		result := pipeline.StageResult{Failures: failures}
		if len(evidence) > 0 {
			result.Updates = map[string]any{FieldTextEvidence: evidence}
		}

		return result
	}
}

func harvestedDocs(state pipeline.StateView) []models.DocumentRef {
	value, _ := state.Get(FieldHarvested)
	docs, _ := value.([]models.DocumentRef)

	return docs
}
