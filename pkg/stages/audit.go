package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/veracitybio/veracity/pkg/inference"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/pipeline"
	"github.com/veracitybio/veracity/pkg/repair"
)

const auditSystemPrompt = "You are a scientific image-integrity auditor. " +
	"Inspect the figure for duplication, splicing, or implausible uniformity. " +
	`Respond with a JSON object: {"status": "clean|suspicious|inconclusive", "risk_score": "0.0-1.0", "detail": "one sentence"}`

var auditFields = []string{"status", "risk_score", "detail"}

// Audit runs every extracted figure through the inference service and
// repairs its loosely structured answer into a schema-conformant verdict.
// An exhausted service marks the unit failed; it never aborts the run.
func Audit(images ImageSource, invoker Invoker, logger *slog.Logger) pipeline.Handler {
	logger = logger.With("module", "stages", "stage", StageAudit)

	return func(ctx context.Context, state pipeline.StateView) pipeline.StageResult {
		docs := harvestedDocs(state)
		if len(docs) == 0 {
			return pipeline.StageResult{}
		}

		var (
			mu       sync.Mutex
			findings []models.ImageFinding
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

				docFindings, docFailures := auditDocument(ctx, images, invoker, logger, doc)

				mu.Lock()
				findings = append(findings, docFindings...)
				failures = append(failures, docFailures...)
				mu.Unlock()
			}(doc)
		}

		wg.Wait()

		logger.InfoContext(ctx, "Audited figures",
			"documents", len(docs),
			"findings", len(findings),
			"failures", len(failures),
		)

		result := pipeline.StageResult{Failures: failures}
		if len(findings) > 0 {
			result.Updates = map[string]any{FieldImageFindings: findings}
		}

		return result
	}
}

func auditDocument(
	ctx context.Context,
	images ImageSource,
	invoker Invoker,
	logger *slog.Logger,
	doc models.DocumentRef,
) ([]models.ImageFinding, []pipeline.FailureRecord) {
	refs, err := images.Images(ctx, doc)
	if err != nil {
		return nil, []pipeline.FailureRecord{{
			Unit:    doc.ID,
			Stage:   StageAudit,
			Class:   failureClass(err),
			Message: fmt.Sprintf("image extraction failed: %v", err),
		}}
	}

	var (
		findings []models.ImageFinding
		failures []pipeline.FailureRecord
	)

	for _, ref := range refs {
		raw, err := invoker.Invoke(ctx, inference.Request{
			System: auditSystemPrompt,
			Prompt: fmt.Sprintf("Audit figure %s from document %s.", ref.ID, doc.ID),
			Images: [][]byte{ref.Data},
		})
		if err != nil {
			failures = append(failures, pipeline.FailureRecord{
				Unit:    doc.ID,
				Stage:   StageAudit,
				Class:   failureClass(err),
				Message: fmt.Sprintf("figure %s: %v", ref.ID, err),
			})

			continue
		}

		_, value, diagnostics := repair.ValidateAndRepair(raw, auditFields)
		if len(diagnostics) > 0 {
			logger.DebugContext(ctx, "Repaired audit verdict",
				"unit", doc.ID, "image", ref.ID, "diagnostics", diagnostics)
		}

		findings = append(findings, verdictToFinding(doc.ID, ref.ID, value))
	}

	return findings, failures
}

// verdictToFinding maps the repaired verdict onto the typed model. Sentinel
// or unparseable values degrade to an inconclusive finding instead of
// failing the unit, since a complete repaired value is always available.
func verdictToFinding(unit, imageID string, value map[string]string) models.ImageFinding {
	status := value["status"]
	switch status {
	case "clean", "suspicious", "inconclusive":
	default:
		status = "inconclusive"
	}

	score, err := strconv.ParseFloat(value["risk_score"], 64)
	if err != nil || score < 0 || score > 1 {
		score = 0
	}

	detail := value["detail"]
	if detail == repair.Sentinel {
		detail = ""
	}

	return models.ImageFinding{
		Unit:      unit,
		ImageID:   imageID,
		Status:    status,
		RiskScore: score,
		Detail:    detail,
	}
}
