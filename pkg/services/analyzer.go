// Package services provides the default collaborator implementations the
// investigation pipeline is wired with: inference-backed document analysis
// and report synthesis, and a local-corpus retriever and image source for
// documents already on disk.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/veracitybio/veracity/pkg/inference"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/repair"
	"github.com/veracitybio/veracity/pkg/stages"
)

const analyzerSystemPrompt = `You are a biomedical evidence analyst. Given one document, respond with a
single JSON object with string fields: "summary" (2-3 sentences),
"content_chars" (count of substantive characters you analyzed),
"risk_type" (the main integrity risk, or "none"), "risk_level"
(LOW, MEDIUM or HIGH), "quote" (supporting excerpt) and "detail".`

var analyzerFields = []string{"summary", "content_chars", "risk_type", "risk_level", "quote", "detail"}

// Analyzer mines one document for evidence through the inference service.
// It implements stages.Analyzer.
type Analyzer struct {
	invoker stages.Invoker
	logger  *slog.Logger
}

func NewAnalyzer(invoker stages.Invoker, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Analyzer{
		invoker: invoker,
		logger:  logger.With("module", "analyzer"),
	}
}

func (a *Analyzer) Analyze(ctx context.Context, doc models.DocumentRef) (models.EvidenceItem, error) {
	text := DocumentText(doc)

	raw, err := a.invoker.Invoke(ctx, buildAnalysisRequest(doc, text))
	if err != nil {
		return models.EvidenceItem{}, fmt.Errorf("analysis of %s failed: %w", doc.ID, err)
	}

	_, value, diagnostics := repair.ValidateAndRepair(raw, analyzerFields)
	if len(diagnostics) > 0 {
		a.logger.DebugContext(ctx, "analyzer response repaired",
			"document", doc.ID, "diagnostics", diagnostics)
	}

	item := models.EvidenceItem{
		Unit:         doc.ID,
		Summary:      value["summary"],
		ContentChars: parseContentChars(value["content_chars"], text),
	}

	if finding, ok := parseFinding(value); ok {
		item.Findings = append(item.Findings, finding)
	}

	return item, nil
}

func buildAnalysisRequest(doc models.DocumentRef, text string) inference.Request {
	var b strings.Builder

	fmt.Fprintf(&b, "Document %s", doc.ID)

	if doc.Title != "" {
		fmt.Fprintf(&b, " (%s)", doc.Title)
	}

	b.WriteString(":\n\n")
	b.WriteString(text)

	return inference.Request{System: analyzerSystemPrompt, Prompt: b.String()}
}

// parseContentChars reads the model-reported character count, falling back
// to the locally known document length when the field did not survive
// repair.
func parseContentChars(reported, text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(reported))
	if err != nil || n < 0 {
		return len(text)
	}

	return n
}

func parseFinding(value map[string]string) (models.Finding, bool) {
	riskType := strings.TrimSpace(value["risk_type"])
	if riskType == "" || riskType == repair.Sentinel || strings.EqualFold(riskType, "none") {
		return models.Finding{}, false
	}

	level := strings.ToUpper(strings.TrimSpace(value["risk_level"]))
	switch level {
	case "LOW", "MEDIUM", "HIGH":
	default:
		level = "MEDIUM"
	}

	finding := models.Finding{
		RiskType:  riskType,
		RiskLevel: level,
		Quote:     cleanField(value["quote"]),
		Detail:    cleanField(value["detail"]),
	}

	return finding, true
}

func cleanField(s string) string {
	if s == repair.Sentinel {
		return ""
	}

	return s
}
