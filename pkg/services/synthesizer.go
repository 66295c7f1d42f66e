package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veracitybio/veracity/pkg/inference"
	"github.com/veracitybio/veracity/pkg/stages"
)

const synthesizerSystemPrompt = `You are a biomedical claim investigator writing a final report. Summarize
the evidence for and against the claim, cite the analyzed documents by ID,
and state a calibrated conclusion. If an analysis status override is given,
it MUST appear verbatim at the top of the report and your confidence must
not exceed what it allows.`

// Synthesizer renders the final investigation report through the inference
// service. It implements stages.Synthesizer.
type Synthesizer struct {
	invoker stages.Invoker
	logger  *slog.Logger
}

func NewSynthesizer(invoker stages.Invoker, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Synthesizer{
		invoker: invoker,
		logger:  logger.With("module", "synthesizer"),
	}
}

func (s *Synthesizer) Synthesize(ctx context.Context, input stages.SynthesisInput) (string, error) {
	report, err := s.invoker.Invoke(ctx, inference.Request{
		System: synthesizerSystemPrompt,
		Prompt: buildSynthesisPrompt(input),
	})
	if err != nil {
		return "", fmt.Errorf("report synthesis failed: %w", err)
	}

	return strings.TrimSpace(report), nil
}

func buildSynthesisPrompt(input stages.SynthesisInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Claim under investigation: %s\n", input.Query)
	fmt.Fprintf(&b, "Analysis status: %s\n", input.Status)

	if input.Override != nil {
		fmt.Fprintf(&b, "Mandatory override (must open the report verbatim): %s\n", *input.Override)
	}

	b.WriteString("\nText evidence:\n")

	if len(input.Evidence) == 0 {
		b.WriteString("(none)\n")
	}

	for _, item := range input.Evidence {
		fmt.Fprintf(&b, "- [%s] %s\n", item.Unit, item.Summary)

		for _, finding := range item.Findings {
			fmt.Fprintf(&b, "  risk: %s (%s) %s\n", finding.RiskType, finding.RiskLevel, finding.Detail)
		}
	}

	if len(input.ImageFindings) > 0 {
		b.WriteString("\nFigure audit results:\n")

		for _, finding := range input.ImageFindings {
			fmt.Fprintf(&b, "- [%s/%s] %s (risk %.2f) %s\n",
				finding.Unit, finding.ImageID, finding.Status, finding.RiskScore, finding.Detail)
		}
	}

	return b.String()
}
