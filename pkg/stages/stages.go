// Package stages wires the investigation pipeline: harvesting literature,
// mining documents and auditing figures in parallel, aggregating failures
// into an honest completion status, and synthesizing the final report.
package stages

import (
	"context"

	"github.com/veracitybio/veracity/pkg/inference"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/pipeline"
)

// Stage names. Dependencies: harvest -> [mine, audit] -> aggregate -> synthesize.
const (
	StageHarvest    = "harvest"
	StageMine       = "mine"
	StageAudit      = "audit"
	StageAggregate  = "aggregate"
	StageSynthesize = "synthesize"
)

// Run-state field names.
const (
	FieldQuery          = "query"
	FieldUnitRefs       = "unit_refs"
	FieldHarvested      = "harvested"
	FieldTextEvidence   = "text_evidence"
	FieldImageFindings  = "image_findings"
	FieldAnalysisStatus = "analysis_status"
	FieldRiskOverride   = "risk_override"
	FieldReport         = "report"
	FieldFailures       = "failures"
)

// DefaultMinContentChars is the minimum extracted-text size below which a
// mined document does not count as a successful unit.
const DefaultMinContentChars = 100

// Retriever fetches candidate literature for a claim.
type Retriever interface {
	Fetch(ctx context.Context, query string) ([]models.DocumentRef, error)
}

// Analyzer extracts a summary and risk findings from one document. It must
// report ContentChars so the pipeline can apply its own minimum-content
// threshold before counting the unit as successful.
type Analyzer interface {
	Analyze(ctx context.Context, doc models.DocumentRef) (models.EvidenceItem, error)
}

// ImageRef is one figure extracted from a document, ready for auditing.
type ImageRef struct {
	ID   string
	Data []byte
}

// ImageSource extracts the auditable figures of a document.
type ImageSource interface {
	Images(ctx context.Context, doc models.DocumentRef) ([]ImageRef, error)
}

// Invoker is the resilient inference call the audit stage depends on.
// Satisfied by *inference.Client.
type Invoker interface {
	Invoke(ctx context.Context, req inference.Request) (string, error)
}

// SynthesisInput carries everything the report synthesizer may use.
type SynthesisInput struct {
	Query         string
	Evidence      []models.EvidenceItem
	ImageFindings []models.ImageFinding
	Status        string
	Override      *string
}

// Synthesizer renders the final report text. Its output is subject to the
// override contract: a non-nil override must appear verbatim in the report.
type Synthesizer interface {
	Synthesize(ctx context.Context, input SynthesisInput) (string, error)
}

// Schema declares the merge policy of every run-state field. This table is
// the binding contract between stages; policies are fixed here, never per
// call.
func Schema() pipeline.Schema {
	return pipeline.Schema{
		FieldQuery:          {Policy: pipeline.LastWriteWins, Writer: StageHarvest},
		FieldUnitRefs:       {Policy: pipeline.Accumulate},
		FieldHarvested:      {Policy: pipeline.Accumulate},
		FieldTextEvidence:   {Policy: pipeline.Accumulate},
		FieldImageFindings:  {Policy: pipeline.Accumulate},
		FieldAnalysisStatus: {Policy: pipeline.LastWriteWins, Writer: StageAggregate},
		FieldRiskOverride:   {Policy: pipeline.LastWriteWins, Writer: StageAggregate},
		FieldReport:         {Policy: pipeline.LastWriteWins, Writer: StageSynthesize},
		FieldFailures:       {Policy: pipeline.Accumulate},
	}
}
