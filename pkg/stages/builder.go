package stages

import (
	"fmt"
	"log/slog"

	"github.com/veracitybio/veracity/pkg/pipeline"
)

// Collaborators bundles the external services the pipeline stages call.
type Collaborators struct {
	Retriever   Retriever
	Analyzer    Analyzer
	Images      ImageSource
	Invoker     Invoker
	Synthesizer Synthesizer

	// MinContentChars below which a mined document is a failed unit.
	// Zero selects DefaultMinContentChars.
	MinContentChars int
}

// Register wires the full investigation graph onto the executor:
//
//	harvest -> [mine, audit] -> aggregate -> synthesize
//
// Mine and audit fan out concurrently; aggregate is the join.
func Register(executor *pipeline.Executor, c Collaborators, logger *slog.Logger) error {
	if c.Retriever == nil || c.Analyzer == nil || c.Images == nil || c.Invoker == nil || c.Synthesizer == nil {
		return fmt.Errorf("all collaborators are required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := executor.AddStage(StageHarvest, nil, Harvest(c.Retriever, logger)); err != nil {
		return err
	}

	if err := executor.AddStage(StageMine, []string{StageHarvest}, Mine(c.Analyzer, c.MinContentChars, logger)); err != nil {
		return err
	}

	if err := executor.AddStage(StageAudit, []string{StageHarvest}, Audit(c.Images, c.Invoker, logger)); err != nil {
		return err
	}

	if err := executor.AddStage(StageAggregate, []string{StageMine, StageAudit}, Aggregate(logger)); err != nil {
		return err
	}

	return executor.AddStage(StageSynthesize, []string{StageAggregate}, Synthesize(c.Synthesizer, logger))
}
