package main

import (
	"context"
	"log/slog"

	"github.com/veracitybio/veracity/pkg/eventbus"
	"github.com/veracitybio/veracity/pkg/events"
)

// observeEvents subscribes the API process to investigation lifecycle
// events so background runs stay visible in the server log after the
// request that started them has returned.
func observeEvents(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	err := bus.Handle(events.InvestigationCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.InvestigationCompleted)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Investigation completed",
			"investigation_id", completed.InvestigationID,
			"analysis_status", completed.AnalysisStatus,
			"units_total", completed.UnitsTotal,
			"units_failed", completed.UnitsFailed,
			"duration", completed.Duration,
		)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.InvestigationFailedEvent, func(ctx context.Context, event any) error {
		failed, ok := event.(*events.InvestigationFailed)
		if !ok {
			return nil
		}

		logger.ErrorContext(ctx, "Investigation failed",
			"investigation_id", failed.InvestigationID,
			"error", failed.Error,
			"duration", failed.Duration,
		)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.StageFailedEvent, func(ctx context.Context, event any) error {
		failed, ok := event.(*events.StageFailed)
		if !ok {
			return nil
		}

		logger.WarnContext(ctx, "Stage failed",
			"investigation_id", failed.InvestigationID,
			"stage", failed.StageName,
			"class", failed.Class,
			"error", failed.Error,
		)

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}
