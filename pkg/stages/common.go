package stages

import (
	"context"
	"errors"

	"github.com/veracitybio/veracity/pkg/inference"
	"github.com/veracitybio/veracity/pkg/pipeline"
)

// defaultWorkers caps in-stage fan-out over units.
const defaultWorkers = 4

// ClassThinContent marks a unit whose extracted text fell below the
// minimum-content threshold.
const ClassThinContent pipeline.ErrorClass = "thin_content"

func failureClass(err error) pipeline.ErrorClass {
	switch {
	case errors.Is(err, inference.ErrServiceExhausted):
		return pipeline.ClassServiceExhausted
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return pipeline.ClassTimeout
	default:
		return pipeline.ClassHandlerPanic
	}
}
