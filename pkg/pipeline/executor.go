package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veracitybio/veracity/pkg/eventbus"
	"github.com/veracitybio/veracity/pkg/events"
	"github.com/veracitybio/veracity/pkg/otelhelper"
)

var tracer = otel.Tracer("veracity/pipeline")

const defaultFailuresField = "failures"

type stage struct {
	name    string
	deps    []string
	handler Handler
}

// Executor runs registered stages respecting their dependency edges. All
// run-state mutation happens inside Run's merge loop; stage handlers only
// ever see immutable snapshots.
type Executor struct {
	schema        Schema
	stages        map[string]*stage
	order         []string
	logger        *slog.Logger
	bus           eventbus.EventPublisher
	timeout       time.Duration
	strict        bool
	failuresField string
}

type Option func(*Executor)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithEventBus publishes stage lifecycle events. Publish failures are logged
// and never affect the run.
func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(e *Executor) {
		e.bus = bus
	}
}

// WithTimeout sets the overall run deadline. On expiry every unfinished
// stage is marked terminal with a timeout FailureRecord and Run returns the
// state accumulated so far.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithStrictContracts makes contract violations abort the run instead of
// degrading into FailureRecords. Meant for development and test builds.
func WithStrictContracts() Option {
	return func(e *Executor) {
		e.strict = true
	}
}

// WithFailuresField renames the accumulate field that collects
// FailureRecords. Defaults to "failures".
func WithFailuresField(field string) Option {
	return func(e *Executor) {
		e.failuresField = field
	}
}

func NewExecutor(schema Schema, opts ...Option) (*Executor, error) {
	e := &Executor{
		schema:        schema,
		stages:        make(map[string]*stage),
		failuresField: defaultFailuresField,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("module", "pipeline")

	if err := schema.validate(e.failuresField); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	return e, nil
}

// AddStage registers a named stage with its dependency list. Registration
// order is irrelevant; dependency resolution happens at Run.
func (e *Executor) AddStage(name string, deps []string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("stage name is required")
	}

	if handler == nil {
		return fmt.Errorf("stage %s: handler is required", name)
	}

	if _, exists := e.stages[name]; exists {
		return fmt.Errorf("stage %s is already registered", name)
	}

	e.stages[name] = &stage{name: name, deps: deps, handler: handler}
	e.order = append(e.order, name)

	return nil
}

// validateGraph checks dependency references and rejects cycles.
func (e *Executor) validateGraph() error {
	for _, st := range e.stages {
		for _, dep := range st.deps {
			if _, ok := e.stages[dep]; !ok {
				return fmt.Errorf("stage %s depends on unknown stage %s", st.name, dep)
			}
		}
	}

	for field, spec := range e.schema {
		if spec.Policy != LastWriteWins {
			continue
		}

		if _, ok := e.stages[spec.Writer]; !ok {
			return fmt.Errorf("field %q declares writer %q which is not a registered stage", field, spec.Writer)
		}
	}

	// Kahn's algorithm purely as a cycle check.
	indegree := make(map[string]int, len(e.stages))
	for name, st := range e.stages {
		indegree[name] = len(st.deps)
	}

	queue := make([]string, 0, len(e.stages))
	for name, deg := range indegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++

		for name, st := range e.stages {
			for _, dep := range st.deps {
				if dep == current {
					indegree[name]--
					if indegree[name] == 0 {
						queue = append(queue, name)
					}
				}
			}
		}
	}

	if processed != len(e.stages) {
		return fmt.Errorf("stage graph contains a dependency cycle")
	}

	return nil
}

type stageOutcome struct {
	name     string
	result   StageResult
	duration time.Duration
}

// Run executes the graph and returns the final merged state. Runtime
// conditions (panics, deadline expiry, cancellation, exhausted
// collaborators) degrade into FailureRecords; the returned error is non-nil
// only for build mistakes or a contract violation under
// WithStrictContracts.
func (e *Executor) Run(ctx context.Context, runID string, initial map[string]any) (map[string]any, error) {
	if err := e.validateGraph(); err != nil {
		return nil, err
	}

	if runID == "" {
		runID = "run-" + uuid.New().String()[:8]
	}

	logger := e.logger.With("run_id", runID)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	state := make(map[string]any, len(e.schema))
	for field, value := range initial {
		if _, ok := e.schema[field]; !ok {
			return nil, fmt.Errorf("initial input references undeclared field %q", field)
		}
		state[field] = value
	}

	logger.InfoContext(ctx, "Starting pipeline run", "stages", len(e.stages))

	// Buffered so a stage finishing after the deadline never blocks on a
	// send nobody will receive.
	results := make(chan stageOutcome, len(e.stages))
	done := make(map[string]bool, len(e.stages))
	running := make(map[string]bool, len(e.stages))

	launch := func() {
		for _, name := range e.launchable(done, running) {
			st := e.stages[name]
			running[name] = true

			e.publish(ctx, runID, events.StageStarted{
				BaseEvent: e.baseEvent(events.StageStartedEvent, runID),
				StageName: name,
				DependsOn: st.deps,
			})
			logger.DebugContext(ctx, "Launching stage", "stage", name, "deps", st.deps)

			go e.runStage(ctx, st, snapshot(state), results)
		}
	}

	launch()

	absorb := func(out stageOutcome) error {
		done[out.name] = true
		delete(running, out.name)

		violations, err := e.merge(state, out.name, out.result)
		if err != nil {
			return err
		}

		e.recordFailures(state, out.result.Failures)
		e.recordFailures(state, violations)

		failureCount := len(out.result.Failures) + len(violations)
		logger.InfoContext(ctx, "Stage finished",
			"stage", out.name,
			"failures", failureCount,
			"duration", out.duration,
		)
		e.publish(ctx, runID, events.StageFinished{
			BaseEvent:    e.baseEvent(events.StageFinishedEvent, runID),
			StageName:    out.name,
			FailureCount: failureCount,
			DurationMs:   out.duration.Milliseconds(),
		})

		return nil
	}

	for len(done) < len(e.stages) {
		select {
		case out := <-results:
			if err := absorb(out); err != nil {
				return nil, err
			}

			launch()

		case <-ctx.Done():
			// A result queued before the deadline fired is completed
			// work; absorb it instead of rewriting it as a timeout.
			for drained := false; !drained; {
				select {
				case out := <-results:
					if err := absorb(out); err != nil {
						return nil, err
					}
				default:
					drained = true
				}
			}

			for _, name := range e.order {
				if done[name] {
					continue
				}

				done[name] = true

				record := FailureRecord{
					Stage:   name,
					Class:   ClassTimeout,
					Message: fmt.Sprintf("run deadline expired: %v", ctx.Err()),
				}
				e.recordFailures(state, []FailureRecord{record})

				logger.WarnContext(context.WithoutCancel(ctx), "Stage timed out", "stage", name)
				e.publish(context.WithoutCancel(ctx), runID, events.StageFailed{
					BaseEvent: e.baseEvent(events.StageFailedEvent, runID),
					StageName: name,
					Class:     string(ClassTimeout),
					Error:     record.Message,
				})
			}
		}
	}

	logger.InfoContext(context.WithoutCancel(ctx), "Pipeline run finished",
		"failures", len(failuresOf(state, e.failuresField)),
	)

	return state, nil
}

// launchable returns stages whose dependencies are all terminal, in
// registration order.
func (e *Executor) launchable(done, running map[string]bool) []string {
	var ready []string

	for _, name := range e.order {
		if done[name] || running[name] {
			continue
		}

		eligible := true
		for _, dep := range e.stages[name].deps {
			if !done[dep] {
				eligible = false

				break
			}
		}

		if eligible {
			ready = append(ready, name)
		}
	}

	return ready
}

// runStage invokes the handler with panic isolation. A panicking handler is
// terminal with an empty update and a HandlerPanic record.
func (e *Executor) runStage(ctx context.Context, st *stage, view StateView, results chan<- stageOutcome) {
	ctx, span := tracer.Start(ctx, "stage."+st.name, trace.WithAttributes(
		attribute.String(otelhelper.StageNameKey, st.name),
	))
	defer span.End()

	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			results <- stageOutcome{
				name: st.name,
				result: StageResult{
					Failures: []FailureRecord{{
						Stage:   st.name,
						Class:   ClassHandlerPanic,
						Message: fmt.Sprintf("handler panicked: %v", r),
					}},
				},
				duration: time.Since(started),
			}
		}
	}()

	result := st.handler(ctx, view)
	results <- stageOutcome{name: st.name, result: result, duration: time.Since(started)}
}

// merge applies one stage's partial update. It is only ever called from
// Run's receive loop, which is what makes the state single-writer. Contract
// violations become FailureRecords unless strict mode promotes them to
// errors; the offending field is dropped either way.
func (e *Executor) merge(state map[string]any, stageName string, result StageResult) ([]FailureRecord, error) {
	var violations []FailureRecord

	violate := func(format string, args ...any) error {
		msg := fmt.Sprintf(format, args...)
		if e.strict {
			return fmt.Errorf("stage %s: %s", stageName, msg)
		}

		violations = append(violations, FailureRecord{
			Stage:   stageName,
			Class:   ClassContractViolation,
			Message: msg,
		})

		return nil
	}

	for _, field := range sortedKeys(result.Updates) {
		value := result.Updates[field]

		spec, ok := e.schema[field]
		if !ok {
			if err := violate("update references undeclared field %q", field); err != nil {
				return nil, err
			}

			continue
		}

		switch spec.Policy {
		case LastWriteWins:
			if spec.Writer != stageName {
				if err := violate("field %q is owned by stage %q", field, spec.Writer); err != nil {
					return nil, err
				}

				continue
			}

			state[field] = value

		case Accumulate:
			merged, err := appendValues(state[field], value)
			if err != nil {
				if verr := violate("field %q: %v", field, err); verr != nil {
					return nil, verr
				}

				continue
			}

			state[field] = merged
		}
	}

	return violations, nil
}

func (e *Executor) recordFailures(state map[string]any, records []FailureRecord) {
	if len(records) == 0 {
		return
	}

	state[e.failuresField] = append(failuresOf(state, e.failuresField), records...)
}

func (e *Executor) publish(ctx context.Context, runID string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, runID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish stage event",
			"event_type", event.GetType(), "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, runID string) events.BaseEvent {
	return events.BaseEvent{
		ID:              uuid.New().String(),
		Type:            eventType,
		Timestamp:       time.Now().UTC(),
		InvestigationID: runID,
	}
}

func failuresOf(state map[string]any, field string) []FailureRecord {
	records, _ := state[field].([]FailureRecord)

	return records
}

func snapshot(state map[string]any) StateView {
	values := make(map[string]any, len(state))
	for field, value := range state {
		values[field] = value
	}

	return StateView{values: values}
}

// appendValues unions an accumulate contribution into the existing value.
// Both sides must be slices of the same type once the field is non-empty.
func appendValues(existing, update any) (any, error) {
	if update == nil {
		return existing, nil
	}

	uv := reflect.ValueOf(update)
	if uv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("accumulate update must be a slice, got %T", update)
	}

	if existing == nil {
		return update, nil
	}

	ev := reflect.ValueOf(existing)
	if ev.Kind() != reflect.Slice || ev.Type() != uv.Type() {
		return nil, fmt.Errorf("accumulate type mismatch: %T vs %T", existing, update)
	}

	merged := reflect.MakeSlice(ev.Type(), 0, ev.Len()+uv.Len())
	merged = reflect.AppendSlice(merged, ev)
	merged = reflect.AppendSlice(merged, uv)

	return merged.Interface(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
