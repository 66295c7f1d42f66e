package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/veracitybio/veracity/pkg/inference"

// Config holds the resilience policy for one Client. There are no process
// wide defaults read from the environment; callers construct and pass this
// explicitly.
type Config struct {
	// Targets is the ordered fallback chain. The first entry is the
	// preferred target; later entries are progressively cheaper downgrades.
	Targets []string `validate:"required,min=1,dive,required"`

	// MaxAttemptsPerTarget bounds calls against one target before the
	// client escalates to ErrServiceExhausted. Defaults to 3.
	MaxAttemptsPerTarget int `validate:"omitempty,min=1"`

	// AttemptTimeout bounds a single backend call. Zero means no per
	// attempt bound beyond the caller's context.
	AttemptTimeout time.Duration

	// Backoffs configures per-class delay schedules. Missing classes fall
	// back to the transient-network schedule.
	Backoffs map[ErrorClass]Backoff

	// Classifier maps backend errors onto classes. Defaults to
	// DefaultClassifier.
	Classifier Classifier `validate:"-"`
}

func (c *Config) applyDefaults() {
	if c.MaxAttemptsPerTarget == 0 {
		c.MaxAttemptsPerTarget = 3
	}
	if c.Backoffs == nil {
		c.Backoffs = DefaultBackoffs()
	}
	if c.Classifier == nil {
		c.Classifier = DefaultClassifier
	}
}

// Client is one logical resilient connection to the remote inference
// service. The target cursor and downgrade flag are shared mutable state: a
// quota exhaustion observed by one call must redirect every subsequent call,
// so both are guarded by a mutex and the cursor only ever advances. Reset is
// the single deliberate exception.
type Client struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer

	mu         sync.Mutex
	targetIdx  int
	attempts   int
	downgraded bool
}

// NewClient validates cfg and builds a client over backend.
func NewClient(backend Backend, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid inference config: %w", err)
	}
	if backend == nil {
		return nil, fmt.Errorf("invalid inference config: backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("module", "inference"),
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Invoke performs one logical call, hiding transient failures behind retry,
// backoff and target fallback. On success the returned text is never empty.
// When every remedy is spent the error wraps ErrServiceExhausted; fatal
// conditions surface immediately without it.
func (c *Client) Invoke(ctx context.Context, req Request) (string, error) {
	ctx, span := c.tracer.Start(ctx, "inference.invoke")
	defer span.End()

	emptyRetried := false

	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("inference invoke aborted: %w", err)
		}

		idx, target, ok := c.currentTarget()
		if !ok {
			return "", fmt.Errorf("%w: fallback chain spent", ErrServiceExhausted)
		}

		text, err := c.attempt(ctx, target, req)
		if err == nil {
			span.SetAttributes(
				attribute.String("veracity.inference.target", target),
				attribute.Bool("veracity.inference.downgraded", c.Downgraded()),
			)
			return text, nil
		}

		class := c.cfg.Classifier(err)
		c.logger.WarnContext(ctx, "inference attempt failed",
			"target", target,
			"class", string(class),
			"error", err,
		)

		switch class {
		case ClassFatal:
			return "", fmt.Errorf("inference fatal error on %s: %w", target, err)

		case ClassQuotaExhausted:
			c.advance(idx)
			continue

		case ClassEmptyResponse:
			if emptyRetried {
				return "", fmt.Errorf("inference returned empty response twice on %s", target)
			}
			emptyRetried = true
		}

		retryNo, exhausted := c.recordFailure(idx)
		if exhausted {
			return "", fmt.Errorf("%w: %d attempts on %s, last: %v",
				ErrServiceExhausted, retryNo, target, err)
		}

		if err := c.sleep(ctx, c.backoffFor(class).Delay(retryNo)); err != nil {
			return "", err
		}
	}
}

func (c *Client) attempt(ctx context.Context, target string, req Request) (string, error) {
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	text, err := c.backend.Generate(ctx, target, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyResponse
	}

	return text, nil
}

// currentTarget reads the cursor. ok is false once the chain is spent.
func (c *Client) currentTarget() (int, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targetIdx >= len(c.cfg.Targets) {
		return c.targetIdx, "", false
	}

	return c.targetIdx, c.cfg.Targets[c.targetIdx], true
}

// advance moves the cursor past the target at usedIdx. The check against the
// live cursor keeps the index monotonic when concurrent calls observe quota
// exhaustion on the same target.
func (c *Client) advance(usedIdx int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targetIdx == usedIdx {
		c.targetIdx++
		c.attempts = 0
		c.downgraded = true
	}
}

// recordFailure counts one failed attempt against the target at usedIdx and
// reports whether that target's attempt budget is spent. A failure observed
// after another call already advanced the cursor is not counted against the
// new target.
func (c *Client) recordFailure(usedIdx int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targetIdx != usedIdx {
		return 1, false
	}

	c.attempts++
	return c.attempts, c.attempts >= c.cfg.MaxAttemptsPerTarget
}

func (c *Client) backoffFor(class ErrorClass) Backoff {
	if b, ok := c.cfg.Backoffs[class]; ok {
		return b
	}
	return c.cfg.Backoffs[ClassTransientNetwork]
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("inference backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Downgraded reports whether the client has fallen past its preferred
// target at any point since construction or the last Reset.
func (c *Client) Downgraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downgraded
}

// Target returns the identifier the next call will use, or "" when the
// chain is spent.
func (c *Client) Target() string {
	_, target, _ := c.currentTarget()
	return target
}

// Reset rewinds the fallback cursor. This is the only way the target index
// moves backwards and is meant for callers starting a new logical session on
// a pooled client.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.targetIdx = 0
	c.attempts = 0
	c.downgraded = false
}
