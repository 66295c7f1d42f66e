package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend replays a fixed sequence of responses, then repeats the
// last one.
type scriptedBackend struct {
	mu       sync.Mutex
	script   []response
	calls    []string // target per call
	position int
}

type response struct {
	text string
	err  error
}

func (b *scriptedBackend) Generate(_ context.Context, target string, _ Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, target)

	idx := b.position
	if idx >= len(b.script) {
		idx = len(b.script) - 1
	}
	b.position++

	return b.script[idx].text, b.script[idx].err
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func fastConfig(targets ...string) Config {
	fast := Backoff{Base: time.Millisecond, Multiplier: 1, Cap: time.Millisecond}
	return Config{
		Targets:              targets,
		MaxAttemptsPerTarget: 2,
		Backoffs: map[ErrorClass]Backoff{
			ClassTransientNetwork: fast,
			ClassServerOverload:   fast,
			ClassRateLimited:      fast,
			ClassEmptyResponse:    fast,
		},
	}
}

func TestClient_SuccessFirstAttempt(t *testing.T) {
	backend := &scriptedBackend{script: []response{{text: "result"}}}
	client, err := NewClient(backend, fastConfig("primary"), nil)
	require.NoError(t, err)

	text, err := client.Invoke(context.Background(), Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "result", text)
	assert.False(t, client.Downgraded())
	assert.Equal(t, 1, backend.callCount())
}

func TestClient_RetriesTransientThenSucceeds(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{err: errors.New("connection reset by peer")},
		{text: "ok"},
	}}
	client, err := NewClient(backend, fastConfig("primary"), nil)
	require.NoError(t, err)

	text, err := client.Invoke(context.Background(), Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, backend.callCount())
}

func TestClient_TransientExhaustsWithoutFallback(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{err: errors.New("connection timeout")},
	}}
	client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), Request{Prompt: "p"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceExhausted)
	// Transient errors never advance the chain.
	assert.Equal(t, 2, backend.callCount())
	assert.False(t, client.Downgraded())
}

func TestClient_QuotaAdvancesTarget(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{err: errors.New("429 quota exceeded for model")},
		{text: "from fallback"},
	}}
	client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
	require.NoError(t, err)

	text, err := client.Invoke(context.Background(), Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "from fallback", text)
	assert.True(t, client.Downgraded())
	assert.Equal(t, []string{"primary", "secondary"}, backend.calls)
	assert.Equal(t, "secondary", client.Target())
}

func TestClient_QuotaOnAllTargets(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{err: errors.New("quota exceeded")},
	}}
	client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), Request{Prompt: "p"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceExhausted)
	assert.Equal(t, []string{"primary", "secondary"}, backend.calls)
	assert.True(t, client.Downgraded())
}

func TestClient_FatalNoRetry(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{err: errors.New("invalid request payload")},
	}}
	client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), Request{Prompt: "p"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServiceExhausted)
	assert.Equal(t, 1, backend.callCount())
}

func TestClient_EmptyResponseRetriedOnce(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{text: ""},
		{text: "second time lucky"},
	}}
	client, err := NewClient(backend, fastConfig("primary"), nil)
	require.NoError(t, err)

	text, err := client.Invoke(context.Background(), Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "second time lucky", text)
}

func TestClient_EmptyResponseTwiceIsFatal(t *testing.T) {
	backend := &scriptedBackend{script: []response{{text: "   "}}}
	client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), Request{Prompt: "p"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServiceExhausted)
	assert.Equal(t, 2, backend.callCount())
}

// Two targets at two attempts each must never issue more than four backend
// calls before raising ErrServiceExhausted, whatever the error sequence.
func TestClient_AttemptBudgetBound(t *testing.T) {
	scripts := [][]response{
		{{err: errors.New("connection timeout")}},
		{{err: errors.New("quota exceeded")}, {err: errors.New("connection timeout")}},
		{
			{err: errors.New("connection timeout")},
			{err: errors.New("quota exceeded")},
			{err: errors.New("rate limit hit 429")},
		},
		{{err: errors.New("503 service unavailable")}},
		{
			{err: errors.New("quota exceeded")},
			{err: errors.New("quota exceeded, limit: 0")},
		},
	}

	for i, script := range scripts {
		backend := &scriptedBackend{script: script}
		client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
		require.NoError(t, err)

		_, err = client.Invoke(context.Background(), Request{Prompt: "p"})

		require.Error(t, err, "script %d", i)
		assert.ErrorIs(t, err, ErrServiceExhausted, "script %d", i)
		assert.LessOrEqual(t, backend.callCount(), 4, "script %d", i)
	}
}

func TestClient_TargetIndexMonotonicUnderConcurrency(t *testing.T) {
	var calls atomic.Int64
	backend := BackendFunc(func(_ context.Context, target string, _ Request) (string, error) {
		calls.Add(1)
		if target == "primary" {
			return "", errors.New("quota exceeded")
		}
		return "downgraded result", nil
	})

	client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			text, invokeErr := client.Invoke(context.Background(), Request{Prompt: "p"})
			if assert.NoError(t, invokeErr) {
				results[slot] = text
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "downgraded result", r)
	}
	assert.True(t, client.Downgraded())
	assert.Equal(t, "secondary", client.Target())
}

func TestClient_Reset(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{err: errors.New("quota exceeded")},
		{text: "ok"},
	}}
	client, err := NewClient(backend, fastConfig("primary", "secondary"), nil)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	require.True(t, client.Downgraded())

	client.Reset()

	assert.False(t, client.Downgraded())
	assert.Equal(t, "primary", client.Target())
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	backend := &scriptedBackend{script: []response{
		{err: errors.New("connection timeout")},
	}}

	cfg := fastConfig("primary")
	cfg.MaxAttemptsPerTarget = 5
	cfg.Backoffs[ClassTransientNetwork] = Backoff{Base: 10 * time.Second, Multiplier: 1, Cap: 10 * time.Second}

	client, err := NewClient(backend, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Invoke(ctx, Request{Prompt: "p"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&scriptedBackend{script: []response{{}}}, Config{}, nil)
	assert.Error(t, err)

	_, err = NewClient(nil, fastConfig("primary"), nil)
	assert.Error(t, err)
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{errors.New("quota exceeded for project"), ClassQuotaExhausted},
		{errors.New("requests per day limit: 0"), ClassQuotaExhausted},
		{errors.New("HTTP 429 rate limit"), ClassRateLimited},
		{errors.New("503 service unavailable"), ClassServerOverload},
		{errors.New("connection refused"), ClassTransientNetwork},
		{errors.New("unexpected EOF"), ClassTransientNetwork},
		{errors.New("tls handshake failure"), ClassTransientNetwork},
		{errors.New("model rejected the payload"), ClassFatal},
		{context.DeadlineExceeded, ClassTransientNetwork},
		{errEmptyResponse, ClassEmptyResponse},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, DefaultClassifier(tc.err), "error %v", tc.err)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Multiplier: 2, Cap: 10 * time.Second}

	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 2*time.Second, b.Delay(0))
}
