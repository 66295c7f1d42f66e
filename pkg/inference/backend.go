// Package inference wraps calls to a remote generative-inference service
// behind a stable contract: retry with per-class backoff on the current
// target, an ordered fallback chain of alternate targets for quota
// exhaustion, and a single terminal error that callers branch on.
package inference

import "context"

// Request is one logical generation request. Prompt wording is the caller's
// concern; the client only moves it.
type Request struct {
	System string   `json:"system,omitempty"`
	Prompt string   `json:"prompt"`
	Images [][]byte `json:"images,omitempty"`
}

// Backend performs one raw call against a named target of the remote
// service. Implementations are expected to be unreliable; the Client exists
// to absorb that.
type Backend interface {
	Generate(ctx context.Context, target string, req Request) (string, error)
}

// The BackendFunc type adapts a function to a Backend.
type BackendFunc func(ctx context.Context, target string, req Request) (string, error)

func (f BackendFunc) Generate(ctx context.Context, target string, req Request) (string, error) {
	return f(ctx, target, req)
}
