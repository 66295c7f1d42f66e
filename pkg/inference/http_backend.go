package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// HTTPBackend calls a remote generation endpoint over HTTP. The endpoint
// accepts POST {prompt}/v1/generate with a JSON body naming the target model
// and returns {"text": ...}. Error bodies are surfaced verbatim so the
// classifier can read quota and overload hints out of them.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Target string   `json:"target"`
	System string   `json:"system,omitempty"`
	Prompt string   `json:"prompt"`
	Images [][]byte `json:"images,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (b *HTTPBackend) Generate(ctx context.Context, target string, req Request) (string, error) {
	body, err := json.Marshal(generateRequest{
		Target: target,
		System: req.System,
		Prompt: req.Prompt,
		Images: req.Images,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation returned status %d: %s", resp.StatusCode, payload)
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("generation response is not valid JSON: %w", err)
	}

	return decoded.Text, nil
}
