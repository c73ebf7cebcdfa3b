package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider calls an Ollama-style JSON endpoint:
// POST {"model", "prompt"} -> {"embedding": [...]}.
type HTTPProvider struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint URL.
func NewHTTPProvider(endpoint, model string, dim int, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		model:    model,
		dim:      dim,
		client:   &http.Client{Timeout: timeout},
	}
}

type httpEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type httpEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(httpEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out httpEmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if err := checkVector(out.Embedding, p.dim); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

func (p *HTTPProvider) Dimension() int { return p.dim }

func (p *HTTPProvider) Model() string { return p.model }
