// Package embedder turns chunk text into vectors, batching requests to
// an OpenAI-compatible embeddings endpoint and retrying transient
// failures with exponential backoff.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"lexserve/internal/observability"
)

// Embedder produces vectors for a batch of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// PartialFailure reports the batch positions that exhausted every retry
// and were given zero vectors instead of being dropped. Callers use it
// to route the affected chunks back through the pipeline for
// re-embedding.
type PartialFailure struct {
	Indices []int
	Total   int
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("embedder: %d of %d items need re-embedding: indices %v", len(e.Indices), e.Total, e.Indices)
}

// Config configures the HTTP embedding client.
type Config struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string // "Authorization" sends "Bearer <key>"; anything else is sent verbatim
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client is the production Embedder, talking to an OpenAI-compatible
// embeddings endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) Dimension() int { return c.cfg.Dimension }
func (c *Client) Name() string   { return c.cfg.Model }

// EmbedBatch embeds texts in chunks of cfg.BatchSize, retrying each
// sub-batch with exponential backoff. If a sub-batch still fails after
// retries, it falls back to embedding its items one at a time; any item
// that still fails gets a zero vector and is flagged for re-embedding by
// the caller (via the returned error, which names the failed indices).
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var failedIndices []int

	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := c.embedWithRetry(ctx, batch)
		if err == nil {
			copy(out[start:end], vecs)
			continue
		}

		// Per-item fallback.
		for i, t := range batch {
			idx := start + i
			v, itemErr := c.embedWithRetry(ctx, []string{t})
			if itemErr != nil || len(v) != 1 {
				out[idx] = make([]float32, c.cfg.Dimension)
				failedIndices = append(failedIndices, idx)
				continue
			}
			out[idx] = v[0]
		}
	}

	if len(failedIndices) > 0 {
		return out, &PartialFailure{Indices: failedIndices, Total: len(texts)}
	}
	return out, nil
}

func (c *Client) embedWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	observability.LoggerWithTrace(ctx).Debug().Int("inputs", len(inputs)).Str("model", c.cfg.Model).Msg("embedding request")
	op := func() ([][]float32, error) {
		vecs, err := c.embedOnce(ctx, inputs)
		if err != nil {
			return nil, err
		}
		return vecs, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
}

func (c *Client) embedOnce(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embedReq{Model: c.cfg.Model, Input: inputs})
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.cfg.BaseURL+c.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if c.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	} else if c.cfg.APIHeader != "" {
		req.Header.Set(c.cfg.APIHeader, c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedder: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		respErr := fmt.Errorf("embedder: %s: %s", resp.Status, string(observability.RedactJSON(raw)))
		// Only transient failures (5xx, 429, timeouts) are worth
		// retrying; other 4xx means the request itself is bad.
		if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(respErr)
		}
		return nil, respErr
	}

	var er embedResp
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("embedder: parse response: %w", err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("embedder: got %d embeddings, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}
