// Package embedding talks to an OpenAI-compatible /embeddings endpoint and
// returns L2-normalized vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"baria-go/internal/config"
	"baria-go/internal/vectorindex"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
	"baria-go/pkg/resilience"
)

// Embedder turns texts into unit-length vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Client is the HTTP embedder. The first call runs a readiness probe that
// checks the model answers with the configured dimension.
type Client struct {
	cfg     config.EmbeddingConfig
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig

	mu        sync.Mutex
	probeOnce *sync.Once
	probeErr  error
}

// NewClient builds a client from cfg. Nothing is sent until first use.
func NewClient(cfg config.EmbeddingConfig) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		retry:     resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		probeOnce: new(sync.Once),
	}
}

func (c *Client) Dimensions() int { return c.cfg.Dimensions }

// Ready runs the readiness probe once. A failed probe is retried on the next call.
func (c *Client) Ready(ctx context.Context) error {
	c.mu.Lock()
	once := c.probeOnce
	c.mu.Unlock()

	once.Do(func() {
		err := c.probe(ctx)
		c.mu.Lock()
		c.probeErr = err
		if err != nil {
			c.probeOnce = new(sync.Once)
		}
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeErr
}

func (c *Client) probe(ctx context.Context) error {
	vecs, err := c.call(ctx, []string{"ping"})
	if err != nil {
		log.Errorf("[EmbeddingClient] readiness probe failed, model: %s, error: %v", c.cfg.Model, err)
		return fmt.Errorf("embedding model not ready: %w", err)
	}
	if got := len(vecs[0]); got != c.cfg.Dimensions {
		return apperrors.Newf(apperrors.ErrDimensionMismatch, http.StatusInternalServerError,
			"model %s returns %d dimensions, configured %d", c.cfg.Model, got, c.cfg.Dimensions)
	}
	log.Infof("[EmbeddingClient] model %s ready, dimensions: %d", c.cfg.Model, c.cfg.Dimensions)
	return nil
}

// Embed returns one normalized vector per text. Texts are sent in batches of
// cfg.BatchSize.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := c.Ready(ctx); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.call(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		for _, v := range vecs {
			if len(v) != c.cfg.Dimensions {
				return nil, apperrors.Newf(apperrors.ErrDimensionMismatch, http.StatusInternalServerError,
					"got %d dimensions, want %d", len(v), c.cfg.Dimensions)
			}
			out = append(out, vectorindex.Normalize(v))
		}
	}
	return out, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var parsed embeddingResponse
	err = resilience.Retry(ctx, "embedding", c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &resilience.Permanent{Err: err}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return &resilience.Permanent{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call embedding api: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("embedding api returned %s: %s", resp.Status, bytes.TrimSpace(msg))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return &resilience.Permanent{Err: err}
			}
			return err
		}
		parsed = embeddingResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return &resilience.Permanent{Err: fmt.Errorf("failed to decode embedding response: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrDependencyUnavailable, http.StatusServiceUnavailable, err.Error())
	}

	if len(parsed.Data) != len(texts) {
		return nil, apperrors.Newf(apperrors.ErrDependencyUnavailable, http.StatusServiceUnavailable,
			"embedding api returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}
	// providers may return data out of order; fall back to position when index is unusable
	byIndex := true
	seen := make(map[int]bool, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || seen[d.Index] {
			byIndex = false
			break
		}
		seen[d.Index] = true
	}
	vecs := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		if len(d.Embedding) == 0 {
			return nil, apperrors.New(apperrors.ErrDependencyUnavailable, http.StatusServiceUnavailable, "embedding api returned an empty vector")
		}
		if byIndex {
			vecs[d.Index] = d.Embedding
		} else {
			vecs[i] = d.Embedding
		}
	}
	return vecs, nil
}
