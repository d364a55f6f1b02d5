// Package embedding turns text into fixed-length vectors. Every provider is
// wrapped so callers see the same dimension and the same error kinds.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/config"
	httpclient "resume-matcher/pkg/http"

	"go.uber.org/zap"
)

// DefaultDimension matches all-minilm / MiniLM-L6 sentence embeddings.
const DefaultDimension = 384

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// New builds the configured provider wrapped with a per-call timeout and a
// dimension check.
func New(cfg config.EmbeddingConfig, dim int, log *zap.Logger) (Embedder, error) {
	if dim <= 0 {
		dim = DefaultDimension
	}
	client := httpclient.NewClient(cfg.Timeout + 5*time.Second)

	var base Embedder
	switch cfg.Provider {
	case "", "hashing":
		base = NewHashingEmbedder(dim)
	case "ollama":
		base = NewOllamaEmbedder(client, cfg.URL, cfg.Model, dim)
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings need an API key (OPENAI_API_KEY)")
		}
		base = NewOpenAIEmbedder(client, cfg.URL, cfg.APIKey, cfg.Model, dim)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if log != nil {
		log.Info("embedder ready", zap.String("provider", cfg.Provider), zap.Int("dimension", dim))
	}
	return Checked(WithTimeout(base, cfg.Timeout), dim), nil
}

type timeoutEmbedder struct {
	Embedder
	timeout time.Duration
}

// WithTimeout bounds every Embed call. A non-positive timeout returns e unchanged.
func WithTimeout(e Embedder, timeout time.Duration) Embedder {
	if timeout <= 0 {
		return e
	}
	return &timeoutEmbedder{Embedder: e, timeout: timeout}
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Embedder.Embed(ctx, text)
}

type checkedEmbedder struct {
	inner Embedder
	dim   int
}

// Checked rejects blank input before calling e, classifies provider failures
// as dependency errors and rejects vectors whose length is not dim.
func Checked(e Embedder, dim int) Embedder {
	return &checkedEmbedder{inner: e, dim: dim}
}

func (c *checkedEmbedder) Dimension() int { return c.dim }

func (c *checkedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.New(apperr.Validation, "cannot embed empty text")
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		if apperr.KindOf(err) != apperr.Internal {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.Dependency, "embedding failed", err)
	}
	if len(vec) != c.dim {
		return nil, apperr.Wrap(apperr.Dependency, "embedding failed",
			fmt.Errorf("expected %d dimensions, got %d", c.dim, len(vec)))
	}
	return vec, nil
}
