package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/config"
	httpclient "resume-matcher/pkg/http"
)

func TestHashingEmbedderConstantDimension(t *testing.T) {
	t.Parallel()

	e := Checked(NewHashingEmbedder(DefaultDimension), DefaultDimension)
	texts := []string{
		"Go",
		"Senior backend engineer with Kubernetes and PostgreSQL experience",
		strings.Repeat("distributed systems ", 5000),
		"!!!",
	}
	for _, text := range texts {
		vec, err := e.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("Embed(%q...) error: %v", text[:min(len(text), 10)], err)
		}
		if len(vec) != DefaultDimension {
			t.Fatalf("expected %d dims, got %d", DefaultDimension, len(vec))
		}
	}
}

func TestHashingEmbedderDeterministicAndNormalised(t *testing.T) {
	t.Parallel()

	e := NewHashingEmbedder(DefaultDimension)
	a, _ := e.Embed(context.Background(), "Go developer, microservices")
	b, _ := e.Embed(context.Background(), "Go developer, microservices")

	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors at %d", i)
		}
		norm += float64(a[i]) * float64(a[i])
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %v", norm)
	}
}

func TestHashingEmbedderSimilarTextsCloser(t *testing.T) {
	t.Parallel()

	e := NewHashingEmbedder(DefaultDimension)
	ctx := context.Background()
	job, _ := e.Embed(ctx, "backend engineer go postgres kubernetes")
	near, _ := e.Embed(ctx, "experienced backend engineer: go, postgres, kubernetes")
	far, _ := e.Embed(ctx, "pastry chef specialising in french desserts")

	if dot(job, near) <= dot(job, far) {
		t.Fatalf("expected overlapping text to score higher")
	}
}

func TestCheckedRejectsEmptyAndWrongDimension(t *testing.T) {
	t.Parallel()

	e := Checked(NewHashingEmbedder(8), 16)
	if _, err := e.Embed(context.Background(), "   "); apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected validation error for blank text, got %v", err)
	}
	if _, err := e.Embed(context.Background(), "hello"); apperr.KindOf(err) != apperr.Dependency {
		t.Fatalf("expected dependency error for dimension mismatch, got %v", err)
	}
}

type slowEmbedder struct{}

func (slowEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) Dimension() int { return 4 }

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	e := Checked(WithTimeout(slowEmbedder{}, 20*time.Millisecond), 4)
	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if apperr.KindOf(err) != apperr.Dependency {
		t.Fatalf("expected dependency kind, got %v", apperr.KindOf(err))
	}
}

func TestOllamaEmbedder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "all-minilm" {
			t.Errorf("unexpected model %q", req.Model)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(httpclient.NewClient(time.Second), srv.URL, "", 3)
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestOpenAIEmbedderSendsDimensions(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req openAIEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		vec := make([]float32, req.Dimensions)
		vec[0] = 1
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"embedding": vec}}})
	}))
	defer srv.Close()

	e, err := New(config.EmbeddingConfig{Provider: "openai", URL: srv.URL, APIKey: "sk-test", Timeout: time.Second}, 384, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 384 {
		t.Fatalf("expected 384 dims, got %d", len(vec))
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
