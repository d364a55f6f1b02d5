package embedding

import (
	"context"
	"fmt"
	"strings"

	httpclient "resume-matcher/pkg/http"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "all-minilm"
)

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	client  *httpclient.Client
	baseURL string
	model   string
	dim     int
}

func NewOllamaEmbedder(client *httpclient.Client, baseURL, model string, dim int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaEmbedder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		dim:     dim,
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbedResponse
	err := e.client.PostJSON(ctx, e.baseURL+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: text}, &resp)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: no embedding returned")
	}
	return resp.Embeddings[0], nil
}

func (e *OllamaEmbedder) Dimension() int { return e.dim }
