package embedding

import (
	"context"
	"fmt"
	"strings"

	httpclient "resume-matcher/pkg/http"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = "text-embedding-3-small"
)

// OpenAIEmbedder requests reduced-dimension text-embedding-3 vectors so they
// share the index with the local models.
type OpenAIEmbedder struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
	model   string
	dim     int
}

func NewOpenAIEmbedder(client *httpclient.Client, baseURL, apiKey, model string, dim int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIEmbedder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
	}
}

type openAIEmbedRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp openAIEmbedResponse
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	err := e.client.PostJSON(ctx, e.baseURL+"/embeddings", headers,
		openAIEmbedRequest{Input: text, Model: e.model, Dimensions: e.dim}, &resp)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }
