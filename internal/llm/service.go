package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-matcher/internal/config"
	"resume-matcher/internal/logger"
	httpclient "resume-matcher/pkg/http"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGroq      Provider = "groq"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
	ProviderNone      Provider = "none"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

var defaultModels = map[Provider]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderGroq:      "llama-3.3-70b-versatile",
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderGemini:    "gemini-2.5-flash",
	ProviderOllama:    "llama3.1",
}

var ErrNotConfigured = errors.New("LLM provider not configured")

// Request is a single-turn chat completion.
type Request struct {
	System    string
	Prompt    string
	JSON      bool
	MaxTokens int
}

// Service talks to one chat-completion provider.
type Service struct {
	provider Provider
	model    string
	timeout  time.Duration
	log      *zap.Logger

	openai    *openai.Client
	anthropic *anthropic.Client
	gemini    *genai.Client
	http      *httpclient.Client
	ollamaURL string
}

// NewService returns nil, nil when no provider is usable; callers treat a nil
// Service as "LLM features disabled".
func NewService(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (*Service, error) {
	provider := Provider(strings.ToLower(strings.TrimSpace(cfg.Provider)))
	if provider == "" || provider == ProviderNone {
		return nil, nil
	}
	if provider != ProviderOllama && cfg.APIKey == "" {
		logger.Named(log, "llm").Warn("LLM provider set without API key, LLM features disabled",
			zap.String(logger.FieldProvider, string(provider)))
		return nil, nil
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[provider]
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	s := &Service{
		provider: provider,
		model:    model,
		timeout:  timeout,
		log:      logger.WithFields(logger.Named(log, "llm"), logger.ProviderFields(string(provider), model)...),
	}

	switch provider {
	case ProviderOpenAI, ProviderGroq:
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		baseURL := cfg.URL
		if baseURL == "" && provider == ProviderGroq {
			baseURL = groqBaseURL
		}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		client := openai.NewClient(opts...)
		s.openai = &client
	case ProviderAnthropic:
		opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.APIKey)}
		if cfg.URL != "" {
			opts = append(opts, anthropicoption.WithBaseURL(cfg.URL))
		}
		client := anthropic.NewClient(opts...)
		s.anthropic = &client
	case ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		s.gemini = client
	case ProviderOllama:
		s.http = httpclient.NewClient(timeout)
		s.ollamaURL = strings.TrimRight(cfg.URL, "/")
		if s.ollamaURL == "" {
			s.ollamaURL = "http://localhost:11434"
		}
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	s.log.Info("LLM service ready")
	return s, nil
}

func (s *Service) Provider() string {
	if s == nil {
		return string(ProviderNone)
	}
	return string(s.provider)
}

func (s *Service) Model() string {
	if s == nil {
		return ""
	}
	return s.model
}

// Generate sends req to the provider and returns the text of the reply.
// Every call is bounded by the configured timeout.
func (s *Service) Generate(ctx context.Context, req Request) (string, error) {
	if s == nil || s.provider == ProviderNone {
		return "", ErrNotConfigured
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 500
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		out string
		err error
	)
	switch s.provider {
	case ProviderOpenAI, ProviderGroq:
		out, err = s.callOpenAI(ctx, req)
	case ProviderAnthropic:
		out, err = s.callAnthropic(ctx, req)
	case ProviderGemini:
		out, err = s.callGemini(ctx, req)
	case ProviderOllama:
		out, err = s.callOllama(ctx, req)
	default:
		return "", fmt.Errorf("unknown provider: %s", s.provider)
	}
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%s returned an empty response", s.provider)
	}
	s.log.Debug("LLM response", zap.String("preview", logger.TruncateForLog(out, 200)))
	return out, nil
}

func (s *Service) callOpenAI(ctx context.Context, req Request) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(s.model),
		Messages:    messages,
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := s.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", s.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", s.provider)
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *Service) callAnthropic(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(0),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := s.anthropic.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (s *Service) callGemini(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := s.gemini.Models.GenerateContent(ctx, s.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

func (s *Service) callOllama(ctx context.Context, req Request) (string, error) {
	body := ollamaChatRequest{
		Model:   s.model,
		Stream:  false,
		Options: map[string]any{"temperature": 0, "num_predict": req.MaxTokens},
	}
	if req.System != "" {
		body.Messages = append(body.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, ollamaMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.Format = "json"
	}

	var resp ollamaChatResponse
	if err := s.http.PostJSON(ctx, s.ollamaURL+"/api/chat", nil, body, &resp); err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	return resp.Message.Content, nil
}
