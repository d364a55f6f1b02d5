package llm

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"text/template"

	"go.uber.org/zap"
)

//go:embed prompts/explain.tmpl
var explainPrompt string

var explainTemplate = template.Must(template.New("explain").Parse(explainPrompt))

const explainSystem = "You are a concise technical recruiter. Answer in plain prose."

// Generator is the part of Service the explainer needs.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Explainer writes a short justification for a resume/job match.
type Explainer struct {
	gen   Generator
	cache *Cache
	log   *zap.Logger
}

func NewExplainer(gen Generator, cache *Cache, log *zap.Logger) *Explainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Explainer{gen: gen, cache: cache, log: log}
}

func (e *Explainer) Enabled() bool { return true }

// Explain expects both excerpts already truncated by the caller.
func (e *Explainer) Explain(ctx context.Context, resume, job string, score float64) (string, error) {
	if e.cache != nil {
		if text, ok := e.cache.Get(resume, job, score); ok {
			return text, nil
		}
	}

	var prompt bytes.Buffer
	err := explainTemplate.Execute(&prompt, struct {
		Resume, Job, Percent string
	}{
		Resume:  resume,
		Job:     job,
		Percent: fmt.Sprintf("%.1f%%", score*100),
	})
	if err != nil {
		return "", fmt.Errorf("render explain prompt: %w", err)
	}

	text, err := e.gen.Generate(ctx, Request{System: explainSystem, Prompt: prompt.String(), MaxTokens: 200})
	if err != nil {
		return "", err
	}

	if e.cache != nil {
		e.cache.Set(resume, job, score, text)
	}
	return text, nil
}

// NoopExplainer is used when no LLM is configured.
type NoopExplainer struct{}

func (NoopExplainer) Enabled() bool { return false }

func (NoopExplainer) Explain(context.Context, string, string, float64) (string, error) {
	return "", nil
}
