package cv

import (
	"context"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/llm"

	"go.uber.org/zap"
)

// Extractor pulls contact details out of resume text with an LLM.
type Extractor struct {
	gen llm.Generator
	log *zap.Logger
}

// NewExtractor accepts a nil generator; Extract then reports the feature as unavailable.
func NewExtractor(gen llm.Generator, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{gen: gen, log: log}
}

func (e *Extractor) Enabled() bool { return e.gen != nil }

func (e *Extractor) Extract(ctx context.Context, text string) (*llm.Contact, error) {
	if e.gen == nil {
		return nil, apperr.New(apperr.Unavailable, "LLM not configured")
	}

	contact, err := llm.ExtractContact(ctx, e.gen, text)
	if err != nil {
		e.log.Warn("contact extraction failed", zap.Error(err))
		return nil, apperr.Wrap(apperr.Dependency, "LLM extraction failed", err)
	}
	return contact, nil
}
