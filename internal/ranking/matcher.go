package ranking

import (
	"context"
	"sort"
	"strings"

	"resume-matcher/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExcerptLength bounds each text handed to the explainer.
const ExcerptLength = 1000

// MaxExplained is the deepest rank that may carry an explanation.
const MaxExplained = 3

// Explainer produces a short justification for a match. Implementations may
// fail; the engine drops failed explanations.
type Explainer interface {
	Enabled() bool
	Explain(ctx context.Context, resume, job string, score float64) (string, error)
}

// Direction says which side of a ranking is the resume.
type Direction int

const (
	// ResumesForJob ranks resumes (candidates) against a job (query).
	ResumesForJob Direction = iota
	// JobsForResume ranks job descriptions (candidates) against a resume (query).
	JobsForResume
)

type Query struct {
	Vector []float32
	Text   string
}

type Candidate struct {
	ID       string
	Name     string
	Filename string
	Vector   []float32
	Text     string
}

// MatchRecord is one row of a ranking.
type MatchRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Filename    string  `json:"filename,omitempty"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
	Explanation *string `json:"explanation"`
}

// ComputeRanking scores every candidate against q by cosine similarity,
// orders by descending score (ties by ascending id), assigns dense 1-based
// ranks and explains the eligible top slice.
func (e *Engine) ComputeRanking(ctx context.Context, q Query, candidates []Candidate, dir Direction) []MatchRecord {
	scored := make([]MatchRecord, 0, len(candidates))
	texts := make(map[string]string, len(candidates))

	for _, c := range candidates {
		score, err := storage.CosineSimilarity(q.Vector, c.Vector)
		if err != nil {
			e.log.Warn("skipping candidate with unusable vector", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		scored = append(scored, MatchRecord{
			ID:       c.ID,
			Name:     c.Name,
			Filename: c.Filename,
			Score:    score,
		})
		texts[c.ID] = c.Text
	}

	sortMatches(scored)
	for i := range scored {
		scored[i].Rank = i + 1
	}

	e.explain(ctx, scored, q.Text, texts, dir)
	return scored
}

func sortMatches(matches []MatchRecord) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// eligible reports whether a ranked match may carry an explanation.
func (e *Engine) eligible(m MatchRecord) bool {
	return m.Rank <= e.settings.ExplainTop && m.Score >= e.settings.ExplainThreshold
}

// explain fills Explanation for eligible matches. Calls run concurrently,
// each under its own timeout, and never fail the ranking.
func (e *Engine) explain(ctx context.Context, matches []MatchRecord, queryText string, texts map[string]string, dir Direction) {
	if !e.explainer.Enabled() {
		return
	}

	queryExcerpt := Excerpt(queryText, ExcerptLength)

	var g errgroup.Group
	for i := range matches {
		if !e.eligible(matches[i]) {
			continue
		}
		i := i
		g.Go(func() error {
			m := &matches[i]
			target := Excerpt(texts[m.ID], ExcerptLength)

			resume, job := target, queryExcerpt
			if dir == JobsForResume {
				resume, job = queryExcerpt, target
			}

			cctx := ctx
			if e.settings.ExplainTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, e.settings.ExplainTimeout)
				defer cancel()
			}

			text, err := e.explainer.Explain(cctx, resume, job, m.Score)
			if err != nil {
				e.log.Warn("explanation failed", zap.String("id", m.ID), zap.Int("rank", m.Rank), zap.Error(err))
				return nil
			}
			if text = strings.TrimSpace(text); text != "" {
				m.Explanation = &text
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Excerpt returns at most n runes of s.
func Excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
