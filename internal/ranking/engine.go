// Package ranking scores resumes against job descriptions (and the reverse),
// explains the best matches and keeps the latest result of each ranking.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/embedding"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/storage"

	"go.uber.org/zap"
)

// Result types stored with each snapshot.
const (
	ResultJobRanking    = "job_ranking"
	ResultSavedJobMatch = "saved_job_match"
	ResultAdHocMatch    = "adhoc_match"
)

type Settings struct {
	ExplainThreshold float64
	ExplainTop       int
	ExplainTimeout   time.Duration
	MaxScan          int
	NativeQuery      bool
	Dimension        int
}

func DefaultSettings() Settings {
	return Settings{
		ExplainThreshold: 0.6,
		ExplainTop:       MaxExplained,
		ExplainTimeout:   20 * time.Second,
		MaxScan:          200,
		NativeQuery:      true,
		Dimension:        embedding.DefaultDimension,
	}
}

// Result is a finished ranking as returned to callers and stored in snapshots.
type Result struct {
	JobID      string        `json:"job_id,omitempty"`
	ResumeID   string        `json:"resume_id,omitempty"`
	ResultType string        `json:"result_type"`
	Matches    []MatchRecord `json:"matches"`
	Count      int           `json:"count"`
	Timestamp  string        `json:"timestamp"`
}

// JobInput is an ad-hoc job description supplied with a match request.
type JobInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Engine struct {
	index     storage.VectorIndex
	embedder  embedding.Embedder
	explainer Explainer
	settings  Settings
	log       *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewEngine wires the engine. A nil explainer disables explanations.
func NewEngine(index storage.VectorIndex, embedder embedding.Embedder, explainer Explainer, settings Settings, log *zap.Logger) *Engine {
	if explainer == nil {
		explainer = disabledExplainer{}
	}
	if settings.MaxScan <= 0 {
		settings.MaxScan = DefaultSettings().MaxScan
	}
	if settings.ExplainTop <= 0 || settings.ExplainTop > MaxExplained {
		settings.ExplainTop = MaxExplained
	}
	if settings.Dimension <= 0 {
		settings.Dimension = embedder.Dimension()
	}
	return &Engine{
		index:     index,
		embedder:  embedder,
		explainer: explainer,
		settings:  settings,
		log:       logger.Named(log, "ranking"),
		now:       time.Now,
		newID:     timeOrderedID,
	}
}

func (e *Engine) ExplanationsEnabled() bool { return e.explainer.Enabled() }

// RankJob ranks every resume filed under jobID against the job description
// and stores the result as a snapshot.
func (e *Engine) RankJob(ctx context.Context, jobID string) (*Result, error) {
	point, err := e.retrieve(ctx, storage.CollectionJobDescriptions, jobID, "job")
	if err != nil {
		return nil, err
	}
	var job storage.JobDescription
	if err := storage.DecodePayload(point.Payload, &job); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "corrupt job record", err)
	}

	points, err := e.fetchCandidates(ctx, storage.CollectionResumes, storage.Match(storage.KeyJobID, jobID), point.Vector)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(points))
	for _, p := range points {
		var r storage.Resume
		if err := storage.DecodePayload(p.Payload, &r); err != nil {
			e.log.Warn("skipping corrupt resume record", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		candidates = append(candidates, Candidate{
			ID:       p.ID,
			Name:     r.DisplayName(),
			Filename: r.Filename,
			Vector:   p.Vector,
			Text:     r.ExcerptSource(),
		})
	}

	matches := e.ComputeRanking(ctx, Query{Vector: point.Vector, Text: job.Description}, candidates, ResumesForJob)
	res := e.newResult(ResultJobRanking, matches)
	res.JobID = jobID

	e.log.Info("ranked job",
		zap.String(logger.FieldJobID, jobID), zap.Int("candidates", len(candidates)), zap.Int("matches", len(matches)))
	e.saveSnapshot(ctx, res)
	return res, nil
}

// MatchSavedJobs ranks the default user's saved job descriptions against a resume.
func (e *Engine) MatchSavedJobs(ctx context.Context, resumeID string) (*Result, error) {
	point, resume, err := e.resume(ctx, resumeID)
	if err != nil {
		return nil, err
	}

	points, err := e.fetchCandidates(ctx, storage.CollectionUserJobDescriptions,
		storage.Match(storage.KeyUserID, storage.DefaultUserID), point.Vector)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(points))
	for _, p := range points {
		var job storage.JobDescription
		if err := storage.DecodePayload(p.Payload, &job); err != nil {
			e.log.Warn("skipping corrupt saved job", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		candidates = append(candidates, Candidate{ID: p.ID, Name: job.Name, Vector: p.Vector, Text: job.Description})
	}

	matches := e.ComputeRanking(ctx, Query{Vector: point.Vector, Text: resume.ExcerptSource()}, candidates, JobsForResume)
	res := e.newResult(ResultSavedJobMatch, matches)
	res.ResumeID = resumeID

	e.saveSnapshot(ctx, res)
	return res, nil
}

// MatchAdHoc embeds the supplied job descriptions and ranks them against a
// resume. The jobs themselves are not stored.
func (e *Engine) MatchAdHoc(ctx context.Context, resumeID string, jobs []JobInput) (*Result, error) {
	if len(jobs) == 0 {
		return nil, apperr.New(apperr.Validation, "at least one job description is required")
	}
	for i, j := range jobs {
		if strings.TrimSpace(j.Description) == "" {
			return nil, apperr.Newf(apperr.Validation, "job %d: description is required", i+1)
		}
	}

	point, resume, err := e.resume(ctx, resumeID)
	if err != nil {
		return nil, err
	}

	if len(jobs) > e.settings.MaxScan {
		e.log.Warn("ad-hoc job list exceeds scan cap, extra jobs omitted",
			zap.Int("jobs", len(jobs)), zap.Int("max_scan", e.settings.MaxScan))
		jobs = jobs[:e.settings.MaxScan]
	}

	candidates := make([]Candidate, 0, len(jobs))
	for i, j := range jobs {
		vec, err := e.embedder.Embed(ctx, j.Description)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(j.Name)
		if name == "" {
			name = fmt.Sprintf("Job %d", i+1)
		}
		// Zero-padded positional ids keep input order on score ties.
		candidates = append(candidates, Candidate{
			ID:     fmt.Sprintf("adhoc-%03d", i+1),
			Name:   name,
			Vector: vec,
			Text:   j.Description,
		})
	}

	matches := e.ComputeRanking(ctx, Query{Vector: point.Vector, Text: resume.ExcerptSource()}, candidates, JobsForResume)
	res := e.newResult(ResultAdHocMatch, matches)
	res.ResumeID = resumeID

	e.saveSnapshot(ctx, res)
	return res, nil
}

func (e *Engine) newResult(resultType string, matches []MatchRecord) *Result {
	if matches == nil {
		matches = []MatchRecord{}
	}
	return &Result{
		ResultType: resultType,
		Matches:    matches,
		Count:      len(matches),
		Timestamp:  storage.FormatTimestamp(e.now()),
	}
}

func (e *Engine) resume(ctx context.Context, resumeID string) (*storage.Point, storage.Resume, error) {
	var r storage.Resume
	point, err := e.retrieve(ctx, storage.CollectionResumes, resumeID, "resume")
	if err != nil {
		return nil, r, err
	}
	if err := storage.DecodePayload(point.Payload, &r); err != nil {
		return nil, r, apperr.Wrap(apperr.Internal, "corrupt resume record", err)
	}
	return point, r, nil
}

func (e *Engine) retrieve(ctx context.Context, collection, id, what string) (*storage.Point, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Newf(apperr.Validation, "%s id is required", what)
	}
	point, err := e.index.Retrieve(ctx, collection, id, true)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "%s %s not found", what, id)
		}
		return nil, apperr.Wrap(apperr.Dependency, "vector store unavailable", err)
	}
	return point, nil
}

// fetchCandidates loads at most MaxScan candidate points with vectors. The
// native nearest-neighbour query is preferred; a failure or a short answer
// falls back to a filtered scan. Scores are always recomputed by ComputeRanking, so both
// paths order identically.
func (e *Engine) fetchCandidates(ctx context.Context, collection string, filter storage.Filter, vector []float32) ([]storage.Point, error) {
	log := e.log.With(zap.String(logger.FieldCollection, collection))
	limit := e.settings.MaxScan

	var points []storage.Point
	native := false
	if e.settings.NativeQuery {
		hits, err := e.index.Query(ctx, collection, vector, filter, limit)
		if err != nil {
			log.Warn("nearest-neighbour query failed, falling back to scan", zap.Error(err))
		} else if e.complete(ctx, collection, filter, len(hits), limit) {
			native = true
			points = make([]storage.Point, 0, len(hits))
			for _, h := range hits {
				points = append(points, h.Point)
			}
		} else {
			log.Warn("nearest-neighbour query returned a partial candidate set, falling back to scan", zap.Int("hits", len(hits)))
		}
	}

	if !native {
		var err error
		points, err = e.index.Scroll(ctx, collection, filter, limit, true)
		if err != nil {
			return nil, apperr.Wrap(apperr.Dependency, "vector store unavailable", err)
		}
	}

	if len(points) >= limit {
		log.Warn("candidate set reached scan cap, further candidates omitted", zap.Int("max_scan", limit))
	}
	return points, nil
}

// complete reports whether a nearest-neighbour result holds every stored
// candidate up to limit. Approximate indexes may drop filtered rows.
func (e *Engine) complete(ctx context.Context, collection string, filter storage.Filter, hits, limit int) bool {
	if hits >= limit {
		return true
	}
	n, err := e.index.Count(ctx, collection, filter)
	if err != nil {
		e.log.Warn("candidate count failed", zap.String(logger.FieldCollection, collection), zap.Error(err))
		return false
	}
	return hits >= min(n, limit)
}

type disabledExplainer struct{}

func (disabledExplainer) Enabled() bool { return false }

func (disabledExplainer) Explain(context.Context, string, string, float64) (string, error) {
	return "", nil
}
