package main

import (
	"context"
	"fmt"
	"os"

	"resume-matcher/internal/cv"
	"resume-matcher/internal/embedding"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/storage"

	"go.uber.org/zap"
)

var reindexable = []string{
	storage.CollectionResumes,
	storage.CollectionJobDescriptions,
	storage.CollectionUserJobDescriptions,
}

type stats struct {
	Updated int
	Skipped int
	Failed  int
}

type reindexer struct {
	index    storage.VectorIndex
	embedder embedding.Embedder
	text     cv.TextExtractor
	dryRun   bool
	limit    int
	log      *zap.Logger
}

// run reindexes one collection, or every reindexable one when collection is empty.
func (r *reindexer) run(ctx context.Context, collection string) (stats, error) {
	targets := reindexable
	if collection != "" {
		found := false
		for _, c := range reindexable {
			if c == collection {
				found = true
			}
		}
		if !found {
			return stats{}, fmt.Errorf("collection %q cannot be reindexed", collection)
		}
		targets = []string{collection}
	}

	var total stats
	for _, c := range targets {
		s, err := r.collection(ctx, c)
		if err != nil {
			return total, err
		}
		total.Updated += s.Updated
		total.Skipped += s.Skipped
		total.Failed += s.Failed
	}
	return total, nil
}

func (r *reindexer) collection(ctx context.Context, collection string) (stats, error) {
	log := r.log.With(zap.String(logger.FieldCollection, collection))

	points, err := r.index.Scroll(ctx, collection, storage.Filter{}, r.limit, false)
	if err != nil {
		return stats{}, fmt.Errorf("scroll %s: %w", collection, err)
	}
	log.Info("records found", zap.Int("count", len(points)), zap.Int("limit", r.limit))

	var s stats
	for _, p := range points {
		text, err := r.sourceText(ctx, collection, p)
		if err != nil {
			log.Warn("no source text, skipping", zap.String("id", p.ID), zap.Error(err))
			s.Skipped++
			continue
		}

		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			log.Warn("embedding failed", zap.String("id", p.ID), zap.Error(err))
			s.Failed++
			continue
		}

		if r.dryRun {
			log.Info("would update", zap.String("id", p.ID), zap.String("text", logger.TruncateForLog(text, 60)))
			s.Updated++
			continue
		}
		if err := r.index.Upsert(ctx, collection, storage.Point{ID: p.ID, Vector: vec, Payload: p.Payload}); err != nil {
			log.Warn("upsert failed", zap.String("id", p.ID), zap.Error(err))
			s.Failed++
			continue
		}
		s.Updated++
	}
	return s, nil
}

// sourceText prefers the stored PDF for resumes and falls back to the
// retained text when the file is gone.
func (r *reindexer) sourceText(ctx context.Context, collection string, p storage.Point) (string, error) {
	if collection != storage.CollectionResumes {
		var j storage.JobDescription
		if err := storage.DecodePayload(p.Payload, &j); err != nil {
			return "", err
		}
		if j.Description == "" {
			return "", fmt.Errorf("empty description")
		}
		return j.Description, nil
	}

	var res storage.Resume
	if err := storage.DecodePayload(p.Payload, &res); err != nil {
		return "", err
	}
	if data, err := os.ReadFile(res.FilePath); err == nil {
		text, err := r.text.ExtractText(ctx, data)
		if err == nil {
			return text, nil
		}
		r.log.Debug("re-extraction failed, using stored text", zap.String("id", p.ID), zap.Error(err))
	}
	if text := res.ExcerptSource(); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("stored file unreadable and no retained text")
}
