package ranking

import (
	"context"
	"encoding/json"
	"errors"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// timeOrderedID returns a UUIDv7 so snapshots written in the same
// microsecond still sort by creation order.
func timeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// saveSnapshot appends res to analysis_results. Failures are logged only.
func (e *Engine) saveSnapshot(ctx context.Context, res *Result) {
	results, err := json.Marshal(res.Matches)
	if err != nil {
		e.log.Warn("encode snapshot", zap.Error(err))
		return
	}

	snap := storage.Snapshot{
		ID:         e.newID(),
		JobID:      res.JobID,
		ResumeID:   res.ResumeID,
		ResultType: res.ResultType,
		Results:    string(results),
		Timestamp:  res.Timestamp,
		Count:      res.Count,
	}
	payload, err := storage.EncodePayload(snap)
	if err != nil {
		e.log.Warn("encode snapshot payload", zap.Error(err))
		return
	}

	err = e.index.Upsert(ctx, storage.CollectionAnalysisResults, storage.Point{
		ID:      snap.ID,
		Vector:  storage.PlaceholderVector(e.settings.Dimension),
		Payload: payload,
	})
	if err != nil {
		e.log.Warn("failed to persist ranking snapshot",
			zap.String("result_type", res.ResultType), zap.Error(err))
	}
}

// LatestSnapshot returns the most recent snapshot for key=id and resultType.
// The boolean is false when none exists.
func (e *Engine) LatestSnapshot(ctx context.Context, key, id, resultType string) (*Result, bool, error) {
	if key != storage.KeyJobID && key != storage.KeyResumeID {
		return nil, false, apperr.Newf(apperr.Validation, "unsupported snapshot key %q", key)
	}

	filter := storage.Match(key, id).And(storage.KeyResultType, resultType)
	point, err := e.index.Latest(ctx, storage.CollectionAnalysisResults, filter, storage.KeyTimestamp)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, apperr.Wrap(apperr.Dependency, "vector store unavailable", err)
	}

	var latest storage.Snapshot
	if err := storage.DecodePayload(point.Payload, &latest); err != nil {
		return nil, false, apperr.Wrap(apperr.Internal, "corrupt snapshot", err)
	}

	var matches []MatchRecord
	if err := json.Unmarshal([]byte(latest.Results), &matches); err != nil {
		return nil, false, apperr.Wrap(apperr.Internal, "corrupt snapshot", err)
	}
	if matches == nil {
		matches = []MatchRecord{}
	}
	return &Result{
		JobID:      latest.JobID,
		ResumeID:   latest.ResumeID,
		ResultType: latest.ResultType,
		Matches:    matches,
		Count:      latest.Count,
		Timestamp:  latest.Timestamp,
	}, true, nil
}
