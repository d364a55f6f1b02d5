package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const testDim = 4

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "index.db"), testDim, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteIndex error: %v", err)
	}
	t.Cleanup(func() {
		_ = idx.Close()
	})
	return idx
}

func TestSQLiteUpsertRetrieve(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	ctx := context.Background()

	p := Point{ID: "r1", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j1", "filename": "a.pdf"}}
	if err := idx.Upsert(ctx, CollectionResumes, p); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := idx.Retrieve(ctx, CollectionResumes, "r1", true)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if got.Payload["filename"] != "a.pdf" {
		t.Fatalf("unexpected payload %v", got.Payload)
	}
	if len(got.Vector) != testDim || got.Vector[0] != 1 {
		t.Fatalf("unexpected vector %v", got.Vector)
	}

	withoutVector, err := idx.Retrieve(ctx, CollectionResumes, "r1", false)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if withoutVector.Vector != nil {
		t.Fatalf("expected no vector")
	}

	// Overwrite keeps a single row.
	p.Payload["filename"] = "b.pdf"
	if err := idx.Upsert(ctx, CollectionResumes, p); err != nil {
		t.Fatalf("Upsert overwrite error: %v", err)
	}
	n, err := idx.Count(ctx, CollectionResumes, Filter{})
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 point, got %d", n)
	}

	if _, err := idx.Retrieve(ctx, CollectionResumes, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Collections are separate namespaces.
	if _, err := idx.Retrieve(ctx, CollectionJobDescriptions, "r1", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound in other collection, got %v", err)
	}
}

func TestSQLiteRejectsBadInput(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "nope", Point{ID: "x", Vector: []float32{1, 0, 0, 0}}); err == nil {
		t.Fatalf("expected unknown collection error")
	}
	if err := idx.Upsert(ctx, CollectionResumes, Point{ID: "x", Vector: []float32{1}}); err == nil {
		t.Fatalf("expected dimension error")
	}
	if _, err := idx.Scroll(ctx, CollectionResumes, Match("bad key", "x"), 10, false); err == nil {
		t.Fatalf("expected invalid key error")
	}
}

func TestSQLiteScrollFilters(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	ctx := context.Background()

	points := []Point{
		{ID: "c", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j1"}},
		{ID: "a", Vector: []float32{0, 1, 0, 0}, Payload: map[string]any{"job_id": "j1"}},
		{ID: "b", Vector: []float32{0, 0, 1, 0}, Payload: map[string]any{"job_id": "j2"}},
		{ID: "d", Vector: []float32{0, 0, 0, 1}, Payload: map[string]any{"user_uploaded": true, "user_id": "default"}},
		{ID: "e", Vector: []float32{0, 0, 1, 1}, Payload: map[string]any{"user_uploaded": false, "user_id": "default"}},
	}
	if err := idx.Upsert(ctx, CollectionResumes, points...); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := idx.Scroll(ctx, CollectionResumes, Match("job_id", "j1"), 10, false)
	if err != nil {
		t.Fatalf("Scroll error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("expected [a c] ordered by id, got %v", ids(got))
	}

	got, err = idx.Scroll(ctx, CollectionResumes, Match("user_uploaded", true).And("user_id", "default"), 10, false)
	if err != nil {
		t.Fatalf("Scroll error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d" {
		t.Fatalf("expected [d], got %v", ids(got))
	}

	got, err = idx.Scroll(ctx, CollectionResumes, Filter{}, 2, false)
	if err != nil {
		t.Fatalf("Scroll error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit to cap results, got %d", len(got))
	}

	n, err := idx.Count(ctx, CollectionResumes, Match("job_id", "j1"))
	if err != nil || n != 2 {
		t.Fatalf("expected count 2, got %d (%v)", n, err)
	}
}

func TestSQLiteQueryOrdersBySimilarity(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	ctx := context.Background()

	points := []Point{
		{ID: "far", Vector: []float32{0, 0, 0, 1}, Payload: map[string]any{"job_id": "j1"}},
		{ID: "near", Vector: []float32{1, 0.1, 0, 0}, Payload: map[string]any{"job_id": "j1"}},
		{ID: "mid", Vector: []float32{1, 1, 0, 0}, Payload: map[string]any{"job_id": "j1"}},
		{ID: "other", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j2"}},
	}
	if err := idx.Upsert(ctx, CollectionResumes, points...); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	hits, err := idx.Query(ctx, CollectionResumes, []float32{1, 0, 0, 0}, Match("job_id", "j1"), 2)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "near" || hits[1].ID != "mid" {
		t.Fatalf("unexpected hits %v", hits)
	}
	if hits[0].Vector == nil {
		t.Fatalf("expected vectors on query hits")
	}
}

func TestSQLiteLatest(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	ctx := context.Background()

	points := []Point{
		{ID: "s-c", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j1", "timestamp": "2024-03-01T09:00:00.000000Z"}},
		{ID: "s-a", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j1", "timestamp": "2024-03-01T09:00:02.000000Z"}},
		{ID: "s-b", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j1", "timestamp": "2024-03-01T09:00:01.000000Z"}},
		{ID: "s-d", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j2", "timestamp": "2025-01-01T00:00:00.000000Z"}},
	}
	if err := idx.Upsert(ctx, CollectionAnalysisResults, points...); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := idx.Latest(ctx, CollectionAnalysisResults, Match("job_id", "j1"), "timestamp")
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got.ID != "s-a" {
		t.Fatalf("expected s-a, got %s", got.ID)
	}

	tie := Point{ID: "s-z", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "j1", "timestamp": "2024-03-01T09:00:02.000000Z"}}
	if err := idx.Upsert(ctx, CollectionAnalysisResults, tie); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	got, err = idx.Latest(ctx, CollectionAnalysisResults, Match("job_id", "j1"), "timestamp")
	if err != nil || got.ID != "s-z" {
		t.Fatalf("expected tie to go to s-z, got %v (%v)", got, err)
	}

	if _, err := idx.Latest(ctx, CollectionAnalysisResults, Match("job_id", "missing"), "timestamp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := idx.Latest(ctx, CollectionAnalysisResults, Filter{}, "time'stamp"); err == nil {
		t.Fatalf("expected invalid order key error")
	}
}

func TestSQLiteDelete(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, CollectionJobDescriptions,
		Point{ID: "j1", Vector: []float32{1, 0, 0, 0}},
		Point{ID: "j2", Vector: []float32{0, 1, 0, 0}},
	); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := idx.Delete(ctx, CollectionJobDescriptions, "j1", "missing"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := idx.Retrieve(ctx, CollectionJobDescriptions, "j1", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected j1 deleted, got %v", err)
	}
	if _, err := idx.Retrieve(ctx, CollectionJobDescriptions, "j2", false); err != nil {
		t.Fatalf("expected j2 kept, got %v", err)
	}
}

func TestPayloadRoundTripThroughIndex(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t)
	ctx := context.Background()

	snap := Snapshot{ID: "s1", JobID: "j1", ResultType: "job_ranking", Results: `[]`, Timestamp: "2024-01-01T00:00:00.000000Z", Count: 3}
	payload, err := EncodePayload(snap)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}
	if _, ok := payload["resume_id"]; ok {
		t.Fatalf("expected omitempty to drop resume_id")
	}
	if err := idx.Upsert(ctx, CollectionAnalysisResults, Point{ID: "s1", Vector: PlaceholderVector(testDim), Payload: payload}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	p, err := idx.Retrieve(ctx, CollectionAnalysisResults, "s1", false)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	var got Snapshot
	if err := DecodePayload(p.Payload, &got); err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}
	if got != snap {
		t.Fatalf("expected %+v, got %+v", snap, got)
	}
}

func ids(points []Point) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.ID)
	}
	return out
}
