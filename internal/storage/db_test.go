package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestWhereClause(t *testing.T) {
	t.Parallel()

	where, args, err := whereClause(CollectionResumes, Match("job_id", "j1").And("user_uploaded", true), 2)
	if err != nil {
		t.Fatalf("whereClause error: %v", err)
	}
	want := "collection = $2 AND payload->>$3 = $4 AND payload->>$5 = $6"
	if where != want {
		t.Fatalf("unexpected where:\n got %s\nwant %s", where, want)
	}
	wantArgs := []any{CollectionResumes, "job_id", "j1", "user_uploaded", "true"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("unexpected args %v", args)
	}

	if _, _, err := whereClause("nope", Filter{}, 1); err == nil {
		t.Fatalf("expected unknown collection error")
	}
}

func TestPayloadText(t *testing.T) {
	t.Parallel()

	cases := map[any]string{
		"x":        "x",
		false:      "false",
		3:          "3",
		int64(7):   "7",
		float64(2): "2",
		0.5:        "0.5",
	}
	for in, want := range cases {
		if got := payloadText(in); got != want {
			t.Fatalf("payloadText(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestEFSearch(t *testing.T) {
	t.Parallel()

	cases := map[int]int{0: 40, 10: 40, 40: 40, 200: 200, 1000: 1000, 5000: 1000}
	for limit, want := range cases {
		if got := efSearch(limit); got != want {
			t.Fatalf("efSearch(%d) = %d, want %d", limit, got, want)
		}
	}
}

// Runs against a real pgvector database when TEST_DATABASE_URL is set.
func TestPostgresIndex(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	idx, err := NewPostgresIndex(ctx, dsn, testDim, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPostgresIndex error: %v", err)
	}
	defer idx.Close()

	points := []Point{
		{ID: "pg-near", Vector: []float32{1, 0.1, 0, 0}, Payload: map[string]any{"job_id": "pg-j1"}},
		{ID: "pg-far", Vector: []float32{0, 0, 0, 1}, Payload: map[string]any{"job_id": "pg-j1"}},
	}
	if err := idx.Upsert(ctx, CollectionResumes, points...); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	defer idx.Delete(ctx, CollectionResumes, "pg-near", "pg-far")

	hits, err := idx.Query(ctx, CollectionResumes, []float32{1, 0, 0, 0}, Match("job_id", "pg-j1"), 10)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "pg-near" {
		t.Fatalf("unexpected hits %v", hits)
	}

	n, err := idx.Count(ctx, CollectionResumes, Match("job_id", "pg-j1"))
	if err != nil || n != 2 {
		t.Fatalf("expected count 2, got %d (%v)", n, err)
	}

	t.Run("filtered query beyond default ef_search", func(t *testing.T) {
		const wanted, unrelated = 60, 400
		var batch []Point
		var ids []string
		for i := 0; i < wanted+unrelated; i++ {
			job, vec := "pg-wide", []float32{0.2, 1, float32(i%7) / 10, 0}
			if i >= wanted {
				// Unrelated points sit closer to the query than the wanted ones.
				job, vec = fmt.Sprintf("pg-other-%d", i%20), []float32{1, 0, float32(i%5) / 100, 0}
			}
			id := fmt.Sprintf("pg-wide-%03d", i)
			ids = append(ids, id)
			batch = append(batch, Point{ID: id, Vector: vec, Payload: map[string]any{"job_id": job}})
		}
		if err := idx.Upsert(ctx, CollectionResumes, batch...); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
		defer idx.Delete(ctx, CollectionResumes, ids...)

		hits, err := idx.Query(ctx, CollectionResumes, []float32{1, 0, 0, 0}, Match("job_id", "pg-wide"), 200)
		if err != nil {
			t.Fatalf("Query error: %v", err)
		}
		if len(hits) != wanted {
			t.Fatalf("expected %d filtered hits, got %d", wanted, len(hits))
		}
	})

	t.Run("latest by timestamp", func(t *testing.T) {
		snaps := []Point{
			{ID: "pg-snap-b", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "pg-j1", "timestamp": "2024-03-01T09:00:02.000000Z"}},
			{ID: "pg-snap-c", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "pg-j1", "timestamp": "2024-03-01T09:00:01.000000Z"}},
			{ID: "pg-snap-a", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"job_id": "pg-j1", "timestamp": "2024-03-01T09:00:00.000000Z"}},
		}
		if err := idx.Upsert(ctx, CollectionAnalysisResults, snaps...); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
		defer idx.Delete(ctx, CollectionAnalysisResults, "pg-snap-a", "pg-snap-b", "pg-snap-c")

		got, err := idx.Latest(ctx, CollectionAnalysisResults, Match("job_id", "pg-j1"), "timestamp")
		if err != nil {
			t.Fatalf("Latest error: %v", err)
		}
		if got.ID != "pg-snap-b" {
			t.Fatalf("expected pg-snap-b, got %s", got.ID)
		}
		if _, err := idx.Latest(ctx, CollectionAnalysisResults, Match("job_id", "pg-none"), "timestamp"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
