package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"resume-matcher/internal/embedding"
	"resume-matcher/internal/storage"

	"go.uber.org/zap"
)

const testDim = 8

type fileText struct{}

func (fileText) ExtractText(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}

func seed(t *testing.T, idx storage.VectorIndex, collection, id string, v any) {
	t.Helper()
	payload, err := storage.EncodePayload(v)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}
	if err := idx.Upsert(context.Background(), collection, storage.Point{ID: id, Vector: storage.PlaceholderVector(testDim), Payload: payload}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
}

func TestReindex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := storage.NewSQLiteIndex(filepath.Join(dir, "index.db"), testDim, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteIndex error: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	pdfPath := filepath.Join(dir, "r1.pdf")
	if err := os.WriteFile(pdfPath, []byte("go engineer"), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	seed(t, idx, storage.CollectionResumes, "r1", storage.Resume{ID: "r1", FilePath: pdfPath, TextPreview: "old"})
	seed(t, idx, storage.CollectionResumes, "r2", storage.Resume{ID: "r2", FilePath: filepath.Join(dir, "gone.pdf"), TextPreview: "retained text"})
	seed(t, idx, storage.CollectionResumes, "r3", storage.Resume{ID: "r3", FilePath: filepath.Join(dir, "gone.pdf")})
	seed(t, idx, storage.CollectionJobDescriptions, "j1", storage.JobDescription{ID: "j1", Name: "Job", Description: "go services"})

	emb := embedding.NewHashingEmbedder(testDim)
	newReindexer := func(dryRun bool) *reindexer {
		return &reindexer{index: idx, embedder: emb, text: fileText{}, dryRun: dryRun, limit: 100, log: zap.NewNop()}
	}

	dry, err := newReindexer(true).run(context.Background(), "")
	if err != nil {
		t.Fatalf("dry run error: %v", err)
	}
	if dry.Updated != 3 || dry.Skipped != 1 {
		t.Fatalf("unexpected dry-run stats %+v", dry)
	}
	p, err := idx.Retrieve(context.Background(), storage.CollectionResumes, "r1", true)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if p.Vector[0] != 1 {
		t.Fatalf("dry run must not change vectors")
	}

	got, err := newReindexer(false).run(context.Background(), storage.CollectionResumes)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got.Updated != 2 || got.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", got)
	}

	want, _ := emb.Embed(context.Background(), "go engineer")
	p, err = idx.Retrieve(context.Background(), storage.CollectionResumes, "r1", true)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	for i := range want {
		if p.Vector[i] != want[i] {
			t.Fatalf("expected vector re-embedded from the stored PDF")
		}
	}
	if p.Payload["text_preview"] != "old" {
		t.Fatalf("payload must be preserved, got %v", p.Payload)
	}

	if _, err := newReindexer(true).run(context.Background(), storage.CollectionAnalysisResults); err == nil {
		t.Fatalf("expected snapshots to be rejected")
	}
}
