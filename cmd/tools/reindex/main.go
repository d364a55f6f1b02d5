// Command reindex re-embeds stored records, typically after switching the
// embedding provider or model. Resumes are re-extracted from their stored
// PDFs; job and saved descriptions are re-embedded from their payload text.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"resume-matcher/internal/config"
	"resume-matcher/internal/cv"
	"resume-matcher/internal/embedding"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/storage"

	"go.uber.org/zap"
)

func main() {
	var (
		dryRun     bool
		limit      int
		collection string
		cfgFile    string
		debug      bool
	)
	flag.BoolVar(&dryRun, "dry-run", true, "If true, do not persist updates; just report what would change")
	flag.IntVar(&limit, "limit", 200, "Max number of records to process per collection")
	flag.StringVar(&collection, "collection", "", "Only reindex this collection (resumes, job_descriptions, user_job_descriptions)")
	flag.StringVar(&cfgFile, "config", "", "a config file")
	flag.BoolVar(&debug, "debug", false, "verbose/debug output")
	flag.Parse()

	log, err := logger.New(false, debug)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	config.LoadDotEnv(log)
	cfg, err := config.Load(nil, cfgFile)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index, err := storage.Open(ctx, cfg.Index, log)
	if err != nil {
		log.Fatal("open vector index", zap.Error(err))
	}
	defer index.Close()

	embedder, err := embedding.New(cfg.Embedding, cfg.Index.Dimension, log)
	if err != nil {
		log.Fatal("create embedder", zap.Error(err))
	}

	r := &reindexer{
		index:    index,
		embedder: embedder,
		text:     cv.NewDocconvExtractor(),
		dryRun:   dryRun,
		limit:    limit,
		log:      log,
	}
	stats, err := r.run(ctx, collection)
	if err != nil {
		log.Fatal("reindex failed", zap.Error(err))
	}
	log.Info("reindex finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
}
