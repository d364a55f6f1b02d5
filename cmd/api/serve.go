package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "resume-matcher/docs" // Swagger docs
	"resume-matcher/internal/api"
	"resume-matcher/internal/config"
	"resume-matcher/internal/cv"
	"resume-matcher/internal/embedding"
	"resume-matcher/internal/llm"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/ranking"
	"resume-matcher/internal/resources"
	"resume-matcher/internal/storage"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "", "listen port (default 8080, or $PORT)")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func serve(parent context.Context) error {
	bootLog, _ := logger.New(false, false)
	config.LoadDotEnv(bootLog)

	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index, err := storage.Open(ctx, cfg.Index, log)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			log.Warn("close vector index", zap.Error(err))
		}
	}()
	log.Info("vector index ready", zap.String("backend", index.Backend()), zap.Int("dimension", cfg.Index.Dimension))

	embedder, err := embedding.New(cfg.Embedding, cfg.Index.Dimension, log)
	if err != nil {
		return err
	}

	svc, err := llm.NewService(ctx, cfg.LLM, log)
	if err != nil {
		return err
	}

	var (
		gen       llm.Generator
		explainer ranking.Explainer = llm.NoopExplainer{}
		cache     *llm.Cache
	)
	if svc != nil {
		gen = svc
		cache = llm.NewCache(cfg.LLM.CacheTTL)
		explainer = llm.NewExplainer(svc, cache, log)
	} else {
		log.Info("no LLM configured, explanations and contact extraction disabled")
	}

	files, err := resources.NewFileStore(cfg.Upload.Root)
	if err != nil {
		return err
	}

	engine := ranking.NewEngine(index, embedder, explainer, ranking.Settings{
		ExplainThreshold: cfg.Ranking.ExplainThreshold,
		ExplainTop:       cfg.Ranking.ExplainTop,
		ExplainTimeout:   cfg.LLM.Timeout,
		MaxScan:          cfg.Ranking.MaxScan,
		NativeQuery:      cfg.Ranking.NativeQuery,
		Dimension:        cfg.Index.Dimension,
	}, log)
	manager := resources.NewManager(index, embedder, cv.NewDocconvExtractor(), files, log)

	apiSrv := api.NewAPI(manager, engine, cv.NewExtractor(gen, log), cache, api.Options{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		IndexBackend:   index.Backend(),
		PublicURL:      cfg.Server.PublicURL,
	}, log)
	apiSrv.StartBackgroundWorkers(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(apiSrv),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		apiSrv.WaitBackgroundWorkers()
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	apiSrv.WaitBackgroundWorkers()
	return nil
}
