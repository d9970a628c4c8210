package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinkeshwar/videopipeline/internal/aiclient"
	"github.com/tinkeshwar/videopipeline/internal/config"
	"github.com/tinkeshwar/videopipeline/internal/logger"
	"github.com/tinkeshwar/videopipeline/internal/media"
	"github.com/tinkeshwar/videopipeline/internal/store"
	"github.com/tinkeshwar/videopipeline/internal/videojob"
	"github.com/tinkeshwar/videopipeline/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)
	logger.Info("starting pipeline",
		"db_path", cfg.DBPath, "video_dir", cfg.VideoDir, "output_dir", cfg.OutputDir)

	st, err := store.Open(store.Options{Path: cfg.DBPath, TimeoutSec: cfg.DBTimeout})
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	repo := videojob.New(st, cfg.DBMaxRetries, time.Duration(cfg.DBRetryDelay*float64(time.Second)), cfg.HistoryEnabled)
	prober := media.NewProber(cfg.FFprobePath)
	client := aiclient.New(cfg.OpenAIAPIKey, "")

	scanner := &workers.Scanner{Repo: repo, Prober: prober, Dir: cfg.VideoDir}
	approver := &workers.Approver{
		Repo:          repo,
		AutoConfirmed: cfg.AutoConfirmed,
		AutoAccept:    cfg.AutoAccept,
		BatchSize:     cfg.ConfirmBatchSize,
	}
	synthesizer := &workers.Synthesizer{
		Repo:               repo,
		Client:             client,
		Cfg:                cfg,
		Model:              cfg.AIModel,
		BatchSize:          cfg.AIBatchSize,
		PromptOverridePath: cfg.PromptOverridePath,
	}
	transcoder := &workers.Transcoder{
		Repo:              repo,
		Prober:            prober,
		OutputDir:         cfg.OutputDir,
		MinReductionRatio: cfg.MinReductionRatio,
	}
	mover := &workers.Mover{Repo: repo, BatchSize: cfg.ReplaceBatchSize}

	supervisor := &workers.Supervisor{
		Loops: []workers.Loop{
			{Name: "scanner", Interval: time.Duration(cfg.ScanInterval) * time.Second, Worker: scanner},
			{Name: "approver", Interval: time.Duration(cfg.ConfirmInterval) * time.Second, Worker: approver},
			{Name: "synthesizer", Interval: time.Duration(cfg.AIInterval) * time.Second, Worker: synthesizer},
			{Name: "transcoder", Interval: time.Duration(cfg.SleepInterval) * time.Second, Worker: transcoder},
			{Name: "mover", Interval: time.Duration(cfg.ReplaceInterval) * time.Second, Worker: mover},
		},
		BaseRetryDelay:       time.Duration(cfg.ProcessRetryDelay) * time.Second,
		MaxRetryDelay:        time.Duration(cfg.MaxRetryDelay) * time.Second,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := supervisor.Run(ctx); err != nil {
		logger.Error("supervisor stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
