package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/longdoc-translator/internal/config"
	"github.com/MimeLyc/longdoc-translator/internal/fetch"
	"github.com/MimeLyc/longdoc-translator/internal/httpapi"
	"github.com/MimeLyc/longdoc-translator/internal/jobs"
	"github.com/MimeLyc/longdoc-translator/internal/notion"
	"github.com/MimeLyc/longdoc-translator/internal/persistence"
	"github.com/MimeLyc/longdoc-translator/internal/service"
	"github.com/MimeLyc/longdoc-translator/internal/splitter"
	"github.com/MimeLyc/longdoc-translator/internal/tokenizer"
	"github.com/MimeLyc/longdoc-translator/internal/translator"
	"github.com/MimeLyc/longdoc-translator/pkg/log"
)

func main() {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Server.LogLevel))

	store := jobs.NewStore(cfg.Store.TTL, cfg.Store.MaxEntries)
	snapshots, err := persistence.New(cfg.Persistence.DataDir, store)
	if err != nil {
		log.Fatal("Failed to open data dir %s: %v", cfg.Persistence.DataDir, err)
	}

	llmClient, err := translator.NewClient(translator.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		log.Fatal("Failed to create LLM client: %v", err)
	}

	var publisher jobs.Publisher
	if cfg.Notion.APIKey != "" {
		publisher, err = notion.NewPublisher(notion.Config{
			APIKey:       cfg.Notion.APIKey,
			ParentPageID: cfg.Notion.ParentPageID,
		})
		if err != nil {
			log.Fatal("Failed to create Notion publisher: %v", err)
		}
	} else {
		log.Warn("NOTION_API_KEY not set, publishing disabled")
	}

	split := splitter.New(tokenizer.Default(), cfg.Pipeline.MaxChunkTokens, cfg.Pipeline.OverlapSentences)
	worker := jobs.NewWorker(store, split.Split, fetch.New(), llmClient, publisher, jobs.WorkerConfig{
		MaxRetries:        cfg.Pipeline.MaxRetries,
		RetryInitialDelay: cfg.Pipeline.RetryInitialDelay,
		ChunkTimeout:      cfg.Pipeline.ChunkTimeout,
	})

	svc := service.New(*cfg, store, worker, snapshots)

	restored, requeued, err := snapshots.LoadAndRecover(worker.Enqueue)
	if err != nil {
		log.Fatal("Failed to recover snapshot: %v", err)
	}
	log.Info("Recovered %d jobs from snapshot, %d requeued", restored, requeued)
	snapshots.CleanupExpired(cfg.Persistence.Retention)

	worker.Start()

	scheduler := cron.New()
	saveSpec := "@every " + cfg.Persistence.SnapshotInterval.String()
	if _, err := scheduler.AddFunc(saveSpec, func() {
		if err := snapshots.Save(); err != nil {
			log.Error("Periodic snapshot save failed: %v", err)
		}
	}); err != nil {
		log.Fatal("Failed to schedule snapshot save: %v", err)
	}
	if _, err := scheduler.AddFunc("@daily", func() {
		snapshots.CleanupExpired(cfg.Persistence.Retention)
	}); err != nil {
		log.Fatal("Failed to schedule retention cleanup: %v", err)
	}
	scheduler.Start()

	server := httpapi.NewServer(svc, httpapi.WithAccessKeys(cfg.Server.AccessKeys))

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received %s, shutting down", sig)
	case err := <-errCh:
		log.Error("HTTP server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed: %v", err)
	}

	<-scheduler.Stop().Done()
	worker.Stop()

	if err := snapshots.Save(); err != nil {
		log.Error("Final snapshot save failed: %v", err)
	}
	log.Info("Shutdown complete")
}
