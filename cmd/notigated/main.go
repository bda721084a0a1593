package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notigate/internal/api"
	"notigate/internal/config"
	"notigate/internal/ingest"
	"notigate/internal/logging"
	"notigate/internal/model"
	"notigate/internal/pipeline"
	"notigate/internal/predict"
	"notigate/internal/results"
	"notigate/internal/rules"
	"notigate/internal/storage"
)

const version = "0.3.0"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./notigate.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	manager, err := config.NewManager(config.ResolvePath(cfgPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting notigate", "version", version, "config", manager.Path())

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, cancelInit := context.WithTimeout(ctx, 10*time.Second)
		err := store.Init(initCtx)
		cancelInit()
		if err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	ruleOpts := []rules.Option{
		rules.WithSpamDetector(rules.NewPhraseSpamDetector(cfg.Spam.Phrases, cfg.Spam.MinHits)),
	}
	if cfg.Spam.DedupeTTL > 0 {
		ruleOpts = append(ruleOpts, rules.WithDuplicateDetector(rules.NewRecentDuplicateDetector(cfg.Spam.DedupeTTL)))
	}
	var pipeOpts []pipeline.Option
	if cfg.Pipeline.EnableMLFiltering && cfg.Pipeline.PredictURL != "" {
		predictor := predict.NewHTTPPredictor(cfg.Pipeline.PredictURL, cfg.Pipeline.PredictTimeout)
		ruleOpts = append(ruleOpts, rules.WithPredictor(predictor, cfg.Scoring.RelevanceFloor, cfg.Pipeline.PredictTimeout))
		pipeOpts = append(pipeOpts, pipeline.WithPredictor(predictor))
	}
	pipeOpts = append(pipeOpts, pipeline.WithRuleFilter(rules.NewRuleFilter(logger, ruleOpts...)))
	if store != nil {
		pipeOpts = append(pipeOpts, pipeline.WithBehaviorStore(store))
	}
	engine, err := pipeline.New(cfg.Pipeline, cfg.Scoring, logger, pipeOpts...)
	if err != nil {
		logger.Error("pipeline construction failed", "err", err)
		os.Exit(1)
	}

	history := results.NewHistory(cfg.Results.HistoryLimit)
	userStats := results.NewUserStats(cfg.Results.UserLimit)

	batches := make(chan ingest.Batch, cfg.Ingest.ChannelBuffer)
	ingest.StartREST(ctx, manager, batches, logger)
	ingest.StartKafka(ctx, manager, batches, logger)
	api.Start(ctx, manager, history, userStats, engine, logger, version)

	go manager.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", manager.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	go run(ctx, engine, store, history, userStats, batches, logger)

	<-ctx.Done()
	logger.Info("shutting down")
}

func run(ctx context.Context, engine *pipeline.Pipeline, store storage.Store, history *results.History, userStats *results.UserStats, batches <-chan ingest.Batch, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-batches:
			result := engine.Filter(ctx, batch.Notifications, batch.Context)
			userID := ""
			if batch.Context.UserSession != nil {
				userID = batch.Context.UserSession.UserID
			}
			decision := results.Decision{
				Timestamp: time.Now().UTC(),
				UserID:    userID,
				Delivered: notificationIDs(result.Notifications),
				Stats:     result.Stats,
			}
			history.Add(decision)
			userStats.Update(userID, result.Stats)
			if store != nil {
				_ = store.SaveDecision(ctx, decision)
			}
			logger.Info("batch filtered",
				"source", batch.Source,
				"total", result.Stats.Total,
				"delivered", len(result.Notifications),
				"confidence", result.Stats.MLConfidence,
				"degraded", result.Stats.Degraded,
			)
		}
	}
}

func notificationIDs(list []model.Notification) []string {
	ids := make([]string, 0, len(list))
	for _, n := range list {
		ids = append(ids, n.ID)
	}
	return ids
}
