package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	httpadapter "github.com/couchcryptid/storm-alert-service/internal/adapter/http"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/iem"
	kafkaadapter "github.com/couchcryptid/storm-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/spc"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/webhook"
	"github.com/couchcryptid/storm-alert-service/internal/config"
	"github.com/couchcryptid/storm-alert-service/internal/dedup"
	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/pipeline"
)

// simulateEvery spaces manual simulations; each one can post many webhooks.
const simulateEvery = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	// Optional notification stream (KAFKA_ENABLED / KAFKA_BROKERS).
	var (
		publisher pipeline.Publisher
		writer    *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	feed := iem.NewClient(cfg.SBWFeedURL, cfg.HTTPTimeout, metrics, logger)
	discussions := spc.NewClient(cfg.DiscussionFeedURL, cfg.HTTPTimeout, metrics, logger)
	images := webhook.NewImageFetcher(cfg.HTTPTimeout, metrics, logger)
	poster := webhook.NewPoster(cfg.HTTPTimeout, cfg.WebhookRate, cfg.WebhookBurst, logger)

	extract := domain.DefaultExtractOptions()
	extract.Padding = cfg.BBoxPadding
	extract.RawTextURL = cfg.RawTextURL

	dispatcher := pipeline.NewDispatcher(feed, images, poster, publisher,
		pipeline.Endpoints{Warnings: cfg.WarningWebhookURL, Discussions: cfg.DiscussionWebhookURL},
		cfg.TextBudget, logger, metrics)

	scheduler := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Feed:               feed,
		Discussions:        discussions,
		Geocoder:           geocoder,
		Dispatcher:         dispatcher,
		Warnings:           dedup.NewWarningTracker(dedup.Policy(cfg.DedupPolicy), cfg.DiscussionSeenCap, cfg.DiscussionRetention),
		Seen:               dedup.NewDiscussionTracker(cfg.DiscussionSeenCap, cfg.DiscussionRetention),
		ClearOnFetchError:  cfg.WarningFetchFailure == config.FetchFailureClear,
		Extract:            extract,
		WarningInterval:    cfg.WarningPollInterval,
		DiscussionInterval: cfg.DiscussionPollInterval,
	}, logger, metrics)

	simulator := pipeline.NewSimulator(feed, geocoder, dispatcher, extract, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Status:          scheduler,
		Feed:            feed,
		Simulator:       simulator,
		Extract:         extract,
		SimulateLimiter: rate.NewLimiter(rate.Every(simulateEvery), 1),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start polling.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// In-flight cycles observe the cancelled context; wait for them up to the deadline.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown deadline")
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
