package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Dedup policies for the warning tracker.
const (
	DedupPreviousCycle = "previous-cycle"
	DedupCumulative    = "cumulative"
)

// What a failed warning fetch does to the tracked set.
const (
	FetchFailureKeep  = "keep"
	FetchFailureClear = "clear"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream feeds.
	SBWFeedURL        string
	RawTextURL        string
	DiscussionFeedURL string
	HTTPTimeout       time.Duration

	// Outbound webhooks, one per event class.
	WarningWebhookURL    string
	DiscussionWebhookURL string
	WebhookRate          float64 // posts per second
	WebhookBurst         int

	WarningPollInterval    time.Duration
	DiscussionPollInterval time.Duration

	BBoxPadding float64
	TextBudget  int

	DedupPolicy         string
	WarningFetchFailure string
	DiscussionRetention time.Duration
	DiscussionSeenCap   int

	// Optional event stream of dispatched notifications.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parsePositiveDuration("HTTP_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	warningInterval, err := parsePositiveDuration("WARNING_POLL_INTERVAL", "60s")
	if err != nil {
		return nil, err
	}
	discussionInterval, err := parsePositiveDuration("DISCUSSION_POLL_INTERVAL", "60s")
	if err != nil {
		return nil, err
	}
	retention, err := parsePositiveDuration("DISCUSSION_RETENTION", "168h")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	padding, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("BBOX_PADDING", "0.2"), 64)
	if err != nil || padding < 0 {
		return nil, errors.New("invalid BBOX_PADDING")
	}
	webhookRate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("WEBHOOK_RATE", "0.5"), 64)
	if err != nil || webhookRate <= 0 {
		return nil, errors.New("invalid WEBHOOK_RATE")
	}

	textBudget, err := parsePositiveInt("MESSAGE_TEXT_BUDGET", 1800)
	if err != nil {
		return nil, err
	}
	webhookBurst, err := parsePositiveInt("WEBHOOK_BURST", 5)
	if err != nil {
		return nil, err
	}
	seenCap, err := parsePositiveInt("DISCUSSION_SEEN_CAP", 5000)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SBWFeedURL:        sharedcfg.EnvOrDefault("IEM_SBW_URL", "https://mesonet.agron.iastate.edu/geojson/sbw.geojson"),
		RawTextURL:        sharedcfg.EnvOrDefault("IEM_TEXT_URL", "https://mesonet.agron.iastate.edu/api/1/nwstext.json"),
		DiscussionFeedURL: sharedcfg.EnvOrDefault("SPC_MD_RSS_URL", "https://www.spc.noaa.gov/products/spcmdrss.xml"),
		HTTPTimeout:       httpTimeout,

		WarningWebhookURL:    os.Getenv("WARNING_WEBHOOK_URL"),
		DiscussionWebhookURL: os.Getenv("DISCUSSION_WEBHOOK_URL"),
		WebhookRate:          webhookRate,
		WebhookBurst:         webhookBurst,

		WarningPollInterval:    warningInterval,
		DiscussionPollInterval: discussionInterval,

		BBoxPadding: padding,
		TextBudget:  textBudget,

		DedupPolicy:         sharedcfg.EnvOrDefault("DEDUP_POLICY", DedupPreviousCycle),
		WarningFetchFailure: sharedcfg.EnvOrDefault("WARNING_FETCH_FAILURE", FetchFailureKeep),
		DiscussionRetention: retention,
		DiscussionSeenCap:   seenCap,

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "storm-alerts"),
		KafkaEnabled: kafkaEnabled,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.WarningWebhookURL == "" {
		return nil, errors.New("WARNING_WEBHOOK_URL is required")
	}
	if cfg.DiscussionWebhookURL == "" {
		return nil, errors.New("DISCUSSION_WEBHOOK_URL is required")
	}
	if cfg.DedupPolicy != DedupPreviousCycle && cfg.DedupPolicy != DedupCumulative {
		return nil, fmt.Errorf("invalid DEDUP_POLICY %q (want %s or %s)", cfg.DedupPolicy, DedupPreviousCycle, DedupCumulative)
	}
	if cfg.WarningFetchFailure != FetchFailureKeep && cfg.WarningFetchFailure != FetchFailureClear {
		return nil, fmt.Errorf("invalid WARNING_FETCH_FAILURE %q (want %s or %s)", cfg.WarningFetchFailure, FetchFailureKeep, FetchFailureClear)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
