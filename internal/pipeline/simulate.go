package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// SimulationReport summarizes a historical replay.
type SimulationReport struct {
	RunID    string   `json:"run_id"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Features int      `json:"features"`
	Events   []string `json:"events"`
	Tally
}

// Simulator replays extraction and dispatch over a past window. It never reads
// or writes the dedup trackers: every warning in the window is sent.
type Simulator struct {
	feed       FeedFetcher
	geocoder   domain.Geocoder
	dispatcher *Dispatcher
	opts       domain.ExtractOptions
	logger     *slog.Logger
}

// NewSimulator creates a Simulator. geocoder may be nil.
func NewSimulator(feed FeedFetcher, geocoder domain.Geocoder, dispatcher *Dispatcher, opts domain.ExtractOptions, logger *slog.Logger) *Simulator {
	return &Simulator{
		feed:       feed,
		geocoder:   geocoder,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
	}
}

// Simulate dispatches every warning valid within [start, end]. Invalid
// timestamps fail with domain.ErrInvalidTimestamp before anything is fetched.
func (s *Simulator) Simulate(ctx context.Context, start, end string) (SimulationReport, error) {
	sts, err := domain.NormalizeTimestamp(start)
	if err != nil {
		return SimulationReport{}, err
	}
	ets, err := domain.NormalizeTimestamp(end)
	if err != nil {
		return SimulationReport{}, err
	}

	report := SimulationReport{RunID: uuid.NewString(), Start: sts, End: ets, Events: []string{}}
	logger := s.logger.With("run_id", report.RunID)

	doc, err := s.feed.FetchRange(ctx, sts, ets)
	if err != nil {
		logger.Warn("simulation fetch failed", "start", sts, "end", ets, "error", err)
		return SimulationReport{}, err
	}
	report.Features = len(doc.Features)

	events := domain.Extract(doc, s.opts)
	for i := range events {
		events[i] = domain.EnrichWithGeocoding(ctx, events[i], s.geocoder, logger)
		report.Events = append(report.Events, events[i].ID)
	}
	report.Tally = s.dispatcher.dispatchWarnings(ctx, events, true)

	logger.Info("simulation complete",
		"start", sts,
		"end", ets,
		"events", len(events),
		"sent", report.Sent,
		"failed", report.Failed,
	)
	return report, nil
}
