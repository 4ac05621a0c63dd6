package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/pipeline"
)

// --- mocks ---

type feedResult struct {
	doc domain.FeedDocument
	err error
}

type mockFeed struct {
	mu       sync.Mutex
	results  []feedResult // returned in order, the last one repeats
	calls    int
	ranges   [][2]string
	rangeDoc domain.FeedDocument
	rangeErr error
}

func (m *mockFeed) FetchActive(_ context.Context) (domain.FeedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.results) == 0 {
		return docOf(), nil
	}
	r := m.results[min(m.calls-1, len(m.results)-1)]
	return r.doc, r.err
}

func (m *mockFeed) FetchRange(_ context.Context, start, end string) (domain.FeedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges = append(m.ranges, [2]string{start, end})
	return m.rangeDoc, m.rangeErr
}

func (m *mockFeed) rangeCalls() [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]string(nil), m.ranges...)
}

type mockDiscussions struct {
	mu    sync.Mutex
	items []domain.DiscussionItem
	err   error
}

func (m *mockDiscussions) FetchDiscussions(_ context.Context) ([]domain.DiscussionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.DiscussionItem(nil), m.items...), nil
}

type mockText struct {
	text string
	err  error
}

func (m *mockText) FetchText(_ context.Context, _ string) (string, error) {
	return m.text, m.err
}

type mockImages struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (m *mockImages) FetchImage(_ context.Context, url string) (*domain.Attachment, error) {
	m.mu.Lock()
	m.urls = append(m.urls, url)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Attachment{Filename: "image.png", ContentType: "image/png", Data: []byte("\x89PNG")}, nil
}

type post struct {
	endpoint string
	content  string
	file     *domain.Attachment
}

// mockPoster records every post and fails those whose content contains failOn.
type mockPoster struct {
	mu     sync.Mutex
	posts  []post
	failOn string
}

func (m *mockPoster) Post(_ context.Context, endpoint, content string, file *domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, post{endpoint: endpoint, content: content, file: file})
	if m.failOn != "" && strings.Contains(content, m.failOn) {
		return &domain.DispatchError{Stage: "status", Err: fmt.Errorf("status 500")}
	}
	return nil
}

func (m *mockPoster) sent() []post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]post(nil), m.posts...)
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Notification
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, n)
	return nil
}

type mockGeocoder struct {
	result domain.GeocodingResult
	err    error
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return m.result, m.err
}

// --- fixtures ---

var testEndpoints = pipeline.Endpoints{
	Warnings:    "https://hooks.example.com/warnings",
	Discussions: "https://hooks.example.com/discussions",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func warningFeature(t *testing.T, wfo string, etn int) json.RawMessage {
	t.Helper()
	f := map[string]any{
		"type": "Feature",
		"id":   fmt.Sprintf("2024-%s-TO-W-%04d", wfo, etn),
		"properties": map[string]any{
			"ps":           domain.TornadoWarning,
			"wfo":          wfo,
			"eventid":      etn,
			"year":         2024,
			"phenomena":    "TO",
			"significance": "W",
			"status":       "NEW",
			"issue":        "2024-05-26T19:00:00Z",
			"expire":       "2024-05-26T19:45:00Z",
			"product_id":   fmt.Sprintf("202405261900-K%s-WFUS54-TOR%s", wfo, wfo),
			"tornadotag":   "RADAR INDICATED",
		},
		"geometry": map[string]any{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{-98, 35}, {-97, 35}, {-97, 36}, {-98, 36}, {-98, 35}}},
		},
	}
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	return raw
}

func docOf(features ...json.RawMessage) domain.FeedDocument {
	return domain.FeedDocument{Type: "FeatureCollection", Features: features}
}

func loadFixture(t *testing.T, name string) domain.FeedDocument {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	var doc domain.FeedDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

type harness struct {
	text      *mockText
	images    *mockImages
	poster    *mockPoster
	publisher *mockPublisher
	metrics   *observability.Metrics
}

func newHarness() *harness {
	return &harness{
		text:      &mockText{text: "BULLETIN - EAS ACTIVATION REQUESTED\nTORNADO WARNING"},
		images:    &mockImages{},
		poster:    &mockPoster{},
		publisher: &mockPublisher{},
		metrics:   observability.NewMetricsForTesting(),
	}
}

func (h *harness) dispatcher() *pipeline.Dispatcher {
	return pipeline.NewDispatcher(h.text, h.images, h.poster, h.publisher, testEndpoints,
		domain.DefaultTextBudget, discardLogger(), h.metrics)
}
