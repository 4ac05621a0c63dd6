// Package iem reads storm-based warnings and raw NWS text products from the
// Iowa Environmental Mesonet.
package iem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
)

const (
	// activeLayout is the minute-precision reference time the feed accepts for ts=.
	activeLayout = "2006-01-02T15:04Z"

	maxFeedBytes = 32 << 20
	maxTextBytes = 4 << 20
)

// Client fetches the storm-based warning feed and text products.
type Client struct {
	feedURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an IEM client for the given storm-based warning endpoint.
func NewClient(feedURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchActive returns every warning the feed considers active right now.
func (c *Client) FetchActive(ctx context.Context) (domain.FeedDocument, error) {
	params := url.Values{"ts": {domain.Now().Format(activeLayout)}}
	return c.fetchFeed(ctx, "fetch active", params)
}

// FetchRange returns every warning whose validity intersects [start, end].
// Both ends are normalized first; an inverted window is passed through as is.
func (c *Client) FetchRange(ctx context.Context, start, end string) (domain.FeedDocument, error) {
	sts, err := domain.NormalizeTimestamp(start)
	if err != nil {
		return domain.FeedDocument{}, fmt.Errorf("start: %w", err)
	}
	ets, err := domain.NormalizeTimestamp(end)
	if err != nil {
		return domain.FeedDocument{}, fmt.Errorf("end: %w", err)
	}
	return c.fetchFeed(ctx, "fetch range", url.Values{"sts": {sts}, "ets": {ets}})
}

func (c *Client) fetchFeed(ctx context.Context, op string, params url.Values) (domain.FeedDocument, error) {
	u, err := withQuery(c.feedURL, params)
	if err != nil {
		return domain.FeedDocument{}, &domain.FetchError{Op: op, URL: c.feedURL, Err: err}
	}

	var doc domain.FeedDocument
	if err := c.getJSON(ctx, op, "sbw", u, maxFeedBytes, &doc); err != nil {
		return domain.FeedDocument{}, err
	}
	c.logger.Debug("feed fetched", "op", op, "features", len(doc.Features))
	return doc, nil
}

// FetchText returns the body of the first product in a raw-text response.
// A response that decodes but does not carry a product yields "" and no error.
func (c *Client) FetchText(ctx context.Context, textURL string) (string, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "fetch text", "text", textURL, maxTextBytes, &raw); err != nil {
		return "", err
	}
	text, ok := firstProductText(raw)
	if !ok {
		c.logger.Debug("text product has no body", "url", textURL)
	}
	return text, nil
}

func (c *Client) getJSON(ctx context.Context, op, feed, u string, limit int64, dst any) error {
	err := c.doGetJSON(ctx, op, u, limit, dst)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.FeedFetches.WithLabelValues(feed, outcome).Inc()
	return err
}

func (c *Client) doGetJSON(ctx context.Context, op, u string, limit int64, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &domain.FetchError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.FetchError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &domain.FetchError{Op: op, URL: u, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, limit)).Decode(dst); err != nil {
		return &domain.FetchError{Op: op, URL: u, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func withQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// textResponse is the nwstext JSON shape; only the first product is read.
type textResponse struct {
	Data []struct {
		Text *string `json:"text"`
	} `json:"data"`
}

func firstProductText(raw json.RawMessage) (string, bool) {
	var resp textResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", false
	}
	if len(resp.Data) == 0 || resp.Data[0].Text == nil {
		return "", false
	}
	return *resp.Data[0].Text, true
}
