// Package spc reads Storm Prediction Center mesoscale discussions from the
// SPC RSS feed.
package spc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
)

const maxFeedBytes = 8 << 20

var (
	lineBreak  = regexp.MustCompile(`(?i)<br\s*/?>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Client fetches and parses the discussion feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
	policy     *bluemonday.Policy
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a discussion feed client.
func NewClient(feedURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: timeout},
		policy:     bluemonday.StrictPolicy(),
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchDiscussions returns the items currently in the feed, in feed order.
func (c *Client) FetchDiscussions(ctx context.Context) ([]domain.DiscussionItem, error) {
	body, err := c.fetch(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.FeedFetches.WithLabelValues("discussions", outcome).Inc()
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, &domain.FetchError{Op: "parse discussions", URL: c.feedURL, Err: err}
	}

	items := c.convert(feed.Items)
	c.logger.Debug("discussions fetched", "items", len(items))
	return items, nil
}

func (c *Client) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return "", &domain.FetchError{Op: "fetch discussions", URL: c.feedURL, Err: err}
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.FetchError{Op: "fetch discussions", URL: c.feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.FetchError{Op: "fetch discussions", URL: c.feedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", &domain.FetchError{Op: "fetch discussions", URL: c.feedURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}

func (c *Client) convert(items []*gofeed.Item) []domain.DiscussionItem {
	out := make([]domain.DiscussionItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		id := strings.TrimSpace(item.GUID)
		if id == "" {
			id = strings.TrimSpace(item.Link)
		}
		if id == "" {
			c.logger.Debug("discussion item without guid or link skipped", "title", item.Title)
			continue
		}

		description := item.Description
		if description == "" {
			description = item.Content
		}

		d := domain.DiscussionItem{
			ID:       id,
			Title:    strings.TrimSpace(item.Title),
			Link:     strings.TrimSpace(item.Link),
			Body:     c.plainText(description),
			ImageURL: resolveImage(firstImageSrc(description), item.Link),
		}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			d.Published = &t
		}
		out = append(out, d)
	}
	return out
}

// plainText strips every tag, keeping line structure.
func (c *Client) plainText(s string) string {
	s = lineBreak.ReplaceAllString(s, "\n")
	s = html.UnescapeString(c.policy.Sanitize(s))
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\u00a0")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))
}

// firstImageSrc returns the src of the first <img> in s, or "".
func firstImageSrc(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "src" && len(val) > 0 {
					return strings.TrimSpace(string(val))
				}
			}
		}
	}
}

// resolveImage makes a relative src absolute against the item link. Only
// http(s) results are kept.
func resolveImage(src, link string) string {
	if src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		base, err := url.Parse(link)
		if err != nil || !base.IsAbs() {
			return ""
		}
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
