package webhook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
)

const maxImageBytes = 8 << 20

// ImageFetcher downloads images to attach to notifications. Discussion image
// URLs come out of feed HTML, so production clients refuse private, loopback
// and metadata addresses.
type ImageFetcher struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewImageFetcher creates a fetcher backed by an SSRF-safe client.
func NewImageFetcher(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *ImageFetcher {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return NewImageFetcherWithClient(safeurl.Client(cfg).Client, metrics, logger)
}

// NewImageFetcherWithClient uses the given client as is.
func NewImageFetcherWithClient(client *http.Client, metrics *observability.Metrics, logger *slog.Logger) *ImageFetcher {
	return &ImageFetcher{httpClient: client, metrics: metrics, logger: logger}
}

// FetchImage downloads rawURL. Errors are *domain.FetchError.
func (f *ImageFetcher) FetchImage(ctx context.Context, rawURL string) (*domain.Attachment, error) {
	att, err := f.fetch(ctx, rawURL)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	f.metrics.FeedFetches.WithLabelValues("image", outcome).Inc()
	return att, err
}

func (f *ImageFetcher) fetch(ctx context.Context, rawURL string) (*domain.Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Op: "fetch image", URL: rawURL, Err: err}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Op: "fetch image", URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.FetchError{Op: "fetch image", URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, &domain.FetchError{Op: "fetch image", URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) > maxImageBytes {
		return nil, &domain.FetchError{Op: "fetch image", URL: rawURL, Err: fmt.Errorf("image exceeds %d bytes", maxImageBytes)}
	}
	if len(data) == 0 {
		return nil, &domain.FetchError{Op: "fetch image", URL: rawURL, Err: fmt.Errorf("empty body")}
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &domain.Attachment{
		Filename:    filenameFor(rawURL, ct),
		ContentType: ct,
		Data:        data,
	}, nil
}

// filenameFor names the attachment after the URL path when it looks like an
// image file, otherwise after the content type.
func filenameFor(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		switch strings.ToLower(path.Ext(base)) {
		case ".png", ".gif", ".jpg", ".jpeg", ".webp":
			return base
		}
	}
	switch {
	case strings.Contains(contentType, "gif"):
		return "image.gif"
	case strings.Contains(contentType, "jpeg"):
		return "image.jpg"
	default:
		return "image.png"
	}
}
