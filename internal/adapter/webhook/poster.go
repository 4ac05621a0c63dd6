// Package webhook delivers notifications as multipart posts and downloads the
// images attached to them.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// Poster posts a content field and an optional file to webhook endpoints.
// Each endpoint gets its own limiter so one busy channel cannot starve another.
type Poster struct {
	httpClient *http.Client
	limit      rate.Limit
	burst      int
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPoster creates a Poster. perSecond <= 0 disables pacing.
func NewPoster(timeout time.Duration, perSecond float64, burst int, logger *slog.Logger) *Poster {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Poster{
		httpClient: &http.Client{Timeout: timeout},
		limit:      limit,
		burst:      burst,
		logger:     logger,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Post sends content, and file when non-nil, to endpoint. Errors are
// *domain.DispatchError.
func (p *Poster) Post(ctx context.Context, endpoint, content string, file *domain.Attachment) error {
	body, contentType, err := encodeMultipart(content, file)
	if err != nil {
		return &domain.DispatchError{Stage: "compose", Err: err}
	}

	if err := p.limiter(endpoint).Wait(ctx); err != nil {
		return &domain.DispatchError{Stage: "post", Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return &domain.DispatchError{Stage: "post", Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &domain.DispatchError{Stage: "post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.DispatchError{
			Stage: "status",
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	p.logger.Debug("webhook posted", "status", resp.StatusCode, "attachment", file != nil)
	return nil
}

func (p *Poster) limiter(endpoint string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[endpoint]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[endpoint] = l
	}
	return l
}

func encodeMultipart(content string, file *domain.Attachment) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("content", content); err != nil {
		return nil, "", fmt.Errorf("write content field: %w", err)
	}

	if file != nil && len(file.Data) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Filename))
		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
