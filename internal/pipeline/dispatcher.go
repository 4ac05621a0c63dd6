package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
)

// Endpoints are the fixed outbound webhook URLs, one per event class.
type Endpoints struct {
	Warnings    string
	Discussions string
}

// Outcome is the result of delivering one event.
type Outcome struct {
	Sent bool
	Err  error
}

// Tally counts outcomes across a cycle.
type Tally struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func (t *Tally) add(o Outcome) {
	if o.Sent {
		t.Sent++
	} else {
		t.Failed++
	}
}

// Dispatcher composes notifications and posts them. Text and image
// enrichment are best-effort: a failed fetch only drops that part.
type Dispatcher struct {
	text       TextFetcher
	images     ImageFetcher
	poster     Poster
	publisher  Publisher
	endpoints  Endpoints
	textBudget int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewDispatcher creates a Dispatcher. publisher may be nil.
func NewDispatcher(text TextFetcher, images ImageFetcher, poster Poster, publisher Publisher, endpoints Endpoints, textBudget int, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		text:       text,
		images:     images,
		poster:     poster,
		publisher:  publisher,
		endpoints:  endpoints,
		textBudget: textBudget,
		logger:     logger,
		metrics:    metrics,
	}
}

// DispatchWarning delivers one warning with its raw text and plot image.
func (d *Dispatcher) DispatchWarning(ctx context.Context, ev domain.WarningEvent) Outcome {
	return d.dispatchWarning(ctx, ev, false)
}

// DispatchWarnings delivers each warning in order. One failure never stops
// the rest.
func (d *Dispatcher) DispatchWarnings(ctx context.Context, events []domain.WarningEvent) Tally {
	return d.dispatchWarnings(ctx, events, false)
}

// DispatchDiscussion delivers one discussion with its embedded image.
func (d *Dispatcher) DispatchDiscussion(ctx context.Context, item domain.DiscussionItem) Outcome {
	content := domain.DiscussionMessage(item, d.textBudget)
	file := d.fetchImage(ctx, item.ImageURL, "discussion_id", item.ID)

	o := d.post(ctx, domain.ClassDiscussions, d.endpoints.Discussions, content, file, "discussion_id", item.ID)
	if o.Sent {
		d.publish(ctx, domain.Notification{
			ID:         item.ID,
			Class:      domain.ClassDiscussions,
			Content:    content,
			DetectedAt: domain.Now(),
			Discussion: &item,
		})
	}
	return o
}

// DispatchDiscussions delivers each discussion in order.
func (d *Dispatcher) DispatchDiscussions(ctx context.Context, items []domain.DiscussionItem) Tally {
	var t Tally
	for _, item := range items {
		t.add(d.DispatchDiscussion(ctx, item))
	}
	return t
}

func (d *Dispatcher) dispatchWarnings(ctx context.Context, events []domain.WarningEvent, simulated bool) Tally {
	var t Tally
	for _, ev := range events {
		t.add(d.dispatchWarning(ctx, ev, simulated))
	}
	return t
}

func (d *Dispatcher) dispatchWarning(ctx context.Context, ev domain.WarningEvent, simulated bool) Outcome {
	text := d.fetchText(ctx, ev)
	file := d.fetchImage(ctx, ev.PlotURL, "event_id", ev.ID)
	content := domain.WarningMessage(ev, text, d.textBudget)

	o := d.post(ctx, domain.ClassWarnings, d.endpoints.Warnings, content, file, "event_id", ev.ID)
	if o.Sent {
		d.publish(ctx, domain.Notification{
			ID:         ev.ID,
			Class:      domain.ClassWarnings,
			Content:    content,
			Simulated:  simulated,
			DetectedAt: domain.Now(),
			Warning:    &ev,
		})
	}
	return o
}

func (d *Dispatcher) fetchText(ctx context.Context, ev domain.WarningEvent) string {
	if ev.TextURL == "" || d.text == nil {
		return ""
	}
	text, err := d.text.FetchText(ctx, ev.TextURL)
	if err != nil {
		d.logger.Warn("raw text unavailable, sending without it", "event_id", ev.ID, "error", err)
		return ""
	}
	return text
}

func (d *Dispatcher) fetchImage(ctx context.Context, url, idKey, id string) *domain.Attachment {
	if url == "" || d.images == nil {
		return nil
	}
	file, err := d.images.FetchImage(ctx, url)
	if err != nil {
		d.logger.Warn("image unavailable, sending without attachment", idKey, id, "error", err)
		return nil
	}
	return file
}

func (d *Dispatcher) post(ctx context.Context, class, endpoint, content string, file *domain.Attachment, idKey, id string) Outcome {
	err := d.poster.Post(ctx, endpoint, content, file)
	if err != nil {
		if !errors.Is(err, domain.ErrDispatch) {
			err = &domain.DispatchError{Stage: "post", Err: err}
		}
		d.metrics.DispatchOutcomes.WithLabelValues(class, "failed").Inc()
		d.logger.Error("dispatch failed", "class", class, idKey, id, "error", err)
		return Outcome{Err: err}
	}
	d.metrics.DispatchOutcomes.WithLabelValues(class, "sent").Inc()
	d.logger.Info("notification sent", "class", class, idKey, id, "attachment", file != nil)
	return Outcome{Sent: true}
}

func (d *Dispatcher) publish(ctx context.Context, n domain.Notification) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, n); err != nil {
		d.metrics.PublishErrors.Inc()
		d.logger.Warn("publish notification failed", "class", n.Class, "id", n.ID, "error", err)
	}
}
