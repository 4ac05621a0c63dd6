// Package pipeline drives the fetch, detect and dispatch cycles for both event
// classes and the on-demand historical replay.
package pipeline

import (
	"context"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// FeedFetcher reads the storm-based warning feed.
type FeedFetcher interface {
	FetchActive(ctx context.Context) (domain.FeedDocument, error)
	FetchRange(ctx context.Context, start, end string) (domain.FeedDocument, error)
}

// DiscussionFetcher reads the mesoscale discussion feed.
type DiscussionFetcher interface {
	FetchDiscussions(ctx context.Context) ([]domain.DiscussionItem, error)
}

// TextFetcher downloads a raw-text product body.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// ImageFetcher downloads an image to attach to a notification.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (*domain.Attachment, error)
}

// Poster delivers a message, with an optional attachment, to a webhook.
type Poster interface {
	Post(ctx context.Context, endpoint, content string, file *domain.Attachment) error
}

// Publisher mirrors delivered notifications to an event stream.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}
