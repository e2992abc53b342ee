package publisher

import (
	"context"

	"sjsage522/productharvester/internal/crawler"
)

// CatalogReader lists the product URLs the content API already holds
type CatalogReader interface {
	ListPublished(ctx context.Context) ([]string, error)
}

// RecordPublisher creates one remote record per call and returns its id
type RecordPublisher interface {
	Publish(ctx context.Context, rec crawler.ProductRecord) (string, error)
}

// StreamPublisher fans out notifications about published records
type StreamPublisher interface {
	// Publish publishes a message to a stream
	Publish(key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
