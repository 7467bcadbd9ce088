package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a single catalog page. Implementations do not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// ProductRepository upserts records keyed by ProductKey and reports how many
// were new versus already present.
type ProductRepository interface {
	UpsertBatch(ctx context.Context, records []ScrapedRecord) (UpsertResult, error)
	GetProduct(ctx context.Context, key string) (PersistedProduct, error)
}

// JobStore persists crawl job provenance.
type JobStore interface {
	CreateJob(ctx context.Context, job CrawlJob) (string, error)
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error
	GetJob(ctx context.Context, jobID string) (CrawlJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]CrawlJob, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for submitted crawls.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Pauser blocks for the given delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// Hasher computes digests for archive naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Sequence hands out monotonically increasing numbers for synthetic record IDs.
type Sequence interface {
	Next() int64
}
