package harvest

import (
	"context"
	"time"
)

// Enumerator produces a lazy, ordered sequence of candidate documents newer
// than since (all known documents when since is zero). It holds no local
// state; resumption is driven purely by server-side paging. The callback may
// return ErrStopEnumeration to end the walk early.
type Enumerator interface {
	Enumerate(ctx context.Context, since time.Time, fn func(Document) error) error
}

// Fetcher retrieves the raw content for a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Normalizer converts raw fetched content into plain text. It returns an
// error wrapping ErrLowQuality for content that fails the quality gate.
type Normalizer interface {
	Normalize(doc Document, res FetchResult) (string, error)
}

// Scrubber lightly anonymizes personal names in ruling text.
type Scrubber interface {
	Scrub(text string) string
}

// VisitedSet is the durable record of already-processed document IDs.
type VisitedSet interface {
	Contains(id string) bool
	Mark(ids []string) error
}

// RecordSink accumulates normalized records into bounded output shards.
type RecordSink interface {
	Write(rec Record) error
	Flush() error
	Close() error
}

// WatermarkStore persists the last successful run's timestamp.
type WatermarkStore interface {
	Load() (time.Time, bool, error)
	Save(ts time.Time) error
}

// Publisher uploads a finalized shard file to the remote dataset store.
type Publisher interface {
	PublishShard(ctx context.Context, path string) error
}

// Throttle enforces the polite delay between consecutive remote calls.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
