// Package harvest defines core types shared across subsystems and the
// pipeline driver that ties them together.
package harvest

import (
	"errors"
	"fmt"
)

// SourceTag is the constant source field stamped on every record.
const SourceTag = "Tuchtrechtspraak"

// Record is the canonical shape written to output shards, one JSON object
// per line.
type Record struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Document identifies one remote ruling produced by an Enumerator.
type Document struct {
	// ID is the canonical ruling URL. It is the dedupe key: two
	// enumerations of the same ID refer to the same logical record.
	ID string
	// ContentURL is where the raw content is retrieved from. It may equal
	// ID when the source exposes no separate manifestation URL.
	ContentURL string
}

// FetchResult is the raw payload returned by a Fetcher.
type FetchResult struct {
	Body        []byte
	StatusCode  int
	ContentType string
}

// RunStats tallies the outcome of one driver run.
type RunStats struct {
	Processed      int
	DedupeSkips    int
	FetchFailures  int
	QualityRejects int
}

// ErrLowQuality marks content that was fetched and parsed but fell below
// the minimum-length quality gate. Such documents are marked visited since
// refetching will not change the source.
var ErrLowQuality = errors.New("content below quality gate")

// ErrStopEnumeration is returned from an enumeration callback to end the
// enumeration early without error.
var ErrStopEnumeration = errors.New("stop enumeration")

// HTTPStatusError reports a non-success HTTP status from the remote source.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}
