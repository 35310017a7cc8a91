package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultVisitedBatchSize is how many processed IDs are buffered before the
// visited log is appended to. Batching amortizes I/O; the batch is also the
// flush boundary that bounds data loss on interruption.
const DefaultVisitedBatchSize = 50

// DriverConfig controls one harvest run.
type DriverConfig struct {
	// MaxRecords caps how many new records are processed this run.
	// Zero or negative means unlimited.
	MaxRecords int
	// VisitedBatchSize overrides DefaultVisitedBatchSize when positive.
	VisitedBatchSize int
	// Reset ignores any persisted watermark and crawls the full backlog.
	Reset bool
	// RunID tags log lines for this run.
	RunID string
}

// Driver orchestrates enumeration, dedupe, fetch, normalize, and shard
// writes for a single sequential run. It owns the visited set and the open
// shard exclusively; no locking is needed.
type Driver struct {
	enumerator Enumerator
	fetcher    Fetcher
	normalizer Normalizer
	scrubber   Scrubber
	visited    VisitedSet
	sink       RecordSink
	watermarks WatermarkStore
	retry      *ExponentialRetryPolicy
	throttle   Throttle
	clock      Clock
	logger     *zap.Logger
	cfg        DriverConfig
}

// NewDriver constructs a Driver. The scrubber may be nil to disable
// anonymization; the throttle may be nil to disable the polite delay.
func NewDriver(
	enumerator Enumerator,
	fetcher Fetcher,
	normalizer Normalizer,
	scrubber Scrubber,
	visited VisitedSet,
	sink RecordSink,
	watermarks WatermarkStore,
	retry *ExponentialRetryPolicy,
	throttle Throttle,
	clock Clock,
	cfg DriverConfig,
	logger *zap.Logger,
) *Driver {
	if retry == nil {
		retry = NewExponentialRetryPolicy()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.VisitedBatchSize <= 0 {
		cfg.VisitedBatchSize = DefaultVisitedBatchSize
	}
	return &Driver{
		enumerator: enumerator,
		fetcher:    fetcher,
		normalizer: normalizer,
		scrubber:   scrubber,
		visited:    visited,
		sink:       sink,
		watermarks: watermarks,
		retry:      retry,
		throttle:   throttle,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run executes one harvest pass. Per-document failures degrade to skip and
// continue; only local persistence failures (shard or visited log writes)
// abort the run. The returned stats are valid even when err is non-nil.
func (d *Driver) Run(ctx context.Context) (RunStats, error) {
	since, hadPrior, err := d.resolveWatermark()
	if err != nil {
		return RunStats{}, err
	}
	if since.IsZero() {
		d.logger.Info("no previous run detected, fetching full backlog",
			zap.String("run_id", d.cfg.RunID))
	} else {
		d.logger.Info("fetching updates since last run",
			zap.String("run_id", d.cfg.RunID),
			zap.Time("since", since))
	}

	var stats RunStats
	pending := newPendingBatch()

	enumErr := d.enumerator.Enumerate(ctx, since, func(doc Document) error {
		if d.cfg.MaxRecords > 0 && stats.Processed >= d.cfg.MaxRecords {
			return ErrStopEnumeration
		}
		if d.visited.Contains(doc.ID) || pending.contains(doc.ID) {
			stats.DedupeSkips++
			DedupeSkips.Inc()
			return nil
		}
		return d.processDocument(ctx, doc, &stats, pending)
	})

	flushErr := d.flush(pending.ids)
	closeErr := d.sink.Close()

	switch {
	case enumErr == nil || errors.Is(enumErr, ErrStopEnumeration):
	case errors.Is(enumErr, errAbortRun):
		return stats, enumErr
	case ctx.Err() != nil:
		d.logger.Warn("run canceled, progress up to last flush is preserved",
			zap.String("run_id", d.cfg.RunID), zap.Error(ctx.Err()))
	default:
		// A dead page ends the run early; everything processed so far is
		// already durable, so the next run resumes where this one stopped.
		d.logger.Warn("enumeration ended early",
			zap.String("run_id", d.cfg.RunID), zap.Error(enumErr))
	}
	if flushErr != nil {
		return stats, flushErr
	}
	if closeErr != nil {
		return stats, fmt.Errorf("close shard writer: %w", closeErr)
	}

	if stats.Processed > 0 || !hadPrior {
		if err := d.watermarks.Save(d.clock.Now()); err != nil {
			return stats, fmt.Errorf("save watermark: %w", err)
		}
	}

	d.logger.Info("run complete",
		zap.String("run_id", d.cfg.RunID),
		zap.Int("processed", stats.Processed),
		zap.Int("dedupe_skips", stats.DedupeSkips),
		zap.Int("fetch_failures", stats.FetchFailures),
		zap.Int("quality_rejects", stats.QualityRejects),
	)
	return stats, nil
}

// errAbortRun wraps local persistence failures so they can be told apart
// from enumeration-source failures after the loop.
var errAbortRun = errors.New("abort run")

// pendingBatch buffers IDs between visited-log appends. The seen set
// mirrors every ID handled this run, so the dedupe gate catches an
// identifier re-yielded by the source before its batch reaches the log.
// SRU paging can re-yield records when the result set shifts mid-walk.
type pendingBatch struct {
	ids  []string
	seen map[string]struct{}
}

func newPendingBatch() *pendingBatch {
	return &pendingBatch{seen: make(map[string]struct{})}
}

func (b *pendingBatch) add(id string) {
	b.ids = append(b.ids, id)
	b.seen[id] = struct{}{}
}

func (b *pendingBatch) contains(id string) bool {
	_, ok := b.seen[id]
	return ok
}

func (d *Driver) processDocument(ctx context.Context, doc Document, stats *RunStats, pending *pendingBatch) error {
	res, err := d.fetchWithRetry(ctx, doc.ContentURL)
	if err != nil {
		// Not marked visited: a later run retries transient failures.
		stats.FetchFailures++
		FetchErrors.Inc()
		d.logger.Warn("fetch failed, skipping document",
			zap.String("url", doc.ContentURL), zap.Error(err))
		return nil
	}

	text, err := d.normalizer.Normalize(doc, res)
	if err != nil {
		// Fetched-but-unusable content will not change on refetch, so the
		// document is marked visited to avoid refetching it forever.
		stats.QualityRejects++
		QualityRejects.Inc()
		d.logger.Debug("document rejected by normalizer",
			zap.String("url", doc.ID), zap.Error(err))
		return d.enqueueVisited(doc.ID, pending)
	}

	if d.scrubber != nil {
		text = d.scrubber.Scrub(text)
	}

	rec := Record{URL: doc.ID, Content: text, Source: SourceTag}
	if err := d.sink.Write(rec); err != nil {
		return fmt.Errorf("%w: write record: %w", errAbortRun, err)
	}
	stats.Processed++
	RecordsWritten.Inc()
	d.logger.Info("record written",
		zap.String("url", doc.ID),
		zap.Int("processed", stats.Processed))

	return d.enqueueVisited(doc.ID, pending)
}

func (d *Driver) enqueueVisited(id string, pending *pendingBatch) error {
	pending.add(id)
	if len(pending.ids) < d.cfg.VisitedBatchSize {
		return nil
	}
	if err := d.flush(pending.ids); err != nil {
		return fmt.Errorf("%w: %w", errAbortRun, err)
	}
	pending.ids = pending.ids[:0]
	return nil
}

// flush appends the pending batch to the visited log and syncs the open
// shard, bounding what an interruption can lose to one batch window.
func (d *Driver) flush(pending []string) error {
	if len(pending) > 0 {
		if err := d.visited.Mark(pending); err != nil {
			return fmt.Errorf("mark visited: %w", err)
		}
	}
	if err := d.sink.Flush(); err != nil {
		return fmt.Errorf("flush shard writer: %w", err)
	}
	return nil
}

func (d *Driver) fetchWithRetry(ctx context.Context, url string) (FetchResult, error) {
	if d.throttle != nil {
		if err := d.throttle.Wait(ctx); err != nil {
			return FetchResult{}, err
		}
	}
	var lastErr error
	for attempt := 0; ; attempt++ {
		res, err := d.fetcher.Fetch(ctx, url)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !d.retry.ShouldRetry(err, attempt+1) {
			return FetchResult{}, lastErr
		}
		FetchRetries.Inc()
		d.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if err := d.pause(ctx, d.retry.Backoff(attempt)); err != nil {
			return FetchResult{}, err
		}
	}
}

func (d *Driver) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Driver) resolveWatermark() (time.Time, bool, error) {
	if d.cfg.Reset {
		return time.Time{}, false, nil
	}
	ts, ok, err := d.watermarks.Load()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load watermark: %w", err)
	}
	return ts, ok, nil
}
