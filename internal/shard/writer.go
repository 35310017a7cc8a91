// Package shard implements the append-only, size-bounded JSONL output
// files that hold normalized records.
package shard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vgassen/tuchtrecht-harvester/internal/harvest"
)

const (
	filePrefix = "tuchtrecht_shard_"
	fileExt    = ".jsonl"

	// DefaultRecordsPerShard keeps individual shard files small enough for
	// the downstream dataset store.
	DefaultRecordsPerShard = 350
)

// Name returns the deterministic filename for a shard index. Zero padding
// keeps lexicographic and numeric ordering identical.
func Name(index int) string {
	return fmt.Sprintf("%s%03d%s", filePrefix, index, fileExt)
}

// ParseIndex extracts the shard index from a filename produced by Name.
// It is the single parsing function used by both the startup scanner and
// the writer.
func ParseIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	if digits == "" {
		return 0, false
	}
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// List returns the full paths of all shard files in dir, ordered by index.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read shard dir %s: %w", dir, err)
	}
	type shard struct {
		index int
		name  string
	}
	var shards []shard
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if index, ok := ParseIndex(entry.Name()); ok {
			shards = append(shards, shard{index: index, name: entry.Name()})
		}
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].index < shards[j].index })
	paths := make([]string, len(shards))
	for i, s := range shards {
		paths[i] = filepath.Join(dir, s.name)
	}
	return paths, nil
}

// Writer appends newline-delimited JSON records to the current shard and
// rotates to a fresh shard whenever the record threshold is reached.
type Writer struct {
	dir       string
	threshold int
	logger    *zap.Logger

	index   int
	count   int
	file    *os.File
	touched []string
}

// NewWriter opens (or resumes) the shard sequence in dir. An existing
// under-threshold shard with the highest index is reopened for append; a
// full shard advances the sequence; a corrupt shard is abandoned in place
// and the sequence continues at the next index.
func NewWriter(dir string, threshold int, logger *zap.Logger) (*Writer, error) {
	if threshold <= 0 {
		threshold = DefaultRecordsPerShard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create shard dir %s: %w", dir, err)
	}

	w := &Writer{dir: dir, threshold: threshold, logger: logger}
	index, count, appendExisting, err := w.scan()
	if err != nil {
		return nil, err
	}
	w.index = index
	w.count = count

	if err := w.open(appendExisting); err != nil {
		return nil, err
	}
	return w, nil
}

// scan inspects the output directory and decides where the sequence
// resumes: (index, existing record count, whether to append in place).
func (w *Writer) scan() (int, int, bool, error) {
	paths, err := List(w.dir)
	if err != nil {
		return 0, 0, false, err
	}
	if len(paths) == 0 {
		return 0, 0, false, nil
	}

	latest := paths[len(paths)-1]
	index, _ := ParseIndex(filepath.Base(latest))

	count, err := countRecords(latest)
	if err != nil {
		// Never repair a corrupt shard in place; abandon the index.
		w.logger.Warn("latest shard is corrupt, starting a new shard",
			zap.String("shard", latest),
			zap.Error(err))
		return index + 1, 0, false, nil
	}
	if count >= w.threshold {
		return index + 1, 0, false, nil
	}
	return index, count, true, nil
}

// countRecords counts newline-delimited JSON records and fails on any
// truncated or invalid line.
func countRecords(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read shard: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	if raw[len(raw)-1] != '\n' {
		return 0, fmt.Errorf("truncated trailing record")
	}
	count := 0
	for _, line := range bytes.Split(raw[:len(raw)-1], []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			return 0, fmt.Errorf("blank line in shard")
		}
		if !json.Valid(line) {
			return 0, fmt.Errorf("invalid record at line %d", count+1)
		}
		count++
	}
	return count, nil
}

func (w *Writer) open(appendExisting bool) error {
	path := filepath.Join(w.dir, Name(w.index))
	flags := os.O_CREATE | os.O_WRONLY
	if appendExisting {
		flags |= os.O_APPEND
	} else {
		// A fresh index is guaranteed not to exist yet, so truncation only
		// ever clears a file left behind by an abandoned write.
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("open shard %s: %w", path, err)
	}
	w.file = f
	w.touched = append(w.touched, path)
	w.logger.Info("shard opened",
		zap.String("shard", path),
		zap.Int("records", w.count),
		zap.Bool("resumed", appendExisting))
	return nil
}

// Write appends one record to the current shard, rotating afterwards if
// the threshold is reached.
func (w *Writer) Write(rec harvest.Record) error {
	if w.file == nil {
		return fmt.Errorf("shard writer is closed")
	}
	line, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append shard %s: %w", w.file.Name(), err)
	}
	w.count++
	if w.count >= w.threshold {
		return w.rotate()
	}
	return nil
}

// encodeRecord serializes one record as a single JSON line. Non-ASCII
// characters stay unescaped in the UTF-8 output.
func encodeRecord(rec harvest.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Writer) rotate() error {
	if err := w.closeCurrent(); err != nil {
		return err
	}
	harvest.ShardRotations.Inc()
	w.index++
	w.count = 0
	return w.open(false)
}

// Flush syncs the open shard to disk. The driver calls it on every visited
// batch boundary so an interruption loses at most one batch window.
func (w *Writer) Flush() error {
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync shard %s: %w", w.file.Name(), err)
	}
	return nil
}

// Close flushes and releases the current shard. Further writes fail.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	return w.closeCurrent()
}

func (w *Writer) closeCurrent() error {
	name := w.file.Name()
	if err := w.file.Sync(); err != nil {
		w.file.Close() //nolint:errcheck // sync error takes precedence
		w.file = nil
		return fmt.Errorf("sync shard %s: %w", name, err)
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		return fmt.Errorf("close shard %s: %w", name, err)
	}
	w.file = nil
	w.logger.Debug("shard closed", zap.String("shard", name))
	return nil
}

// Index returns the index of the currently open shard.
func (w *Writer) Index() int { return w.index }

// Count returns the number of records in the currently open shard.
func (w *Writer) Count() int { return w.count }

// Touched returns the paths of shards written to during this writer's
// lifetime, in open order.
func (w *Writer) Touched() []string {
	out := make([]string, len(w.touched))
	copy(out, w.touched)
	return out
}
