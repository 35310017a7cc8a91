// Package visited implements the durable set of already-processed document
// identifiers, persisted as an append-only log with one ID per line.
package visited

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Log is the visited set backed by a line-oriented append-only file. The
// file is fully materialized into memory at open time; it is never
// rewritten or compacted.
type Log struct {
	path string
	seen map[string]struct{}
}

// Open loads the visited log at path. A missing file is a cold start, not
// an error.
func Open(path string) (*Log, error) {
	l := &Log{path: path, seen: make(map[string]struct{})}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("open visited log %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			l.seen[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read visited log %s: %w", path, err)
	}
	return l, nil
}

// Contains reports whether id has already been processed.
func (l *Log) Contains(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// Len returns the number of known identifiers.
func (l *Log) Len() int { return len(l.seen) }

// Mark appends the given IDs to the backing file and the in-memory set.
// Already-present IDs are ignored, so the call is idempotent and the file
// never accumulates duplicates.
func (l *Log) Mark(ids []string) error {
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := l.seen[id]; ok {
			continue
		}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open visited log %s for append: %w", l.path, err)
	}
	var sb strings.Builder
	for _, id := range fresh {
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("append visited log %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close visited log %s: %w", l.path, err)
	}

	for _, id := range fresh {
		l.seen[id] = struct{}{}
	}
	return nil
}
