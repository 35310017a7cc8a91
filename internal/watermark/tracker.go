// Package watermark persists the completion timestamp of the last
// successful run so subsequent runs request only newer documents.
package watermark

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultFileName matches the dotfile used by earlier harvester releases.
const DefaultFileName = ".last_update"

// Tracker reads and writes a single RFC 3339 UTC timestamp file.
type Tracker struct {
	path string
}

// New returns a Tracker for the file at path.
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Load returns the persisted watermark. A missing, empty, or unparsable
// file means no prior state and is never an error.
func (t *Tracker) Load() (time.Time, bool, error) {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, nil
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

// Save writes ts as the new watermark.
func (t *Tracker) Save(ts time.Time) error {
	payload := ts.UTC().Format(time.RFC3339)
	if err := os.WriteFile(t.path, []byte(payload), 0o600); err != nil {
		return fmt.Errorf("write watermark %s: %w", t.path, err)
	}
	return nil
}

// Clear removes the watermark file, forcing the next run to crawl the full
// backlog. A missing file is not an error.
func (t *Tracker) Clear() error {
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove watermark %s: %w", t.path, err)
	}
	return nil
}
