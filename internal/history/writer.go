package history

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Writer appends deploy attempts to the history in Dir and prunes the
// oldest entries beyond MaxEntries.
type Writer struct {
	Dir        string
	MaxEntries int
	Now        func() time.Time
}

// NewWriter returns a Writer for dir keeping at most maxEntries entries.
func NewWriter(dir string, maxEntries int) *Writer {
	return &Writer{Dir: dir, MaxEntries: maxEntries, Now: time.Now}
}

func (w *Writer) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// Start records entry as running and returns its generated ID.
func (w *Writer) Start(entry Entry) (string, error) {
	id, err := newID(entry.Pipeline, w.now())
	if err != nil {
		return "", err
	}
	entry.ID = id
	entry.Status = StatusRunning
	entry.StartedAt = w.now()

	f, err := Load(w.Dir)
	if err != nil {
		return "", err
	}
	f.Entries = append(f.Entries, entry)
	if w.MaxEntries > 0 && len(f.Entries) > w.MaxEntries {
		f.Entries = f.Entries[len(f.Entries)-w.MaxEntries:]
	}
	if err := Save(w.Dir, f); err != nil {
		return "", err
	}
	return id, nil
}

// Outcome is what a finished deploy produced.
type Outcome struct {
	JobName  string
	Schedule string
	Err      error
}

// Finish marks the entry id as completed, or failed when out.Err is set.
func (w *Writer) Finish(id string, out Outcome) error {
	f, err := Load(w.Dir)
	if err != nil {
		return err
	}
	for i := range f.Entries {
		e := &f.Entries[i]
		if e.ID != id {
			continue
		}
		now := w.now()
		e.CompletedAt = &now
		e.Duration = now.Sub(e.StartedAt).Round(time.Millisecond).String()
		e.JobName = out.JobName
		e.Schedule = out.Schedule
		e.Status = StatusCompleted
		if out.Err != nil {
			e.Status = StatusFailed
			e.Error = out.Err.Error()
		}
		return Save(w.Dir, f)
	}
	return fmt.Errorf("history entry %s not found", id)
}

// newID builds {pipeline}-{YYYYMMDD-HHMMSS}-{random hex}.
func newID(pipeline string, now time.Time) (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating history ID: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s",
		strings.ReplaceAll(pipeline, "_", "-"), now.Format("20060102-150405"), hex.EncodeToString(b)), nil
}
