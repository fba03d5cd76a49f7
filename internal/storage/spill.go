package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SpillWriter appends cycle artifacts that failed to persist to a JSONL
// file. Availability over durability: the loop continues, the artifact is
// recoverable by hand.
type SpillWriter struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewSpillWriter writes to <dir>/spill.jsonl.
func NewSpillWriter(dir string) *SpillWriter {
	return &SpillWriter{
		path: filepath.Join(dir, "spill.jsonl"),
		now:  time.Now,
	}
}

type spillRecord struct {
	At      time.Time   `json:"at"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
	Reason  string      `json:"reason"`
}

// Spill appends one record. Returns an error only when the spill file
// itself cannot be written.
func (w *SpillWriter) Spill(kind string, payload interface{}, cause error) error {
	rec := spillRecord{At: w.now(), Kind: kind, Payload: payload}
	if cause != nil {
		rec.Reason = cause.Error()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal spill record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open spill file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write spill record: %w", err)
	}
	return nil
}
