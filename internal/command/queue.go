package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	pendingDir   = "pending"
	inflightDir  = "in-flight"
	failedDir    = "failed"
	responsesDir = "responses"

	// in-flight files older than this are returned to pending on boot
	reclaimAge = 5 * time.Minute

	responsePollTick = 100 * time.Millisecond
)

// ErrNoResponse is returned when a response does not arrive in time.
var ErrNoResponse = errors.New("no response received")

// Queue is a directory-backed command queue. Producers drop JSON files
// into pending/ with an atomic write-then-rename; the consumer renames
// each file into in-flight/ before parsing and deletes it on completion.
// Files that fail to parse land in failed/.
type Queue struct {
	root string
	now  func() time.Time
}

// NewQueue opens (creating if needed) the queue rooted at dir.
func NewQueue(dir string) (*Queue, error) {
	for _, sub := range []string{pendingDir, inflightDir, failedDir, responsesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create queue dir: %w", err)
		}
	}
	return &Queue{root: dir, now: time.Now}, nil
}

// Enqueue drops a command into pending/. The write is atomic: a tmp file
// in the queue root renamed into place.
func (q *Queue) Enqueue(cmd Command) error {
	if cmd.ID == "" || cmd.Verb == "" {
		return errors.New("command needs id and verb")
	}
	if cmd.ReceivedAt.IsZero() {
		cmd.ReceivedAt = q.now().UTC()
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return atomicWrite(q.root, filepath.Join(q.root, pendingDir, cmd.ID+".json"), body)
}

// Dequeue takes the oldest pending command: renamed into in-flight/
// first, then parsed. Malformed files are moved to failed/ and skipped.
// Returns nil with no error when the queue is empty.
func (q *Queue) Dequeue() (*Command, error) {
	names, err := q.pendingNames()
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		inflight := filepath.Join(q.root, inflightDir, name)
		if err := os.Rename(filepath.Join(q.root, pendingDir, name), inflight); err != nil {
			// raced with another consumer or the file vanished
			continue
		}

		body, err := os.ReadFile(inflight)
		if err != nil {
			return nil, fmt.Errorf("read command: %w", err)
		}

		var cmd Command
		if err := json.Unmarshal(body, &cmd); err != nil || cmd.Verb == "" {
			failed := filepath.Join(q.root, failedDir, name)
			if mvErr := os.Rename(inflight, failed); mvErr != nil {
				log.Warn().Err(mvErr).Str("file", name).Msg("could not quarantine malformed command")
			}
			log.Warn().Err(err).Str("file", name).Msg("malformed command dropped")
			continue
		}
		cmd.inflightPath = inflight
		return &cmd, nil
	}
	return nil, nil
}

// Ack deletes the command's in-flight file after processing.
func (q *Queue) Ack(cmd *Command) error {
	if cmd == nil || cmd.inflightPath == "" {
		return nil
	}
	if err := os.Remove(cmd.inflightPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ack command: %w", err)
	}
	cmd.inflightPath = ""
	return nil
}

// Reclaim returns orphaned in-flight files older than the reclaim age to
// pending/. Called once at boot; recovers commands lost to a crash
// mid-processing.
func (q *Queue) Reclaim() (int, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, inflightDir))
	if err != nil {
		return 0, fmt.Errorf("scan in-flight: %w", err)
	}

	cutoff := q.now().Add(-reclaimAge)
	reclaimed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		src := filepath.Join(q.root, inflightDir, e.Name())
		dst := filepath.Join(q.root, pendingDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("could not reclaim in-flight command")
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

// Respond writes the JSON reply for a command id. Read verbs use this to
// hand their result back to the caller.
func (q *Queue) Respond(id string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return atomicWrite(q.root, filepath.Join(q.root, responsesDir, id+".json"), body)
}

// AwaitResponse polls for the reply to a command id until ctx expires.
// The response file is consumed.
func (q *Queue) AwaitResponse(ctx context.Context, id string) ([]byte, error) {
	path := filepath.Join(q.root, responsesDir, id+".json")
	ticker := time.NewTicker(responsePollTick)
	defer ticker.Stop()

	for {
		body, err := os.ReadFile(path)
		if err == nil {
			_ = os.Remove(path)
			return body, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read response: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrNoResponse
		case <-ticker.C:
		}
	}
}

func (q *Queue) pendingNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, pendingDir))
	if err != nil {
		return nil, fmt.Errorf("scan pending: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func atomicWrite(tmpDir, dst string, body []byte) error {
	tmp, err := os.CreateTemp(tmpDir, ".cmd-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish file: %w", err)
	}
	return nil
}
