package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Diagnostic kinds recorded while segmenting a log.
const (
	DiagDiscardedIdle   = "discarded_idle"
	DiagInvalidBoundary = "invalid_boundary"
	DiagPaddedRow       = "padded_row"
	DiagTruncatedRow    = "truncated_row"
)

// Diagnostic captures a single absorbed anomaly of the input stream.
type Diagnostic struct {
	File    string    `json:"file,omitempty"`
	Line    int64     `json:"line"`
	Kind    string    `json:"kind"`
	Message string    `json:"message,omitempty"`
	Ts      time.Time `json:"ts"`
}

// Journal writes diagnostics as JSON objects, one per line.
type Journal struct {
	mu    sync.Mutex
	bw    *bufio.Writer
	count int64
}

// NewJournal returns a Journal that writes to w.
func NewJournal(w io.Writer) *Journal {
	return &Journal{bw: bufio.NewWriter(w)}
}

// Append serializes entry. A missing timestamp is filled with the current time.
func (j *Journal) Append(entry Diagnostic) error {
	if j == nil {
		return errors.New("nil journal")
	}
	if entry.Kind == "" {
		return errors.New("diagnostic missing kind")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.bw.Write(append(data, '\n')); err != nil {
		return err
	}
	j.count++
	return nil
}

// Count returns the number of appended entries.
func (j *Journal) Count() int64 {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Flush writes buffered entries to the underlying writer.
func (j *Journal) Flush() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.bw.Flush()
}

// ReadJournal loads every entry from the supplied JSONL file.
func ReadJournal(path string) ([]Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []Diagnostic
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Diagnostic
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode diagnostic: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
