package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one line of the per-run trial trace.
type TraceEntry struct {
	Trial int `json:"trial"`

	// Cost is the raw cost observed at this trial.
	Cost float64 `json:"cost"`

	// Best is the incumbent cost after this trial.
	Best float64 `json:"best"`

	// Strategy names the local-search strategy that proposed the trial.
	Strategy string `json:"strategy"`

	// Budget is the fidelity the trial ran at.
	Budget float64 `json:"budget,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// X is the encoded configuration (optional, can be nil to save space).
	X []float64 `json:"x,omitempty"`
}

// TraceWriter appends trace entries to <baseDir>/runs/<runID>/trace.jsonl.
// It uses buffered I/O and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter opens the trace file for the given run, appending to an
// existing trace when resume is true.
func NewTraceWriter(baseDir, runID string, resume bool) (*TraceWriter, error) {
	dir := filepath.Join(baseDir, "runs", runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	path := filepath.Join(dir, "trace.jsonl")

	var file *os.File
	var err error
	if resume {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Append writes one entry as a JSON line.
func (w *TraceWriter) Append(entry TraceEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize trace entry: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write trace newline: %w", err)
	}
	return nil
}

// Flush drains the buffer to disk.
func (w *TraceWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Flush()
}

// Close flushes and closes the trace file.
func (w *TraceWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return w.file.Close()
}

// Path returns the trace file location.
func (w *TraceWriter) Path() string { return w.path }
