/*
PURPOSE:
  Writes per-mode benchmark summaries to a JSON Lines file (NDJSON).
  Optimized for machine parsing and comparing runs over time.

REQUIREMENTS:
  User-specified:
  - JSON output for easier parsing.

  Implementation-discovered:
  - JSON Lines is better for streaming/logging than a single large array (append-friendly).
  - Each line is stamped with the run time so appended runs stay distinguishable.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Consumes: output.ModeSummary

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  w, err := output.NewJSONWriter("mode_summaries.jsonl")
  w.Write(summary)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - None specific.

RELATED FILES:
  - internal/output/summary.go

MAINTENANCE:
  - Update if we switch to plain JSON array (not recommended for streaming).
*/

package output

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JSONWriter appends mode summaries to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	runAt   time.Time
	runID   string
	mu      sync.Mutex
}

type summaryLine struct {
	RunID string    `json:"run_id"`
	RunAt time.Time `json:"run_at"`
	ModeSummary
}

// NewJSONWriter opens path for appending. Every line written through one
// writer carries the same run ID.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &JSONWriter{
		file:    f,
		encoder: json.NewEncoder(f),
		runAt:   time.Now().UTC(),
		runID:   uuid.NewString(),
	}, nil
}

// Write writes a single summary as a JSON line.
func (jw *JSONWriter) Write(s ModeSummary) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(summaryLine{RunID: jw.runID, RunAt: jw.runAt, ModeSummary: s})
}

// RunID identifies the run whose summaries this writer appends.
func (jw *JSONWriter) RunID() string {
	return jw.runID
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}
