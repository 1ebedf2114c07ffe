/*
PURPOSE:
  Writes measured benchmark steps to a CSV log and reads them back.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - One row per measured step:
    global_step,step,mode,phase,draft_length,success,latency_ms,tokens
  - Header written once, only when the file is new.

  Implementation-discovered:
  - Runs append to the same log so repeated sweeps can be compared.
  - The analyze command needs to fold the log back into mode results.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (writer), internal/cli/analyze.go (reader)
  - Consumes: internal/model.StepRecord

ERROR HANDLING:
  - Returns error on file open or write failure; open failure aborts the run.
  - ReadSteps reports the offending line on malformed rows.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).
  - Use Mutex if concurrent writes are expected.
  - The log spans many runs; SplitRuns separates them before summarizing.

USAGE:
  w, err := output.NewCSVWriter("results_phase0.csv")
  w.Write(rec)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update StepHeader, Write and ReadSteps together.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update Write() mapping when StepRecord changes.
*/

package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/daryltucker/halospec-bench/internal/model"
)

// StepHeader is the column layout of the step log.
var StepHeader = []string{
	"global_step", "step", "mode", "phase", "draft_length", "success", "latency_ms", "tokens",
}

// CSVWriter appends step records to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter opens path for appending, creating it if needed.
// The header is written only when the file is empty.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(StepHeader); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single step to the CSV file.
// It is thread-safe.
func (cw *CSVWriter) Write(r model.StepRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	success := "0"
	if r.Success {
		success = "1"
	}
	record := []string{
		strconv.Itoa(r.GlobalStep),
		strconv.Itoa(r.Step),
		r.Mode,
		string(r.Phase),
		strconv.Itoa(int(r.DraftLength)),
		success,
		strconv.FormatInt(r.Latency.Milliseconds(), 10),
		strconv.Itoa(r.Tokens),
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}

// ReadSteps parses a step log. Header rows (including those left by appended
// runs) are skipped.
func ReadSteps(r io.Reader) ([]model.StepRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(StepHeader)

	var out []model.StepRecord
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("step log line %d: %w", line, err)
		}
		if row[0] == StepHeader[0] {
			continue
		}
		rec, err := parseStep(row)
		if err != nil {
			return nil, fmt.Errorf("step log line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func parseStep(row []string) (model.StepRecord, error) {
	ints := make([]int, 0, 5)
	for _, i := range []int{0, 1, 4, 6, 7} {
		n, err := strconv.Atoi(row[i])
		if err != nil {
			return model.StepRecord{}, fmt.Errorf("column %s: %w", StepHeader[i], err)
		}
		ints = append(ints, n)
	}
	phase, err := model.ParsePhase(row[3])
	if err != nil {
		return model.StepRecord{}, err
	}
	draft := model.DraftLength(ints[2])
	if !draft.Valid() {
		return model.StepRecord{}, fmt.Errorf("draft_length %d outside [1,8]", draft)
	}
	return model.StepRecord{
		GlobalStep:  ints[0],
		Step:        ints[1],
		Mode:        row[2],
		Phase:       phase,
		DraftLength: draft,
		Success:     row[5] == "1",
		Latency:     time.Duration(ints[3]) * time.Millisecond,
		Tokens:      ints[4],
	}, nil
}

// SplitRuns cuts an appended step log into one slice per run. global_step
// restarts at 1 for every run, so a record whose global step does not exceed
// its predecessor's begins a new run.
func SplitRuns(records []model.StepRecord) [][]model.StepRecord {
	if len(records) == 0 {
		return nil
	}
	var runs [][]model.StepRecord
	start := 0
	for i := 1; i <= len(records); i++ {
		if i == len(records) || records[i].GlobalStep <= records[i-1].GlobalStep {
			runs = append(runs, records[start:i])
			start = i
		}
	}
	return runs
}

// GroupByMode folds records into one ModeResult per mode run, in order of
// first appearance. A mode whose step counter goes back to 1 starts a new
// result, so a mode seen in two runs yields two results.
func GroupByMode(records []model.StepRecord) []model.ModeResult {
	type group struct {
		b    *model.ResultBuilder
		last int
	}
	var order []*group
	open := make(map[string]*group)
	for _, rec := range records {
		g, ok := open[rec.Mode]
		if !ok || rec.Step <= g.last {
			g = &group{b: model.NewResultBuilder(rec.Mode)}
			open[rec.Mode] = g
			order = append(order, g)
		}
		g.b.Add(rec)
		g.last = rec.Step
	}
	out := make([]model.ModeResult, 0, len(order))
	for _, g := range order {
		out = append(out, g.b.Build())
	}
	return out
}
