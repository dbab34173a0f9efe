package work

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/trinistocks/pipeline/internal/domain"
)

// WorkerReport is what a worker process leaves behind for the
// orchestrator.
type WorkerReport struct {
	RunID      string    `msgpack:"run_id"`
	Kind       string    `msgpack:"kind"`
	PID        int       `msgpack:"pid"`
	Dates      []string  `msgpack:"dates"`
	Fetched    []string  `msgpack:"fetched"`
	Skipped    []string  `msgpack:"skipped"`
	Rows       int       `msgpack:"rows"`
	Errors     []string  `msgpack:"errors"`
	StartedAt  time.Time `msgpack:"started_at"`
	FinishedAt time.Time `msgpack:"finished_at"`
}

// NewReport starts the report of a worker assigned dates.
func NewReport(runID, kind string, dates []domain.Date) *WorkerReport {
	r := &WorkerReport{
		RunID:     runID,
		Kind:      kind,
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
	}
	for _, d := range dates {
		r.Dates = append(r.Dates, d.String())
	}
	return r
}

// Fetch records a date that produced rows.
func (r *WorkerReport) Fetch(d domain.Date) { r.Fetched = append(r.Fetched, d.String()) }

// Skip records a date without data.
func (r *WorkerReport) Skip(d domain.Date) { r.Skipped = append(r.Skipped, d.String()) }

// Fail records an error.
func (r *WorkerReport) Fail(err error) { r.Errors = append(r.Errors, err.Error()) }

// Failed reports whether the worker recorded any error.
func (r *WorkerReport) Failed() bool { return len(r.Errors) > 0 }

// Write stamps the finish time and stores the report at path. The file
// is replaced atomically so a reader never sees a partial report.
func (r *WorkerReport) Write(path string) error {
	r.FinishedAt = time.Now().UTC()
	b, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode worker report: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("failed to create worker report: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write worker report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write worker report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to store worker report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by Write.
func ReadReport(path string) (*WorkerReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read worker report: %w", err)
	}
	var r WorkerReport
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("failed to decode worker report %s: %w", path, err)
	}
	return &r, nil
}
