/*
PURPOSE:
  Writes benchmark records to a CSV file.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Output to CSV, one row per attempted configuration (failures included).

  Implementation-discovered:
  - A long matrix may be interrupted; every row must be on disk as soon as
    the configuration finishes.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Consumes: internal/model.Record

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).

USAGE:
  w, err := output.NewCSVWriter("results.csv")
  w.Write(record)
  w.Close()

MAINTENANCE:
  - Update Write() mapping when Record changes.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/daryltucker/vlm-bench/internal/model"
)

// CSVHeader is the column order of CSVWriter.
var CSVHeader = []string{
	"run_id", "timestamp", "backend", "variant", "device", "status", "failed_in",
	"load_s", "preprocess_s", "generate_s", "total_s", "images_per_s",
	"output", "error",
}

// CSVWriter handles writing records to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single record to the CSV file.
// It is thread-safe.
func (cw *CSVWriter) Write(r model.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := []string{
		r.RunID,
		r.Timestamp.Format(time.RFC3339),
		r.Backend,
		r.Variant,
		r.Device,
		r.Status,
		r.FailedIn,
		seconds(r.LoadDuration),
		seconds(r.PreprocessDuration),
		seconds(r.GenerateDuration),
		seconds(r.TotalDuration),
		fmt.Sprintf("%.2f", r.ImagesPerSecond),
		r.Output,
		r.Error,
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

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.4f", d.Seconds())
}
