/*
PURPOSE:
  Writes benchmark records to a JSON Lines file (NDJSON) and reads them back,
  so a finished run can be re-rendered without re-running the matrix.

REQUIREMENTS:
  User-specified:
  - JSON output for easier parsing.

  Implementation-discovered:
  - JSON Lines is better for streaming/logging than a single large array (append-friendly).
  - A run interrupted mid-write leaves a truncated last line; readers skip it.

ARCHITECTURE INTEGRATION:
  - Written by: internal/engine
  - Read by: internal/cli (report command)
  - Consumes: internal/model.Record

ERROR HANDLING:
  - Returns error on file creation or write failure.
  - ReadJSONRecords fails on a corrupt line unless it is the last one.

USAGE:
  w, err := output.NewJSONWriter("results.jsonl")
  w.Write(record)
  w.Close()
*/

package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/daryltucker/vlm-bench/internal/model"
)

// JSONWriter handles writing records to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter, truncating path.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		encoder: enc,
	}, nil
}

// Write writes a single record as a JSON line.
func (jw *JSONWriter) Write(r model.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(r)
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}

// ReadJSONRecords parses records written by JSONWriter.
func ReadJSONRecords(r io.Reader) ([]model.Record, error) {
	var (
		records []model.Record
		pending error
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	// Outputs can be long; allow lines up to 16 MiB.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if pending != nil {
			return nil, pending
		}
		var rec model.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Only fatal if another record follows.
			pending = fmt.Errorf("line %d: %w", lineNo, err)
			Logger.Warn("Skipping invalid JSON line", "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadJSONFile is ReadJSONRecords on a file path.
func ReadJSONFile(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSONRecords(f)
}
