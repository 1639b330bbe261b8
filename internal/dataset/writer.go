package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// Writer appends output records under a fixed column order. Every Append is
// one atomic write: a single mutex serializes the header and all row appends
// so concurrent completions never interleave partial records.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	cw      *csv.Writer
	columns []string
}

// OpenWriter prepares the output file. A fresh run truncates and writes the
// header; resuming over an existing file appends without a header; resuming
// when the file went missing starts it over, header included.
func OpenWriter(path string, columns []string, resume bool) (*Writer, error) {
	writeHeader := true
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resume {
		if _, err := os.Stat(path); err == nil {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			writeHeader = false
		}
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	w := &Writer{
		f:       f,
		cw:      csv.NewWriter(f),
		columns: append([]string(nil), columns...),
	}
	if writeHeader {
		if err := w.cw.Write(w.columns); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.cw.Flush()
		if err := w.cw.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return w, nil
}

// Columns returns the fixed output column order.
func (w *Writer) Columns() []string {
	return append([]string(nil), w.columns...)
}

// Append writes one record. Columns missing from rec render as empty cells;
// keys outside the configured schema are ignored.
func (w *Writer) Append(rec Record) error {
	cells := make([]string, len(w.columns))
	for i, col := range w.columns {
		cells[i] = rec[col]
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.cw.Write(cells); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
