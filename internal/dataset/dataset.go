// Package dataset loads the input CSV into an indexed, immutable table and
// streams output rows under a fixed column schema.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record maps column name to cell text for one row.
type Record map[string]string

// Table is the input dataset: an ordered sequence of rows whose identity is
// their 0-based index. Immutable after Load.
type Table struct {
	Columns []string
	Rows    []Record
}

// Load reads the whole CSV at path. The first record is the header; data rows
// shorter than the header are padded with empty cells, longer ones truncated.
// A missing file or a file with zero data rows is an error. limit > 0 keeps
// only the first limit rows; retained indices stay 0-based.
func Load(path string, limit int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("input %s: empty file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("input %s: read header: %w", path, err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	var rows []Record
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("input %s: row %d: %w", path, len(rows), err)
		}
		row := make(Record, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("input %s: no data rows", path)
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// OutputColumns returns the input columns followed by the extras not already
// present, preserving both orders.
func (t *Table) OutputColumns(extra []string) []string {
	seen := make(map[string]struct{}, len(t.Columns))
	out := make([]string, 0, len(t.Columns)+len(extra))
	for _, c := range t.Columns {
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range extra {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
