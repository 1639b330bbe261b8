package dataset

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPadsAndTruncatesRaggedRows(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.csv", "job_title,employer,city\nClerk,City of Austin\nEngineer,City of Waco,Waco,extra\n")
	tbl, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows", len(tbl.Rows))
	}
	if tbl.Rows[0]["city"] != "" {
		t.Fatalf("short row not padded: %#v", tbl.Rows[0])
	}
	if tbl.Rows[1]["city"] != "Waco" {
		t.Fatalf("long row mishandled: %#v", tbl.Rows[1])
	}
}

func TestLoadRejectsEmptyInputs(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv"), 0); err == nil {
		t.Fatal("expected error for missing file")
	}
	headerOnly := writeFile(t, "header.csv", "a,b\n")
	if _, err := Load(headerOnly, 0); err == nil {
		t.Fatal("expected error for zero data rows")
	}
	empty := writeFile(t, "empty.csv", "")
	if _, err := Load(empty, 0); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestLoadLimitKeepsZeroBasedIndices(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.csv", "n\n0\n1\n2\n3\n")
	tbl, err := Load(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(tbl.Rows))
	}
	if tbl.Rows[0]["n"] != "0" || tbl.Rows[1]["n"] != "1" {
		t.Fatalf("limit must keep the first rows: %#v", tbl.Rows)
	}
}

func TestOutputColumnsDeduplicates(t *testing.T) {
	t.Parallel()

	tbl := &Table{Columns: []string{"job_title", "employer", "job_family"}}
	got := tbl.OutputColumns([]string{"job_family", "job_level"})
	want := []string{"job_title", "employer", "job_family", "job_level"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("OutputColumns = %v, want %v", got, want)
	}
}

func TestWriterFreshRunWritesHeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := OpenWriter(path, []string{"a", "b"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{"a": "1", "b": "2", "ignored": "x"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{"a": "3"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readAll(t, path)
	want := [][]string{{"a", "b"}, {"1", "2"}, {"3", ""}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("file = %v, want %v", rows, want)
	}
}

func TestWriterResumeAppendsWithoutHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := OpenWriter(path, []string{"a"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{"a": "1"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	w2, err := OpenWriter(path, []string{"a"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := w2.Append(Record{"a": "2"}); err != nil {
		t.Fatal(err)
	}
	if err := w2.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readAll(t, path)
	want := [][]string{{"a"}, {"1"}, {"2"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("file = %v, want %v", rows, want)
	}
}

func TestWriterResumeRecreatesMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := OpenWriter(path, []string{"a"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{"a": "1"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readAll(t, path)
	want := [][]string{{"a"}, {"1"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("file = %v, want %v", rows, want)
	}
}

func TestWriterConcurrentAppendsNeverInterleave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := OpenWriter(path, []string{"idx", "payload"}, false)
	if err != nil {
		t.Fatal(err)
	}

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := Record{"idx": strconv.Itoa(i), "payload": "value with, comma and \"quotes\""}
			if err := w.Append(rec); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readAll(t, path)
	if len(rows) != n+1 {
		t.Fatalf("got %d records, want %d", len(rows), n+1)
	}
	seen := make(map[string]bool)
	for _, rec := range rows[1:] {
		if len(rec) != 2 || rec[1] != "value with, comma and \"quotes\"" {
			t.Fatalf("corrupt record: %#v", rec)
		}
		if seen[rec[0]] {
			t.Fatalf("duplicate index %s", rec[0])
		}
		seen[rec[0]] = true
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}
