package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/munistat/jobenrich/internal/version"
)

func TestVersionCommand(t *testing.T) {
	rt := &runtime{}
	root := newRootCmd(rt)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), version.Current) {
		t.Fatalf("version output %q missing %q", out.String(), version.Current)
	}
}

func TestEnrichRequiresInputAndOutput(t *testing.T) {
	rt := &runtime{}
	root := newRootCmd(rt)
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"enrich"})

	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("enrich without --input/--output should fail")
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	rt := &runtime{}
	root := newRootCmd(rt)
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"enrich", "--no-such-flag"})

	err := root.ExecuteContext(context.Background())
	if err == nil {
		t.Fatal("unknown flag accepted")
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		t.Fatal("flag errors must not be classified as fatal run errors")
	}
}

func TestEnrichDryRunWithoutCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	f, err := os.Create(input)
	if err != nil {
		t.Fatal(err)
	}
	cw := csv.NewWriter(f)
	_ = cw.Write([]string{"job_title", "employer"})
	_ = cw.Write([]string{"Engineer", "City of Austin"})
	cw.Flush()
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	rt := &runtime{}
	root := newRootCmd(rt)
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{
		"enrich",
		"--input", input,
		"--output", filepath.Join(dir, "out.csv"),
		"--dry-run",
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("dry run should not need a credential: %v", err)
	}
}
