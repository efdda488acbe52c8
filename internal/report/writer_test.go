package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "report.json")

	rep := Build(time.Now().UTC(), time.Now().UTC(), []Result{
		{ScenarioID: "ping", Outcome: OutcomePassed, Duration: 12 * time.Millisecond},
		{ScenarioID: "db-roundtrip", Outcome: OutcomeFailed, Duration: 40 * time.Millisecond, Detail: "row mismatch"},
	})

	writer := NewWriter(path, zerolog.Nop())
	if err := writer.Write(rep); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var loaded Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if loaded.Counts != rep.Counts {
		t.Fatalf("counts not preserved: %+v", loaded.Counts)
	}
	if len(loaded.Results) != 2 || loaded.Results[1].Detail != "row mismatch" {
		t.Fatalf("results not preserved: %+v", loaded.Results)
	}
}

func TestWriterOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	writer := NewWriter(path, zerolog.Nop())
	if err := writer.Write(Build(time.Now(), time.Now(), nil)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var loaded Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("expected fresh JSON, got %q", data)
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, ".report-*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}
