package stress

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFiles(t *testing.T) {
	resetRegistry(t)

	report, err := Run(quietConfig(3, 50))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Trace) != report.Steps {
		t.Fatalf("trace has %d records, want %d", len(report.Trace), report.Steps)
	}

	dir := filepath.Join(t.TempDir(), "out")
	if err := report.WriteFiles(dir); err != nil {
		t.Fatalf("WriteFiles() error = %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "steps.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read CSV: %v", err)
	}
	if len(rows) != report.Steps+1 {
		t.Errorf("CSV has %d rows, want %d", len(rows), report.Steps+1)
	}
	if rows[0][0] != "step" || rows[1][0] != "1" {
		t.Errorf("unexpected CSV start: %v %v", rows[0], rows[1])
	}

	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Seed  int64
		Steps int
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if decoded.Seed != 3 || decoded.Steps != report.Steps {
		t.Errorf("decoded = %+v", decoded)
	}
}
