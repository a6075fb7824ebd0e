package stress

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFiles exports the report into dir as report.json and steps.csv.
func (r *Report) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := r.writeJSON(filepath.Join(dir, "report.json")); err != nil {
		return fmt.Errorf("failed to export JSON: %w", err)
	}
	if err := r.writeCSV(filepath.Join(dir, "steps.csv")); err != nil {
		return fmt.Errorf("failed to export CSV: %w", err)
	}
	return nil
}

func (r *Report) writeJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (r *Report) writeCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"step", "op", "latency_us", "violations"}); err != nil {
		return err
	}
	for _, rec := range r.Trace {
		row := []string{
			fmt.Sprintf("%d", rec.Step),
			rec.Op,
			fmt.Sprintf("%.3f", float64(rec.Latency)/1e3),
			fmt.Sprintf("%d", rec.Violations),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
