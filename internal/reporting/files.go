package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// Files names the rendered report outputs.
type Files struct {
	Workbook string `json:"workbook"`
	HTML     string `json:"html"`
}

// WriteFiles renders the report into dir as report.xlsx and report.html.
func WriteFiles(dir string, r Report) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create report dir: %w", err)
	}
	files := Files{
		Workbook: filepath.Join(dir, "report.xlsx"),
		HTML:     filepath.Join(dir, "report.html"),
	}
	if err := WriteWorkbook(files.Workbook, r); err != nil {
		return Files{}, err
	}
	if err := os.WriteFile(files.HTML, HTML(r), 0o644); err != nil {
		return Files{}, fmt.Errorf("write html report: %w", err)
	}
	return files, nil
}
