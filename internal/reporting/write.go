package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"royalty-ledger/internal/reconciliation"
)

// Report file names written by WriteFiles.
const (
	MarkdownFile = "RECONCILIATION.md"
	CSVFile      = "reconciliation.csv"
)

// WriteFiles renders r into dir and returns the written paths.
func WriteFiles(dir string, r *reconciliation.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{MarkdownFile, RenderMarkdown(r)},
		{CSVFile, RenderCSV(r)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
