package query

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Export file types.
const (
	FileTypeCSV  = "csv"
	FileTypeJSON = "json"
)

// FileTypeForMenu maps a save-results menu action to an export file type.
// The file type is derived from the action name, not sent separately.
func FileTypeForMenu(menuAction string) string {
	if strings.Contains(strings.ToLower(menuAction), "json") {
		return FileTypeJSON
	}
	return FileTypeCSV
}

// Export writes the rows of res to path in the given file type.
func Export(res *Result, fileType, path string) error {
	if res == nil {
		return fmt.Errorf("no result to export")
	}
	if path == "" {
		return fmt.Errorf("export path is empty")
	}

	switch fileType {
	case FileTypeCSV:
		return exportCSV(res, path)
	case FileTypeJSON:
		return exportJSON(res, path)
	default:
		return fmt.Errorf("unsupported export file type %q", fileType)
	}
}

func exportCSV(res *Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(res.Cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range res.Results {
		record := make([]string, len(res.Cols))
		for i, col := range res.Cols {
			if v, ok := row[col]; ok && v != nil {
				record[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func exportJSON(res *Result, path string) error {
	rows := res.Results
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}
