package query

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() *Result {
	return &Result{
		Cols: []string{"id", "name"},
		Results: []map[string]any{
			{"id": 1, "name": "alice"},
			{"id": 2, "name": "bob, the second"},
		},
	}
}

func TestFileTypeForMenu(t *testing.T) {
	assert.Equal(t, FileTypeCSV, FileTypeForMenu("Save Results as CSV"))
	assert.Equal(t, FileTypeJSON, FileTypeForMenu("Save Results as JSON"))
	assert.Equal(t, FileTypeCSV, FileTypeForMenu("something else"), "csv is the fallback")
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, Export(exportFixture(), FileTypeCSV, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name", lines[0])
	assert.Contains(t, lines[2], `"bob, the second"`, "comma field is quoted")
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Export(exportFixture(), FileTypeJSON, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0]["name"])
}

func TestExportRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	assert.Error(t, Export(nil, FileTypeCSV, path))
	assert.Error(t, Export(exportFixture(), "xml", path))
	assert.Error(t, Export(exportFixture(), FileTypeCSV, ""))
}
