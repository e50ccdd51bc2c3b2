package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/querydeck/internal/state"
	"github.com/mattjoyce/querydeck/internal/storage"
)

func openSeededDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		t.Fatalf("BootstrapSQLite: %v", err)
	}

	kv := state.NewStore(db)
	if err := kv.Update(ctx, "installed_plugins", map[string][]string{"driver": {"builtin.sqlite-driver"}}); err != nil {
		t.Fatalf("Update(installed_plugins): %v", err)
	}
	if err := kv.Update(ctx, "panel_view_state", map[string]any{
		"loading":    false,
		"error":      map[string]any{"error": "bad table"},
		"resultTabs": []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{}`)},
		"activeTab":  1,
	}); err != nil {
		t.Fatalf("Update(panel_view_state): %v", err)
	}

	_, err = db.Exec(
		`INSERT INTO query_history (id, conn_id, query, query_type, ran_at) VALUES (?, ?, ?, ?, ?);`,
		"h1", "main", "SELECT * FROM users", "select", "2026-08-30T10:00:00Z")
	if err != nil {
		t.Fatalf("insert history: %v", err)
	}

	return db, dbPath
}

func TestBuildReportRendersState(t *testing.T) {
	t.Parallel()
	db, dbPath := openSeededDB(t)

	out, err := BuildReport(context.Background(), db, dbPath)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	for _, want := range []string{
		"State Report",
		"installed_plugins",
		"builtin.sqlite-driver",
		"2 tab(s), active 1",
		"error: bad table",
		"SELECT * FROM users",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestBuildJSONReport(t *testing.T) {
	t.Parallel()
	db, dbPath := openSeededDB(t)

	out, err := BuildJSONReport(context.Background(), db, dbPath)
	if err != nil {
		t.Fatalf("BuildJSONReport: %v", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("report is not valid json: %v", err)
	}
	if len(report.Keys) != 2 {
		t.Fatalf("expected 2 kv keys, got %d", len(report.Keys))
	}
	if report.ViewState == nil || report.ViewState.Tabs != 2 {
		t.Fatalf("unexpected view state: %+v", report.ViewState)
	}
	if len(report.History) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(report.History))
	}
	if report.History[0].ConnID != "main" {
		t.Fatalf("unexpected history entry: %+v", report.History[0])
	}
}

func TestBuildReportOnEmptyState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		t.Fatalf("BootstrapSQLite: %v", err)
	}

	out, err := BuildReport(ctx, db, dbPath)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if !strings.Contains(out, "Query history: <empty>") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}
