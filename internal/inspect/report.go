// Package inspect renders reports over the host's state database: what is
// persisted, which plugins are installed, what the panel last looked like,
// and the recent query history.
package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Report is the structured JSON representation of a state report.
type Report struct {
	StatePath        string              `json:"state_path"`
	Keys             []KeyInfo           `json:"keys"`
	InstalledPlugins map[string][]string `json:"installed_plugins,omitempty"`
	ViewState        *ViewSummary        `json:"view_state,omitempty"`
	History          []HistoryEntry      `json:"history"`
}

// KeyInfo describes one persisted kv entry.
type KeyInfo struct {
	Key       string `json:"key"`
	Bytes     int    `json:"bytes"`
	UpdatedAt string `json:"updated_at"`
}

// ViewSummary condenses the persisted panel view state.
type ViewSummary struct {
	Loading   bool   `json:"loading"`
	Tabs      int    `json:"tabs"`
	ActiveTab int    `json:"active_tab"`
	Error     string `json:"error,omitempty"`
}

// HistoryEntry is one recorded query.
type HistoryEntry struct {
	ConnID    string `json:"conn_id"`
	Query     string `json:"query"`
	QueryType string `json:"query_type"`
	RanAt     string `json:"ran_at"`
}

// historyLimit caps how much history a report includes.
const historyLimit = 10

// BuildReport renders a terminal-friendly state report.
func BuildReport(ctx context.Context, db *sql.DB, statePath string) (string, error) {
	report, err := gatherReportData(ctx, db, statePath)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "State Report\n")
	fmt.Fprintf(&out, "State DB    : %s\n", report.StatePath)
	fmt.Fprintf(&out, "Keys        : %d\n", len(report.Keys))
	fmt.Fprintf(&out, "\n")

	for _, key := range report.Keys {
		fmt.Fprintf(&out, "  %-24s %6d bytes  updated %s\n", key.Key, key.Bytes, key.UpdatedAt)
	}
	if len(report.Keys) > 0 {
		fmt.Fprintf(&out, "\n")
	}

	if len(report.InstalledPlugins) > 0 {
		fmt.Fprintf(&out, "Installed plugins:\n")
		for tag, ids := range report.InstalledPlugins {
			fmt.Fprintf(&out, "  %s: %s\n", tag, strings.Join(ids, ", "))
		}
		fmt.Fprintf(&out, "\n")
	}

	if report.ViewState != nil {
		vs := report.ViewState
		fmt.Fprintf(&out, "Panel view state: %d tab(s), active %d", vs.Tabs, vs.ActiveTab)
		if vs.Loading {
			fmt.Fprintf(&out, ", loading")
		}
		if vs.Error != "" {
			fmt.Fprintf(&out, ", error: %s", vs.Error)
		}
		fmt.Fprintf(&out, "\n\n")
	}

	if len(report.History) == 0 {
		fmt.Fprintf(&out, "Query history: <empty>\n")
	} else {
		fmt.Fprintf(&out, "Query history (last %d):\n", len(report.History))
		for _, h := range report.History {
			fmt.Fprintf(&out, "  [%s] %s :: %s\n", h.RanAt, h.ConnID, h.Query)
		}
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON state report.
func BuildJSONReport(ctx context.Context, db *sql.DB, statePath string) (string, error) {
	report, err := gatherReportData(ctx, db, statePath)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, db *sql.DB, statePath string) (*Report, error) {
	report := &Report{
		StatePath: statePath,
		Keys:      make([]KeyInfo, 0),
		History:   make([]HistoryEntry, 0),
	}

	rows, err := db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM kv_store ORDER BY key;`)
	if err != nil {
		return nil, fmt.Errorf("query kv store: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, updatedAt string
		var value []byte
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan kv row: %w", err)
		}
		report.Keys = append(report.Keys, KeyInfo{Key: key, Bytes: len(value), UpdatedAt: updatedAt})

		switch key {
		case "installed_plugins":
			var installed map[string][]string
			if json.Unmarshal(value, &installed) == nil {
				report.InstalledPlugins = installed
			}
		case "panel_view_state":
			report.ViewState = summarizeViewState(value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kv store: %w", err)
	}

	hrows, err := db.QueryContext(ctx,
		`SELECT conn_id, query, query_type, ran_at FROM query_history ORDER BY ran_at DESC, rowid DESC LIMIT ?;`,
		historyLimit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer hrows.Close()

	for hrows.Next() {
		var h HistoryEntry
		if err := hrows.Scan(&h.ConnID, &h.Query, &h.QueryType, &h.RanAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		report.History = append(report.History, h)
	}
	if err := hrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return report, nil
}

func summarizeViewState(raw []byte) *ViewSummary {
	// The error field holds the whole failing result tab; the summary only
	// wants its message.
	var saved struct {
		Loading bool `json:"loading"`
		Error   *struct {
			Error string `json:"error"`
		} `json:"error"`
		ResultTabs []json.RawMessage `json:"resultTabs"`
		ActiveTab  int               `json:"activeTab"`
	}
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil
	}
	summary := &ViewSummary{
		Loading:   saved.Loading,
		Tabs:      len(saved.ResultTabs),
		ActiveTab: saved.ActiveTab,
	}
	if saved.Error != nil {
		summary.Error = saved.Error.Error
	}
	return summary
}
