// Package history is the built-in query history plugin. It records every
// successfully executed query into the host's state database and serves the
// log back as a result tab through the showRecords command.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/querydeck/internal/command"
	"github.com/mattjoyce/querydeck/internal/plugin"
	"github.com/mattjoyce/querydeck/internal/query"
)

func init() {
	plugin.RegisterBuiltin("history", func() plugin.Plugin { return &Plugin{} })
}

type Plugin struct {
	db *sql.DB
}

func (p *Plugin) Name() string { return "history" }

func (p *Plugin) Register(h *plugin.Handle) error {
	if h.DB == nil {
		return fmt.Errorf("history plugin requires the state database")
	}
	p.db = h.DB

	h.Hooks.
		AddAfterSuccessHook(h.Commands.Qualify("executeQuery"), p.record(h)).
		AddAfterSuccessHook(h.Commands.Qualify("describeTable"), p.record(h))
	h.Commands.Register("showRecords", p.showRecords(h))
	return nil
}

// record fires after a query command completes. Only settled, successful
// results are recorded; failed tabs and non-query results are skipped.
func (p *Plugin) record(h *plugin.Handle) command.AfterSuccessHook {
	return func(ev command.SuccessEvent) {
		res, ok := ev.Result.(*query.Result)
		if !ok || res.Failed() || res.Query == "" {
			return
		}

		_, err := p.db.Exec(
			`INSERT INTO query_history (id, conn_id, query, query_type, ran_at) VALUES (?, ?, ?, ?, ?);`,
			uuid.NewString(), res.ConnID, res.Query, res.QueryType, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			h.Logger.Warn("recording query history failed", "error", err)
		}
	}
}

// showRecords returns the most recent history entries as a result tab.
func (p *Plugin) showRecords(h *plugin.Handle) command.Handler {
	return func(ctx context.Context, args command.Args) (any, error) {
		limit := 100
		if len(args) > 0 {
			if m, ok := args[0].(map[string]any); ok {
				if n, ok := m["limit"].(float64); ok && n > 0 {
					limit = int(n)
				}
			}
		}

		rows, err := p.db.QueryContext(ctx,
			`SELECT conn_id, query, query_type, ran_at FROM query_history ORDER BY ran_at DESC LIMIT ?;`, limit)
		if err != nil {
			return nil, fmt.Errorf("read query history: %w", err)
		}
		defer rows.Close()

		res := &query.Result{
			ResultID:  uuid.NewString(),
			QueryType: "showRecords",
			Cols:      []string{"conn_id", "query", "query_type", "ran_at"},
			Label:     "history",
		}
		for rows.Next() {
			var connID, queryText, queryType, ranAt string
			if err := rows.Scan(&connID, &queryText, &queryType, &ranAt); err != nil {
				return nil, fmt.Errorf("scan history row: %w", err)
			}
			res.Results = append(res.Results, map[string]any{
				"conn_id":    connID,
				"query":      queryText,
				"query_type": queryType,
				"ran_at":     ranAt,
			})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate history: %w", err)
		}
		res.Total = len(res.Results)
		res.PageSize = limit
		res.Messages = []string{fmt.Sprintf("%d recorded queries", res.Total)}
		return res, nil
	}
}
