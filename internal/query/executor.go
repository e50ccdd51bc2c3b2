package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mattjoyce/querydeck/internal/log"
)

// Executor is the reference implementation of the query-execution
// collaborator, backed by named SQLite connections. Execution failures never
// surface as Go errors to the dispatch pipeline: they become an errored
// Result so the panel renders an error tab instead of the host crashing.
type Executor struct {
	mu     sync.RWMutex
	conns  map[string]*sql.DB
	logger *slog.Logger
}

func NewExecutor() *Executor {
	return &Executor{
		conns:  make(map[string]*sql.DB),
		logger: log.WithComponent("query"),
	}
}

// AddConnection opens and registers a named connection.
func (e *Executor) AddConnection(id, dsn string) error {
	if id == "" {
		return fmt.Errorf("connection id is empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open connection %q: %w", id, err)
	}

	e.mu.Lock()
	e.conns[id] = db
	e.mu.Unlock()
	e.logger.Info("connection registered", "conn_id", id)
	return nil
}

// ConnIDs returns the registered connection ids, sorted.
func (e *Executor) ConnIDs() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.conns))
	for id := range e.conns {
		out = append(out, id)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Close closes every registered connection.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, db := range e.conns {
		if err := db.Close(); err != nil {
			e.logger.Warn("closing connection failed", "conn_id", id, "error", err)
		}
	}
	e.conns = make(map[string]*sql.DB)
}

// Run executes the query named in params against opts.ConnID and returns a
// page of rows. params must carry "query"; opts supplies pagination and the
// correlation ids which are echoed back on the result.
func (e *Executor) Run(ctx context.Context, params map[string]any, opts Options) *Result {
	queryText, _ := params["query"].(string)

	res := &Result{
		RequestID:   opts.RequestID,
		ResultID:    opts.ResultID,
		ConnID:      opts.ConnID,
		BaseQuery:   opts.BaseQuery,
		Query:       queryText,
		QueryType:   "select",
		QueryParams: params,
		Page:        opts.Page,
		PageSize:    opts.PageSize,
		Label:       Label(opts.ConnID, queryText),
	}
	if res.BaseQuery == "" {
		res.BaseQuery = queryText
	}
	if res.ResultID == "" {
		res.ResultID = uuid.NewString()
	}
	if res.PageSize <= 0 {
		res.PageSize = DefaultPageSize
	}
	if queryText == "" {
		res.Error = "query params missing query text"
		return res
	}

	e.mu.RLock()
	db, ok := e.conns[opts.ConnID]
	e.mu.RUnlock()
	if !ok {
		res.Error = fmt.Sprintf("unknown connection %q", opts.ConnID)
		return res
	}

	started := time.Now()

	var total int
	countStmt := fmt.Sprintf("SELECT COUNT(*) FROM (%s);", trimSemicolon(queryText))
	if err := db.QueryRowContext(ctx, countStmt).Scan(&total); err != nil {
		res.Error = fmt.Sprintf("count rows: %v", err)
		return res
	}
	res.Total = total

	pageStmt := fmt.Sprintf("SELECT * FROM (%s) LIMIT ? OFFSET ?;", trimSemicolon(queryText))
	rows, err := db.QueryContext(ctx, pageStmt, res.PageSize, res.Page*res.PageSize)
	if err != nil {
		res.Error = fmt.Sprintf("execute query: %v", err)
		return res
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		res.Error = fmt.Sprintf("read columns: %v", err)
		return res
	}
	res.Cols = cols

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			res.Error = fmt.Sprintf("scan row: %v", err)
			return res
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, isBytes := values[i].([]byte); isBytes {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		res.Results = append(res.Results, row)
	}
	if err := rows.Err(); err != nil {
		res.Error = fmt.Sprintf("iterate rows: %v", err)
		return res
	}

	res.Messages = append(res.Messages,
		fmt.Sprintf("%d rows total, page %d (%d rows) in %s",
			total, res.Page, len(res.Results), time.Since(started).Round(time.Millisecond)))
	e.logger.Debug("query executed", "conn_id", opts.ConnID, "rows", len(res.Results), "total", total)
	return res
}

// Describe returns the column layout of a table as a result tab.
func (e *Executor) Describe(ctx context.Context, table string, opts Options) *Result {
	params := map[string]any{"query": fmt.Sprintf("SELECT * FROM pragma_table_info(%q)", table), "table": table}
	res := e.Run(ctx, params, opts)
	res.QueryType = "describeTable"
	res.Label = "describe " + table
	return res
}

func trimSemicolon(q string) string {
	for len(q) > 0 && (q[len(q)-1] == ';' || q[len(q)-1] == ' ' || q[len(q)-1] == '\n' || q[len(q)-1] == '\t') {
		q = q[:len(q)-1]
	}
	return q
}
