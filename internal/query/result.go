// Package query holds the result model shared by host and panel, the query
// options descriptor used to re-issue queries, and a SQLite-backed reference
// executor for the query-execution collaborator.
package query

import (
	"strings"
)

// DefaultPageSize is applied whenever a call omits the page size.
const DefaultPageSize = 50

// Result is one executed query, rendered by the panel as a selectable tab.
type Result struct {
	RequestID   string           `json:"requestId"`
	ResultID    string           `json:"resultId"`
	ConnID      string           `json:"connId"`
	BaseQuery   string           `json:"baseQuery"`
	Query       string           `json:"query"`
	QueryType   string           `json:"queryType"`
	QueryParams map[string]any   `json:"queryParams"`
	Cols        []string         `json:"cols"`
	Results     []map[string]any `json:"results"`
	Total       int              `json:"total"`
	Page        int              `json:"page"`
	PageSize    int              `json:"pageSize"`
	Error       string           `json:"error,omitempty"`
	Messages    []string         `json:"messages"`
	Label       string           `json:"label"`
}

// Failed reports whether this result carries an error.
func (r *Result) Failed() bool { return r != nil && r.Error != "" }

// Options is the query options descriptor: the minimal set of fields needed
// to re-issue a query identically. It is reconstructed fresh from a result
// tab on every outbound call and never cached separately.
type Options struct {
	RequestID string `json:"requestId"`
	ResultID  string `json:"resultId,omitempty"`
	ConnID    string `json:"connId,omitempty"`
	BaseQuery string `json:"baseQuery,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"pageSize,omitempty"`
	FileType  string `json:"fileType,omitempty"` // export calls only
}

// Options rebuilds the descriptor for re-issuing this result's query.
func (r *Result) Options() Options {
	return Options{
		RequestID: r.RequestID,
		ResultID:  r.ResultID,
		ConnID:    r.ConnID,
		BaseQuery: r.BaseQuery,
	}
}

// Label derives a short tab label from a connection id and query text.
func Label(connID, queryText string) string {
	q := strings.Join(strings.Fields(queryText), " ")
	if len(q) > 32 {
		q = q[:32] + "…"
	}
	if connID == "" {
		return q
	}
	return connID + ": " + q
}
