package query

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/querydeck/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e := NewExecutor()
	t.Cleanup(e.Close)
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, e.AddConnection("main", dsn))

	db := e.conns["main"]
	_, err := db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	for i := 1; i <= 120; i++ {
		_, err := db.Exec(`INSERT INTO users (id, name) VALUES (?, ?)`, i, "user-"+strings.Repeat("x", i%3))
		require.NoError(t, err)
	}
	return e
}

func TestRunFirstPageWithDefaults(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Run(context.Background(),
		map[string]any{"query": "SELECT id, name FROM users ORDER BY id;"},
		Options{RequestID: "req-1", ConnID: "main"})

	require.False(t, res.Failed(), "unexpected error: %s", res.Error)
	assert.Equal(t, "req-1", res.RequestID)
	assert.NotEmpty(t, res.ResultID, "a result id is minted when absent")
	assert.Equal(t, []string{"id", "name"}, res.Cols)
	assert.Equal(t, 120, res.Total)
	assert.Equal(t, DefaultPageSize, res.PageSize)
	assert.Len(t, res.Results, DefaultPageSize)
	assert.EqualValues(t, 1, res.Results[0]["id"])
	assert.NotEmpty(t, res.Messages)
}

func TestRunPagination(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Run(context.Background(),
		map[string]any{"query": "SELECT id FROM users ORDER BY id"},
		Options{ConnID: "main", Page: 2, PageSize: 50})

	require.False(t, res.Failed())
	assert.Equal(t, 120, res.Total)
	assert.Len(t, res.Results, 20, "last page holds the remainder")
	assert.EqualValues(t, 101, res.Results[0]["id"])
}

func TestRunPreservesResultID(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Run(context.Background(),
		map[string]any{"query": "SELECT id FROM users"},
		Options{ConnID: "main", ResultID: "tab-7"})
	assert.Equal(t, "tab-7", res.ResultID)
}

func TestRunErrorsBecomeResultFields(t *testing.T) {
	e := newTestExecutor(t)

	bad := e.Run(context.Background(),
		map[string]any{"query": "SELECT nope FROM missing"},
		Options{ConnID: "main"})
	assert.True(t, bad.Failed())

	noConn := e.Run(context.Background(),
		map[string]any{"query": "SELECT 1"},
		Options{ConnID: "ghost"})
	assert.True(t, noConn.Failed())
	assert.Contains(t, noConn.Error, "ghost")

	noQuery := e.Run(context.Background(), map[string]any{}, Options{ConnID: "main"})
	assert.True(t, noQuery.Failed())
}

func TestDescribe(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Describe(context.Background(), "users", Options{ConnID: "main"})
	require.False(t, res.Failed(), "unexpected error: %s", res.Error)
	assert.Equal(t, "describeTable", res.QueryType)
	assert.Equal(t, 2, res.Total, "one row per column")
}

func TestResultOptionsRoundTrip(t *testing.T) {
	r := &Result{RequestID: "req-9", ResultID: "tab-1", ConnID: "main", BaseQuery: "SELECT 1"}
	opts := r.Options()
	assert.Equal(t, Options{RequestID: "req-9", ResultID: "tab-1", ConnID: "main", BaseQuery: "SELECT 1"}, opts)
}

func TestLabelTruncates(t *testing.T) {
	long := strings.Repeat("SELECT ", 20)
	label := Label("main", long)
	assert.True(t, strings.HasPrefix(label, "main: "))
	assert.Less(t, len(label), len(long))
}
