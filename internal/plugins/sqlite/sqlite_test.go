package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/querydeck/internal/command"
	"github.com/mattjoyce/querydeck/internal/log"
	"github.com/mattjoyce/querydeck/internal/plugin"
	"github.com/mattjoyce/querydeck/internal/query"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// newTestHandle seeds a throwaway database with an items table of rows rows
// and wires the driver against it as connection "main".
func newTestHandle(t *testing.T, rows int) *plugin.Handle {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "data.db")
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	for i := 1; i <= rows; i++ {
		_, err := db.Exec(`INSERT INTO items (id, name) VALUES (?, ?)`, i, "item")
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	runner := query.NewExecutor()
	t.Cleanup(runner.Close)
	require.NoError(t, runner.AddConnection("main", dsn))

	bus := command.NewBus()
	h := &plugin.Handle{
		Commands: command.NewDispatcher("querydeck", bus),
		Hooks:    command.NewHooks(bus),
		Bus:      bus,
		Runner:   runner,
		Logger:   log.WithPlugin("sqlite"),
	}
	require.NoError(t, (&Driver{}).Register(h))
	return h
}

func TestRegisterRequiresRunner(t *testing.T) {
	bus := command.NewBus()
	h := &plugin.Handle{
		Commands: command.NewDispatcher("querydeck", bus),
		Hooks:    command.NewHooks(bus),
		Bus:      bus,
		Logger:   log.WithPlugin("sqlite"),
	}
	assert.Error(t, (&Driver{}).Register(h))
}

func TestExecuteQueryThroughDispatch(t *testing.T) {
	h := newTestHandle(t, 5)

	res, err := h.Commands.Dispatch(context.Background(), "executeQuery",
		map[string]any{"query": "SELECT id, name FROM items ORDER BY id"},
		query.Options{RequestID: "req-1", ConnID: "main"})
	require.NoError(t, err)

	tab, ok := res.(*query.Result)
	require.True(t, ok, "dispatch settles the deferred result")
	require.False(t, tab.Failed(), "unexpected error: %s", tab.Error)
	assert.Equal(t, 5, tab.Total)
	assert.Equal(t, "req-1", tab.RequestID)
}

func TestDescribeTableThroughDispatch(t *testing.T) {
	h := newTestHandle(t, 1)

	res, err := h.Commands.Dispatch(context.Background(), "describeTable",
		map[string]any{"table": "items"},
		query.Options{ConnID: "main"})
	require.NoError(t, err)

	tab := res.(*query.Result)
	require.False(t, tab.Failed(), "unexpected error: %s", tab.Error)
	assert.Equal(t, "describeTable", tab.QueryType)
	assert.Equal(t, 2, tab.Total)
}

func TestDescribeTableRequiresName(t *testing.T) {
	h := newTestHandle(t, 0)
	_, err := h.Commands.Dispatch(context.Background(), "describeTable", map[string]any{})
	assert.Error(t, err)
}

func TestExportResults(t *testing.T) {
	h := newTestHandle(t, 3)
	path := filepath.Join(t.TempDir(), "items.csv")

	res, err := h.Commands.Dispatch(context.Background(), "exportResults",
		map[string]any{"query": "SELECT id, name FROM items", "path": path},
		query.Options{ConnID: "main", FileType: query.FileTypeCSV})
	require.NoError(t, err)
	assert.Nil(t, res, "exports produce no result tab")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id,name")
}

func TestExportResultsRequiresPath(t *testing.T) {
	h := newTestHandle(t, 0)
	_, err := h.Commands.Dispatch(context.Background(), "exportResults",
		map[string]any{"query": "SELECT 1"}, query.Options{ConnID: "main"})
	assert.Error(t, err)
}

func TestExportOfFailedQuery(t *testing.T) {
	h := newTestHandle(t, 0)
	_, err := h.Commands.Dispatch(context.Background(), "exportResults",
		map[string]any{"query": "SELECT nope FROM missing", "path": filepath.Join(t.TempDir(), "x.csv")},
		query.Options{ConnID: "main"})
	assert.Error(t, err)
}

func TestCallArgsRejectsNonObjectParams(t *testing.T) {
	_, _, err := callArgs(command.Args{"not a map"})
	assert.Error(t, err)
}

func TestRegisteredAsBuiltin(t *testing.T) {
	plugins := plugin.Builtins(func(name string) bool { return name == "sqlite" })
	require.Len(t, plugins, 1)
	assert.Equal(t, "sqlite", plugins[0].Name())

	ext, ok := plugins[0].(plugin.ExternalPlugin)
	require.True(t, ok)
	assert.Equal(t, "builtin.sqlite-driver", ext.ExternalID())

	typed, ok := plugins[0].(plugin.TypedPlugin)
	require.True(t, ok)
	assert.Equal(t, "driver", typed.TypeTag())
}
