// Package sqlite is the built-in driver plugin. It registers the query
// commands the panel calls and serves them through the host's SQLite
// executor.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/querydeck/internal/command"
	"github.com/mattjoyce/querydeck/internal/plugin"
	"github.com/mattjoyce/querydeck/internal/query"
)

func init() {
	plugin.RegisterBuiltin("sqlite", func() plugin.Plugin { return &Driver{} })
}

// Driver registers executeQuery, describeTable, and exportResults.
type Driver struct{}

func (d *Driver) Name() string       { return "sqlite" }
func (d *Driver) ExternalID() string { return "builtin.sqlite-driver" }
func (d *Driver) TypeTag() string    { return "driver" }

func (d *Driver) Register(h *plugin.Handle) error {
	if h.Runner == nil {
		return fmt.Errorf("sqlite driver requires a query executor")
	}

	h.Commands.
		Register("executeQuery", d.executeQuery(h)).
		Register("describeTable", d.describeTable(h)).
		Register("exportResults", d.exportResults(h))
	return nil
}

// executeQuery runs asynchronously: the handler returns a deferred result so
// the dispatcher's completion hooks wait for the actual rows, not for the
// goroutine launch.
func (d *Driver) executeQuery(h *plugin.Handle) command.Handler {
	return func(ctx context.Context, args command.Args) (any, error) {
		params, opts, err := callArgs(args)
		if err != nil {
			return nil, err
		}
		return command.Defer(func() (any, error) {
			return h.Runner.Run(ctx, params, opts), nil
		}), nil
	}
}

func (d *Driver) describeTable(h *plugin.Handle) command.Handler {
	return func(ctx context.Context, args command.Args) (any, error) {
		params, opts, err := callArgs(args)
		if err != nil {
			return nil, err
		}
		table, _ := params["table"].(string)
		if table == "" {
			return nil, fmt.Errorf("describeTable requires a table name")
		}
		return command.Defer(func() (any, error) {
			return h.Runner.Describe(ctx, table, opts), nil
		}), nil
	}
}

// exportResults re-runs the query for the page the user is looking at and
// writes it to the requested path. It produces no result tabs.
func (d *Driver) exportResults(h *plugin.Handle) command.Handler {
	return func(ctx context.Context, args command.Args) (any, error) {
		params, opts, err := callArgs(args)
		if err != nil {
			return nil, err
		}
		path, _ := params["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("exportResults requires a path")
		}
		fileType := opts.FileType
		if fileType == "" {
			fileType = query.FileTypeCSV
		}

		res := h.Runner.Run(ctx, params, opts)
		if res.Failed() {
			return nil, fmt.Errorf("export query failed: %s", res.Error)
		}
		if err := query.Export(res, fileType, path); err != nil {
			return nil, err
		}
		h.Logger.Info("results exported", "path", path, "file_type", fileType, "rows", len(res.Results))
		return nil, nil
	}
}

// callArgs unpacks the conventional call shape: query params first, options
// descriptor second. Both are optional; missing pieces come back empty.
func callArgs(args command.Args) (map[string]any, query.Options, error) {
	params := map[string]any{}
	var opts query.Options

	if len(args) > 0 && args[0] != nil {
		m, ok := args[0].(map[string]any)
		if !ok {
			return nil, opts, fmt.Errorf("query params must be an object, got %T", args[0])
		}
		params = m
	}
	if len(args) > 1 && args[1] != nil {
		data, err := json.Marshal(args[1])
		if err != nil {
			return nil, opts, fmt.Errorf("marshal query options: %w", err)
		}
		if err := json.Unmarshal(data, &opts); err != nil {
			return nil, opts, fmt.Errorf("decode query options: %w", err)
		}
	}
	return params, opts, nil
}
