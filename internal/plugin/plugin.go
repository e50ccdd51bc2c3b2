// Package plugin implements the registry for in-process extensibility units.
//
// A plugin is registered programmatically, queued until the bootstrap's
// single LoadPlugins pass, and loaded at most once for the process lifetime.
// A failing (or panicking) plugin is isolated: it is reported and skipped,
// and never blocks the remaining queue.
package plugin

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/mattjoyce/querydeck/internal/command"
	"github.com/mattjoyce/querydeck/internal/query"
)

// Plugin is one extensibility unit. Register receives the extension handle
// and wires commands, hooks, and subscriptions into the host.
type Plugin interface {
	Name() string
	Register(h *Handle) error
}

// ExternalPlugin is a plugin that originates outside the core distribution.
// Its ExternalID is recorded in the persisted installed-plugin set.
type ExternalPlugin interface {
	Plugin
	ExternalID() string
}

// TypedPlugin declares the type tag its ExternalID is recorded under.
// Plugins without it are recorded under DefaultTypeTag.
type TypedPlugin interface {
	TypeTag() string
}

// DefaultTypeTag groups external plugins that don't declare their own tag.
const DefaultTypeTag = "general"

// StateStore is the persistence collaborator visible to plugins.
type StateStore interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Update(ctx context.Context, key string, value any) error
}

// Handle is the extension handle passed to Plugin.Register. It is the only
// surface plugins get into the host. Runner and DB are nil when the host
// runs without a configured executor or state database; plugins that need
// them must check.
type Handle struct {
	Commands *command.Dispatcher
	Hooks    *command.Hooks
	Bus      *command.Bus
	Store    StateStore
	Runner   *query.Executor
	DB       *sql.DB
	Logger   *slog.Logger
}

// Reporter receives isolated plugin failures. The implementation decides
// whether that means logging, telemetry, or both.
type Reporter interface {
	Report(msg string, err error)
}

//go:generate mockgen -destination=mocks/mock_reporter.go -package=mocks github.com/mattjoyce/querydeck/internal/plugin Reporter,Recorder

// Recorder accepts fire-and-forget bookkeeping writes. Implemented by the
// debounced state writer so registration bursts coalesce into one persisted
// write.
type Recorder interface {
	Put(key string, value any)
}
