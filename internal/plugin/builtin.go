package plugin

import (
	"sort"
	"sync"
)

// Constructor builds one built-in plugin instance.
type Constructor func() Plugin

var (
	builtinMu sync.Mutex
	builtins  = make(map[string]Constructor)
)

// RegisterBuiltin records a built-in plugin constructor. Called from the
// implementing package's init, mirroring the database/sql driver pattern:
// importing the package makes the plugin available.
func RegisterBuiltin(name string, fn Constructor) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtins[name] = fn
}

// Builtins constructs every registered built-in plugin that enabled accepts,
// in name order. A nil enabled func means all of them.
func Builtins(enabled func(name string) bool) []Plugin {
	builtinMu.Lock()
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	builtinMu.Unlock()
	sort.Strings(names)

	var out []Plugin
	for _, name := range names {
		if enabled != nil && !enabled(name) {
			continue
		}
		builtinMu.Lock()
		fn := builtins[name]
		builtinMu.Unlock()
		out = append(out, fn())
	}
	return out
}
