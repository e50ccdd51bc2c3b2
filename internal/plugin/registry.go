package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mattjoyce/querydeck/internal/log"
)

// InstalledPluginsKey is the state-store key holding the per-type-tag set of
// external plugin ids that have ever been loaded.
const InstalledPluginsKey = "installed_plugins"

// Registry queues plugins until the bootstrap load pass and loads each
// exactly once across the process lifetime.
type Registry struct {
	handle   *Handle
	reporter Reporter
	recorder Recorder

	mu        sync.Mutex
	queue     []Plugin
	passDone  bool
	loaded    map[string]struct{}
	installed map[string]map[string]struct{} // type tag -> external id set
}

// NewRegistry creates an empty registry. recorder may be nil when external
// plugin bookkeeping is not wanted (tests, doctor runs).
func NewRegistry(handle *Handle, reporter Reporter, recorder Recorder) *Registry {
	return &Registry{
		handle:    handle,
		reporter:  reporter,
		recorder:  recorder,
		loaded:    make(map[string]struct{}),
		installed: make(map[string]map[string]struct{}),
	}
}

// Register appends plugins to the queue. Before the first LoadPlugins pass
// they accumulate; afterwards registration triggers an immediate new pass,
// so late registrants become usable without another bootstrap step.
func (r *Registry) Register(plugins ...Plugin) {
	r.mu.Lock()
	r.queue = append(r.queue, plugins...)
	triggerPass := r.passDone
	r.mu.Unlock()

	if triggerPass {
		r.LoadPlugins(context.Background())
	}
}

// LoadPlugins drains the current queue and loads each plugin in order. The
// queue is taken atomically: re-entrant Register calls during the pass start
// a fresh queue for the next pass instead of racing this one.
func (r *Registry) LoadPlugins(ctx context.Context) {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.passDone = true
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	recorded := false
	for _, p := range batch {
		name := p.Name()

		r.mu.Lock()
		_, already := r.loaded[name]
		r.mu.Unlock()
		if already {
			log.WithPlugin(name).Debug("plugin already loaded, skipping")
			continue
		}

		if err := r.loadOne(p); err != nil {
			if r.reporter != nil {
				r.reporter.Report(fmt.Sprintf("error loading plugin %s", name), err)
			}
			continue
		}

		r.mu.Lock()
		r.loaded[name] = struct{}{}
		r.mu.Unlock()
		log.WithPlugin(name).Info("plugin loaded")

		if ext, ok := p.(ExternalPlugin); ok {
			r.recordExternal(ext)
			recorded = true
		}
	}

	if recorded && r.recorder != nil {
		r.recorder.Put(InstalledPluginsKey, r.InstalledSnapshot())
	}
}

// loadOne invokes Register with panic isolation: a third-party registrant
// must never take the host down.
func (r *Registry) loadOne(p Plugin) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %s panicked during register: %v", p.Name(), rec)
		}
	}()
	return p.Register(r.handle)
}

func (r *Registry) recordExternal(p ExternalPlugin) {
	id := p.ExternalID()
	if id == "" {
		return
	}
	tag := DefaultTypeTag
	if tp, ok := p.(TypedPlugin); ok && tp.TypeTag() != "" {
		tag = tp.TypeTag()
	}

	r.mu.Lock()
	set, ok := r.installed[tag]
	if !ok {
		set = make(map[string]struct{})
		r.installed[tag] = set
	}
	set[id] = struct{}{}
	r.mu.Unlock()
}

// Loaded reports whether a plugin name has been loaded in this process.
func (r *Registry) Loaded(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loaded[name]
	return ok
}

// LoadedNames returns the names of every loaded plugin, sorted.
func (r *Registry) LoadedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// InstalledSnapshot returns the accumulated external plugin ids, sorted per
// type tag. This is the exact shape persisted under InstalledPluginsKey.
func (r *Registry) InstalledSnapshot() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string, len(r.installed))
	for tag, set := range r.installed {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[tag] = ids
	}
	return out
}
