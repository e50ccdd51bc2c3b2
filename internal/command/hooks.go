package command

import (
	"sync"
)

// BeforeHook receives the Event snapshot before the handler runs.
type BeforeHook func(Event)

// AfterSuccessHook receives the SuccessEvent after a successful dispatch.
type AfterSuccessHook func(SuccessEvent)

// Hooks keeps per-command ordered lists of before/after callbacks and fires
// them off the lifecycle bus. Hooks are appended, never removed, and run in
// registration order. A hook cannot prevent the command from executing.
type Hooks struct {
	mu     sync.RWMutex
	before map[string][]BeforeHook
	after  map[string][]AfterSuccessHook
}

// NewHooks creates a hook registry wired to bus. The registry subscribes to
// both lifecycle topics; callers only ever add hooks, firing is driven by
// the dispatcher's publishes.
func NewHooks(bus *Bus) *Hooks {
	h := &Hooks{
		before: make(map[string][]BeforeHook),
		after:  make(map[string][]AfterSuccessHook),
	}
	bus.Subscribe(TopicWillRun, func(ev any) {
		if e, ok := ev.(Event); ok {
			h.fireBefore(e)
		}
	})
	bus.Subscribe(TopicDidRun, func(ev any) {
		if e, ok := ev.(SuccessEvent); ok {
			h.fireAfter(e)
		}
	})
	return h
}

// AddBeforeHook appends fn to the before-list for cmd, lazily creating the
// list. Returns the registry for chained registration.
func (h *Hooks) AddBeforeHook(cmd string, fn BeforeHook) *Hooks {
	h.mu.Lock()
	h.before[cmd] = append(h.before[cmd], fn)
	h.mu.Unlock()
	return h
}

// AddAfterSuccessHook appends fn to the after-list for cmd, lazily creating
// the list. Returns the registry for chained registration.
func (h *Hooks) AddAfterSuccessHook(cmd string, fn AfterSuccessHook) *Hooks {
	h.mu.Lock()
	h.after[cmd] = append(h.after[cmd], fn)
	h.mu.Unlock()
	return h
}

func (h *Hooks) fireBefore(ev Event) {
	h.mu.RLock()
	list := h.before[ev.Command]
	if len(list) == 0 {
		h.mu.RUnlock()
		return
	}
	hooks := make([]BeforeHook, len(list))
	copy(hooks, list)
	h.mu.RUnlock()

	for _, fn := range hooks {
		fn(ev)
	}
}

func (h *Hooks) fireAfter(ev SuccessEvent) {
	h.mu.RLock()
	list := h.after[ev.Command]
	if len(list) == 0 {
		h.mu.RUnlock()
		return
	}
	hooks := make([]AfterSuccessHook, len(list))
	copy(hooks, list)
	h.mu.RUnlock()

	for _, fn := range hooks {
		fn(ev)
	}
}
