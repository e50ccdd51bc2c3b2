package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mattjoyce/querydeck/internal/log"
)

// ErrUnknownCommand is returned when dispatching a name with no registration.
var ErrUnknownCommand = errors.New("unknown command")

// Handler executes one command invocation.
type Handler func(ctx context.Context, args Args) (any, error)

// kind distinguishes plain commands from text-editor-scoped ones. Both kinds
// share the namespace, the hook machinery, and the dispatch contract.
type kind int

const (
	kindPlain kind = iota
	kindScoped
)

func (k kind) String() string {
	if k == kindScoped {
		return "scoped"
	}
	return "plain"
}

type registration struct {
	name    string
	kind    kind
	handler Handler
}

// Dispatcher binds handlers under a fixed namespace prefix and runs them
// through the lifecycle bus.
type Dispatcher struct {
	namespace string
	bus       *Bus
	logger    *slog.Logger

	mu       sync.RWMutex
	commands map[string]*registration
}

// NewDispatcher creates a dispatcher publishing on bus. Registered names are
// exposed as "<namespace>.<name>".
func NewDispatcher(namespace string, bus *Bus) *Dispatcher {
	return &Dispatcher{
		namespace: namespace,
		bus:       bus,
		logger:    log.WithComponent("dispatch"),
		commands:  make(map[string]*registration),
	}
}

// Register binds handler to name under the namespace. Returns the dispatcher
// so registrants can chain registrations.
func (d *Dispatcher) Register(name string, handler Handler) *Dispatcher {
	return d.register(name, kindPlain, handler)
}

// RegisterScoped binds a text-editor-scoped command. Distinct registration
// kind, same dispatch contract as Register.
func (d *Dispatcher) RegisterScoped(name string, handler Handler) *Dispatcher {
	return d.register(name, kindScoped, handler)
}

func (d *Dispatcher) register(name string, k kind, handler Handler) *Dispatcher {
	full := d.Qualify(name)

	d.mu.Lock()
	if _, exists := d.commands[full]; exists {
		d.logger.Warn("command re-registered, replacing handler", "command", full)
	}
	d.commands[full] = &registration{name: full, kind: k, handler: handler}
	d.mu.Unlock()

	d.logger.Debug("command registered", "command", full, "kind", k.String())
	return d
}

// Qualify returns the namespaced form of name. Names already carrying the
// prefix pass through unchanged, so panel calls can use full names.
func (d *Dispatcher) Qualify(name string) string {
	prefix := d.namespace + "."
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

// Has reports whether a handler is registered for name.
func (d *Dispatcher) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.commands[d.Qualify(name)]
	return ok
}

// Names returns all registered command names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.commands))
	for name := range d.commands {
		out = append(out, name)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Dispatch runs one invocation of name with args. The will-run event is
// published before the handler executes; the did-run event is published only
// if the handler (and any Deferred it returned) settled without error.
// Failures propagate to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args ...any) (any, error) {
	full := d.Qualify(name)

	d.mu.RLock()
	reg, ok := d.commands[full]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, full)
	}

	ev := Event{Command: full, Args: Args(args)}
	d.logger.Debug("dispatching", "command", full, "args", len(args))
	d.bus.Publish(TopicWillRun, ev)

	result, err := reg.handler(ctx, ev.Args)
	if err != nil {
		d.logger.Warn("command failed", "command", full, "error", err)
		return nil, fmt.Errorf("command %s: %w", full, err)
	}

	if def, isDeferred := result.(Deferred); isDeferred {
		d.logger.Debug("awaiting deferred result", "command", full)
		result, err = def.Await(ctx)
		if err != nil {
			d.logger.Warn("deferred command failed", "command", full, "error", err)
			return nil, fmt.Errorf("command %s: %w", full, err)
		}
	}

	d.bus.Publish(TopicDidRun, SuccessEvent{Command: full, Args: ev.Args, Result: result})
	d.logger.Debug("dispatch completed", "command", full)
	return result, nil
}
