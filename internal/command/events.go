package command

import (
	"sync"
)

// Topic names one of the two fixed command lifecycle streams.
type Topic string

const (
	// TopicWillRun fires before a command handler executes.
	TopicWillRun Topic = "command.will_run"
	// TopicDidRun fires after a command handler completed without error.
	TopicDidRun Topic = "command.did_run"
)

// Args is the positional argument list of one invocation.
type Args []any

// Event is the immutable snapshot published on TopicWillRun, created at
// invocation time before the handler runs.
type Event struct {
	Command string
	Args    Args
}

// SuccessEvent is published on TopicDidRun. Result is the settled value:
// handlers that returned a Deferred are awaited first.
type SuccessEvent struct {
	Command string
	Args    Args
	Result  any
}

// Subscription is the handle returned by Bus.Subscribe. Lifecycle
// subscriptions are permanent for the process lifetime; the handle exists
// so registrants can identify what they subscribed to.
type Subscription struct {
	topic Topic
	id    int
}

// Topic returns the topic this subscription is attached to.
func (s *Subscription) Topic() Topic { return s.topic }

// Bus is a synchronous publish/subscribe fan-out over the two lifecycle
// topics. Handlers run in registration order on the publisher's goroutine;
// there is no buffering and no delivery guarantee beyond "called once per
// publish".
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]func(any)
	nextID int
}

// NewBus creates an empty lifecycle bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]func(any))}
}

// Subscribe appends fn to the ordered handler list for topic.
func (b *Bus) Subscribe(topic Topic, fn func(any)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[topic] = append(b.subs[topic], fn)
	b.nextID++
	return &Subscription{topic: topic, id: b.nextID}
}

// Publish invokes every handler subscribed to topic, synchronously and in
// registration order, with ev.
func (b *Bus) Publish(topic Topic, ev any) {
	b.mu.RLock()
	handlers := b.subs[topic]
	if len(handlers) == 0 {
		b.mu.RUnlock()
		return
	}
	fns := make([]func(any), len(handlers))
	copy(fns, handlers)
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
