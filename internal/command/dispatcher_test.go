package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore() (*Dispatcher, *Hooks, *Bus) {
	bus := NewBus()
	hooks := NewHooks(bus)
	disp := NewDispatcher("querydeck", bus)
	return disp, hooks, bus
}

func TestDispatch_QualifiesNamespace(t *testing.T) {
	disp, _, _ := newTestCore()

	disp.Register("ping", func(ctx context.Context, args Args) (any, error) {
		return "pong", nil
	})

	assert.True(t, disp.Has("ping"))
	assert.True(t, disp.Has("querydeck.ping"))
	assert.Equal(t, []string{"querydeck.ping"}, disp.Names())

	res, err := disp.Dispatch(context.Background(), "querydeck.ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", res)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	disp, _, _ := newTestCore()

	_, err := disp.Dispatch(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatch_HookOrdering(t *testing.T) {
	disp, hooks, _ := newTestCore()

	var trace []string
	disp.Register("run", func(ctx context.Context, args Args) (any, error) {
		trace = append(trace, "handler")
		return 42, nil
	})

	hooks.
		AddBeforeHook("querydeck.run", func(ev Event) { trace = append(trace, "before-1") }).
		AddBeforeHook("querydeck.run", func(ev Event) { trace = append(trace, "before-2") }).
		AddBeforeHook("querydeck.run", func(ev Event) { trace = append(trace, "before-3") }).
		AddAfterSuccessHook("querydeck.run", func(ev SuccessEvent) { trace = append(trace, "after-1") }).
		AddAfterSuccessHook("querydeck.run", func(ev SuccessEvent) { trace = append(trace, "after-2") })

	_, err := disp.Dispatch(context.Background(), "run")
	require.NoError(t, err)

	assert.Equal(t, []string{"before-1", "before-2", "before-3", "handler", "after-1", "after-2"}, trace)
}

func TestDispatch_HooksReceiveSnapshots(t *testing.T) {
	disp, hooks, _ := newTestCore()

	disp.Register("add", func(ctx context.Context, args Args) (any, error) {
		return args[0].(int) + args[1].(int), nil
	})

	var before Event
	var after SuccessEvent
	hooks.AddBeforeHook("querydeck.add", func(ev Event) { before = ev })
	hooks.AddAfterSuccessHook("querydeck.add", func(ev SuccessEvent) { after = ev })

	res, err := disp.Dispatch(context.Background(), "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, res)

	assert.Equal(t, "querydeck.add", before.Command)
	assert.Equal(t, Args{2, 3}, before.Args)
	assert.Equal(t, "querydeck.add", after.Command)
	assert.Equal(t, Args{2, 3}, after.Args)
	assert.Equal(t, 5, after.Result)
}

func TestDispatch_FailureSuppressesAfterHooks(t *testing.T) {
	disp, hooks, _ := newTestCore()

	boom := errors.New("boom")
	disp.Register("explode", func(ctx context.Context, args Args) (any, error) {
		return nil, boom
	})

	beforeFired := 0
	afterFired := 0
	hooks.AddBeforeHook("querydeck.explode", func(ev Event) { beforeFired++ })
	hooks.AddAfterSuccessHook("querydeck.explode", func(ev SuccessEvent) { afterFired++ })

	_, err := disp.Dispatch(context.Background(), "explode")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, beforeFired, "before hook runs even when the handler fails")
	assert.Equal(t, 0, afterFired, "after hook must not run on failure")
}

func TestDispatch_SyncResultFiresDidRunSameTurn(t *testing.T) {
	disp, _, bus := newTestCore()

	disp.Register("now", func(ctx context.Context, args Args) (any, error) {
		return "immediate", nil
	})

	var got any
	bus.Subscribe(TopicDidRun, func(ev any) {
		got = ev.(SuccessEvent).Result
	})

	res, err := disp.Dispatch(context.Background(), "now")
	require.NoError(t, err)
	assert.Equal(t, "immediate", res)
	// Synchronous handler: the event already fired by the time Dispatch returned.
	assert.Equal(t, "immediate", got)
}

func TestDispatch_DeferredResultAwaited(t *testing.T) {
	disp, hooks, _ := newTestCore()

	disp.Register("slow", func(ctx context.Context, args Args) (any, error) {
		return Defer(func() (any, error) {
			time.Sleep(10 * time.Millisecond)
			return "eventually", nil
		}), nil
	})

	var afterResult any
	hooks.AddAfterSuccessHook("querydeck.slow", func(ev SuccessEvent) { afterResult = ev.Result })

	res, err := disp.Dispatch(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, "eventually", res)
	assert.Equal(t, "eventually", afterResult, "after hook sees the settled value, not the Deferred")
}

func TestDispatch_DeferredRejectionPropagates(t *testing.T) {
	disp, hooks, _ := newTestCore()

	rejected := errors.New("rejected")
	disp.Register("doomed", func(ctx context.Context, args Args) (any, error) {
		return Defer(func() (any, error) { return nil, rejected }), nil
	})

	afterFired := false
	hooks.AddAfterSuccessHook("querydeck.doomed", func(ev SuccessEvent) { afterFired = true })

	_, err := disp.Dispatch(context.Background(), "doomed")
	require.Error(t, err)
	assert.ErrorIs(t, err, rejected)
	assert.False(t, afterFired)
}

func TestDispatch_DeferredAwaitHonorsContext(t *testing.T) {
	disp, _, _ := newTestCore()

	block := make(chan struct{})
	defer close(block)
	disp.Register("stuck", func(ctx context.Context, args Args) (any, error) {
		return Defer(func() (any, error) {
			<-block
			return nil, nil
		}), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := disp.Dispatch(ctx, "stuck")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatch_ScopedSameContract(t *testing.T) {
	disp, hooks, _ := newTestCore()

	disp.RegisterScoped("format", func(ctx context.Context, args Args) (any, error) {
		return "formatted", nil
	})

	fired := 0
	hooks.AddBeforeHook("querydeck.format", func(ev Event) { fired++ })

	res, err := disp.Dispatch(context.Background(), "format")
	require.NoError(t, err)
	assert.Equal(t, "formatted", res)
	assert.Equal(t, 1, fired)
}

func TestDispatch_ConcurrentInvocationsIndependent(t *testing.T) {
	disp, _, _ := newTestCore()

	disp.Register("echo", func(ctx context.Context, args Args) (any, error) {
		return args[0], nil
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := disp.Dispatch(context.Background(), "echo", n)
			assert.NoError(t, err)
			assert.Equal(t, n, res)
		}(i)
	}
	wg.Wait()
}

func TestBus_PublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	// Must not panic or block.
	bus.Publish(TopicWillRun, Event{Command: "x"})

	sub := bus.Subscribe(TopicDidRun, func(any) {})
	assert.Equal(t, TopicDidRun, sub.Topic())
}
