package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mattjoyce/querydeck/internal/log"
	"github.com/mattjoyce/querydeck/internal/protocol"
	"github.com/mattjoyce/querydeck/internal/query"
)

// Command names the panel invokes on the host. The host qualifies incoming
// calls, but the panel always sends the full namespaced name.
const (
	CmdExecuteQuery  = "querydeck.executeQuery"
	CmdDescribeTable = "querydeck.describeTable"
	CmdExportResults = "querydeck.exportResults"
)

// Channel owns the panel's state and its side of the host connection. All
// state transitions go through the reducer; all host traffic goes through
// here. The UI layer observes state changes, it never talks to the host
// directly.
type Channel struct {
	enc    *protocol.Encoder
	dec    *protocol.Decoder
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	onChange func(State)
}

func NewChannel(rw io.ReadWriter) *Channel {
	return &Channel{
		enc:    protocol.NewEncoder(rw),
		dec:    protocol.NewDecoder(rw),
		logger: log.WithComponent("panel"),
		state:  Initial(),
	}
}

// OnChange registers a callback invoked with every new state. Must be set
// before Run starts.
func (c *Channel) OnChange(fn func(State)) { c.onChange = fn }

// State returns a snapshot of the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready announces the panel to the host. The host answers by replaying
// persisted view state and the latest results.
func (c *Channel) Ready() error {
	msg, err := protocol.New(protocol.ActionViewReady, nil)
	if err != nil {
		return err
	}
	return c.enc.Encode(msg)
}

// Teardown clears the host's persisted copy of the view state. Called when
// the panel closes for good rather than being backgrounded.
func (c *Channel) Teardown() error {
	return c.enc.Encode(&protocol.Message{Action: protocol.ActionReceivedState})
}

// Run reads host messages until the channel closes or the context ends.
// A reducer failure is fatal and aborts the loop, and so is an unreadable
// frame: the decoder cannot resync past a corrupt envelope, so the only
// safe recovery is a fresh connection.
func (c *Channel) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := c.dec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrChannelClosed) {
				c.logger.Info("host closed the channel")
				return nil
			}
			c.logger.Error("closing channel on unreadable message", "error", err)
			return err
		}
		if err := c.handle(msg); err != nil {
			return err
		}
	}
}

func (c *Channel) handle(msg *protocol.Message) error {
	switch msg.Action {
	case protocol.ActionQueryResults:
		var tabs []*query.Result
		if msg.HasPayload() {
			if err := msg.DecodePayload(&tabs); err != nil {
				c.logger.Warn("dropping malformed results", "error", err)
				return nil
			}
		}
		return c.dispatch(ResultsReceived{Tabs: tabs})

	case protocol.ActionReset:
		return c.dispatch(Reset{})

	case protocol.ActionGetState:
		reply, err := protocol.New(protocol.ActionReceivedState, c.State())
		if err != nil {
			return err
		}
		return c.enc.Encode(reply)

	default:
		c.logger.Warn("dropping message with unknown action", "action", msg.Action)
		return nil
	}
}

// dispatch reduces the action, notifies the UI, and mirrors the new state to
// the host so it survives a panel restart. When the active tab moved or the
// tab set was replaced, the active tab's console log is forwarded too.
func (c *Channel) dispatch(a Action) error {
	c.mu.Lock()
	prev := c.state
	next, err := Reduce(c.state, a)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("reducer: %w", err)
	}
	c.state = next
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(next)
	}
	saved, err := protocol.New(protocol.ActionReceivedState, next)
	if err != nil {
		return err
	}
	if err := c.enc.Encode(saved); err != nil {
		return err
	}
	if viewChanged(prev, next) {
		return c.syncConsoleMessages(next.Active())
	}
	return nil
}

// viewChanged reports whether the active tab selection or the tab set itself
// differs between two states. Tabs are compared by identity; the reducer
// never mutates a tab in place.
func viewChanged(prev, next State) bool {
	if prev.ActiveTab != next.ActiveTab {
		return true
	}
	if len(prev.ResultTabs) != len(next.ResultTabs) {
		return true
	}
	for i := range prev.ResultTabs {
		if prev.ResultTabs[i] != next.ResultTabs[i] {
			return true
		}
	}
	return false
}

// syncConsoleMessages forwards the active tab's execution messages so the
// host can broadcast them to its console subscribers. No active tab means an
// empty log; the host gets told either way.
func (c *Channel) syncConsoleMessages(tab *query.Result) error {
	lines := []string{}
	if tab != nil {
		lines = append(lines, tab.Messages...)
	}
	msg, err := protocol.New(protocol.ActionSyncConsoleMessages, lines)
	if err != nil {
		return err
	}
	return c.enc.Encode(msg)
}

// SelectTab switches the active tab. Purely local; no host round trip.
func (c *Channel) SelectTab(index int) error {
	return c.dispatch(ToggleTab{Index: index})
}

// ChangePage asks the host to re-run the active tab's query for a different
// page. The options descriptor is rebuilt from the tab on every call, with
// the page size defaulted when the tab never had one.
func (c *Channel) ChangePage(page int) error {
	tab := c.State().Active()
	if tab == nil {
		return fmt.Errorf("no active result to page through")
	}

	opts := tab.Options()
	opts.Page = page
	opts.PageSize = tab.PageSize
	if opts.PageSize <= 0 {
		opts.PageSize = query.DefaultPageSize
	}
	return c.call(commandFor(tab.QueryType), tab.QueryParams, opts)
}

// Rerun re-issues the active tab's query as is.
func (c *Channel) Rerun() error {
	tab := c.State().Active()
	if tab == nil {
		return fmt.Errorf("no active result to re-run")
	}
	opts := tab.Options()
	opts.Page = tab.Page
	opts.PageSize = tab.PageSize
	return c.call(commandFor(tab.QueryType), tab.QueryParams, opts)
}

// SaveResults asks the host to export the active tab. The file type comes
// from the menu action the user picked, not from a separate argument.
func (c *Channel) SaveResults(menuAction, path string) error {
	tab := c.State().Active()
	if tab == nil {
		return fmt.Errorf("no active result to export")
	}

	params := make(map[string]any, len(tab.QueryParams)+1)
	for k, v := range tab.QueryParams {
		params[k] = v
	}
	params["path"] = path

	opts := tab.Options()
	opts.FileType = query.FileTypeForMenu(menuAction)
	return c.call(CmdExportResults, params, opts)
}

// call marks the panel loading, then sends one call message with the
// conventional two arguments: query params first, options descriptor second.
func (c *Channel) call(command string, params map[string]any, opts query.Options) error {
	loading := true
	if err := c.dispatch(Set{Patch: Patch{Loading: &loading}}); err != nil {
		return err
	}
	if params == nil {
		params = map[string]any{}
	}
	msg, err := protocol.NewCall(command, params, opts)
	if err != nil {
		return err
	}
	return c.enc.Encode(msg)
}

func commandFor(queryType string) string {
	if queryType == "describeTable" {
		return CmdDescribeTable
	}
	return CmdExecuteQuery
}
