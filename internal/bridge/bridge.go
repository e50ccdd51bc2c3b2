// Package bridge runs the host side of a panel connection: it turns panel
// call messages into command dispatches, pushes query results back, and keeps
// a persisted copy of the panel's view state so a restarted panel resumes
// where it left off.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/mattjoyce/querydeck/internal/command"
	"github.com/mattjoyce/querydeck/internal/events"
	"github.com/mattjoyce/querydeck/internal/log"
	"github.com/mattjoyce/querydeck/internal/protocol"
	"github.com/mattjoyce/querydeck/internal/query"
)

// ViewStateKey is the persistence key for the panel's mirrored view state.
const ViewStateKey = "panel_view_state"

// ViewStore is the slice of the state store the bridge needs.
type ViewStore interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Update(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Session serves one connected panel until its channel closes.
type Session struct {
	enc        *protocol.Encoder
	dec        *protocol.Decoder
	dispatcher *command.Dispatcher
	store      ViewStore
	hub        *events.Hub
	logger     *slog.Logger
}

func NewSession(rw io.ReadWriter, d *command.Dispatcher, store ViewStore, hub *events.Hub) *Session {
	return &Session{
		enc:        protocol.NewEncoder(rw),
		dec:        protocol.NewDecoder(rw),
		dispatcher: d,
		store:      store,
		hub:        hub,
		logger:     log.WithComponent("bridge"),
	}
}

// Run reads panel messages until the channel closes. Well-formed messages
// with bad payloads are logged and dropped, but an unreadable frame ends the
// session: the decoder cannot resync past a corrupt envelope, so the peer
// has to reconnect.
func (s *Session) Run(ctx context.Context) error {
	s.hub.Publish(events.TypePanelConnected, nil)
	defer s.hub.Publish(events.TypePanelClosed, nil)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := s.dec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrChannelClosed) {
				s.logger.Info("panel closed the channel")
				return nil
			}
			s.logger.Error("closing session on unreadable message", "error", err)
			return err
		}
		if err := s.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *Session) handle(ctx context.Context, msg *protocol.Message) error {
	switch msg.Action {
	case protocol.ActionViewReady:
		return s.rehydrate(ctx)

	case protocol.ActionReceivedState:
		return s.persistViewState(ctx, msg)

	case protocol.ActionSyncConsoleMessages:
		var lines []string
		if err := msg.DecodePayload(&lines); err != nil {
			s.logger.Warn("dropping malformed console sync", "error", err)
			return nil
		}
		for _, line := range lines {
			s.hub.PublishConsole(line)
		}
		return nil

	case protocol.ActionCall:
		var call protocol.CallPayload
		if err := msg.DecodePayload(&call); err != nil {
			s.logger.Warn("dropping malformed call", "error", err)
			return nil
		}
		return s.handleCall(ctx, call)

	default:
		s.logger.Warn("dropping message with unknown action", "action", msg.Action)
		return nil
	}
}

// rehydrate replays persisted view state to a freshly announced panel. With
// nothing persisted the panel gets an empty result set, which also takes it
// out of its boot loading state.
func (s *Session) rehydrate(ctx context.Context) error {
	raw, err := s.store.Get(ctx, ViewStateKey)
	if err != nil {
		s.logger.Warn("loading persisted view state failed", "error", err)
		raw = nil
	}
	if raw == nil {
		return s.pushResults(nil)
	}

	var saved struct {
		ResultTabs []*query.Result `json:"resultTabs"`
	}
	if err := json.Unmarshal(raw, &saved); err != nil {
		s.logger.Warn("persisted view state is unreadable, discarding", "error", err)
		_ = s.store.Delete(ctx, ViewStateKey)
		return s.pushResults(nil)
	}
	return s.pushResults(saved.ResultTabs)
}

// persistViewState stores the panel's mirrored state verbatim. An empty
// payload is the panel tearing down and clears the stored copy.
func (s *Session) persistViewState(ctx context.Context, msg *protocol.Message) error {
	if !msg.HasPayload() {
		if err := s.store.Delete(ctx, ViewStateKey); err != nil {
			s.logger.Warn("clearing view state failed", "error", err)
		}
		return nil
	}
	if err := s.store.Update(ctx, ViewStateKey, msg.Payload); err != nil {
		s.logger.Warn("persisting view state failed", "error", err)
	}
	return nil
}

// handleCall dispatches one panel call. Dispatch failures never kill the
// session: they come back to the panel as a single errored result tab.
func (s *Session) handleCall(ctx context.Context, call protocol.CallPayload) error {
	s.hub.Publish(events.TypeCommandDispatched, map[string]string{"command": call.Command})

	res, err := s.dispatcher.Dispatch(ctx, call.Command, call.Args...)
	if err != nil {
		s.logger.Warn("panel call failed", "command", call.Command, "error", err)
		s.hub.Publish(events.TypeCommandFailed, map[string]string{
			"command": call.Command,
			"error":   err.Error(),
		})
		return s.pushResults([]*query.Result{errorResult(call, err)})
	}

	switch v := res.(type) {
	case *query.Result:
		return s.pushResults([]*query.Result{v})
	case []*query.Result:
		return s.pushResults(v)
	default:
		// Commands without result tabs (exports, side effects) push nothing.
		return nil
	}
}

func (s *Session) pushResults(tabs []*query.Result) error {
	if tabs == nil {
		tabs = []*query.Result{}
	}
	msg, err := protocol.New(protocol.ActionQueryResults, tabs)
	if err != nil {
		return err
	}
	return s.enc.Encode(msg)
}

// errorResult rebuilds enough of the failed call's context that the panel can
// render the error on the tab the user acted on.
func errorResult(call protocol.CallPayload, dispatchErr error) *query.Result {
	res := &query.Result{
		Query: call.Command,
		Label: call.Command,
		Error: dispatchErr.Error(),
	}
	if len(call.Args) > 0 {
		if params, ok := call.Args[0].(map[string]any); ok {
			res.QueryParams = params
		}
	}
	if len(call.Args) > 1 {
		var opts query.Options
		if data, err := json.Marshal(call.Args[1]); err == nil {
			if json.Unmarshal(data, &opts) == nil {
				res.RequestID = opts.RequestID
				res.ResultID = opts.ResultID
				res.ConnID = opts.ConnID
				res.BaseQuery = opts.BaseQuery
				res.Page = opts.Page
				res.PageSize = opts.PageSize
			}
		}
	}
	return res
}
