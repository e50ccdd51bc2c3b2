// Package panel implements the query results panel: a reducer-managed view
// state, a message channel speaking the host protocol, and a terminal UI
// rendered with bubbletea.
package panel

import (
	"errors"

	"github.com/mattjoyce/querydeck/internal/query"
)

// ErrUnknownAction is returned by Reduce for an action type it does not
// recognize. The channel loop treats it as fatal: an unknown action means a
// programming error, not bad peer input.
var ErrUnknownAction = errors.New("unknown reducer action")

// State is the panel's entire view state. It is replaced wholesale on every
// reduction; nothing mutates it in place.
type State struct {
	Loading bool `json:"loading"`
	// Error is the first error-bearing result tab, nil when every tab
	// succeeded. The view renders its message; the whole tab is kept so
	// the failing query's context survives in persisted snapshots.
	Error      *query.Result   `json:"error,omitempty"`
	ResultTabs []*query.Result `json:"resultTabs"`
	ActiveTab  int             `json:"activeTab"`
}

// Initial returns the state the panel boots with: loading until the first
// results arrive, no tabs, no error.
func Initial() State {
	return State{
		Loading:    true,
		ResultTabs: []*query.Result{},
		ActiveTab:  0,
	}
}

// Active returns the currently selected tab, or nil when there is none.
func (s State) Active() *query.Result {
	if s.ActiveTab < 0 || s.ActiveTab >= len(s.ResultTabs) {
		return nil
	}
	return s.ResultTabs[s.ActiveTab]
}

// Action is the closed set of state transitions. Each concrete action is a
// struct carrying exactly the data its transition needs.
type Action interface {
	isAction()
}

// Reset discards everything and returns to the initial state.
type Reset struct{}

// ResultsReceived replaces the tab set with freshly executed results.
type ResultsReceived struct {
	Tabs []*query.Result
}

// ToggleTab selects the tab at Index.
type ToggleTab struct {
	Index int
}

// Set shallow-merges a patch into the state. Only fields the patch sets are
// touched; everything else survives unchanged.
type Set struct {
	Patch Patch
}

func (Reset) isAction()           {}
func (ResultsReceived) isAction() {}
func (ToggleTab) isAction()       {}
func (Set) isAction()             {}

// Patch is a partial state. Nil fields mean "leave as is". Error is doubly
// indirect so a patch can distinguish "leave as is" (nil) from "clear"
// (pointer to nil).
type Patch struct {
	Loading    *bool
	Error      **query.Result
	ResultTabs *[]*query.Result
	ActiveTab  *int
}

// Reduce applies one action to the state and returns the next state. It is a
// pure function: no IO, no mutation of the input.
func Reduce(s State, a Action) (State, error) {
	switch act := a.(type) {
	case Reset:
		return Initial(), nil

	case ResultsReceived:
		tabs := act.Tabs
		if tabs == nil {
			tabs = []*query.Result{}
		}
		next := s
		next.ResultTabs = tabs
		next.ActiveTab = 0
		next.Loading = false
		next.Error = firstError(tabs)
		return next, nil

	case ToggleTab:
		// Index lands as is. Bounds are the view's invariant; Active
		// already answers nil for an unaddressable tab.
		next := s
		next.ActiveTab = act.Index
		return next, nil

	case Set:
		next := s
		if act.Patch.Loading != nil {
			next.Loading = *act.Patch.Loading
		}
		if act.Patch.Error != nil {
			next.Error = *act.Patch.Error
		}
		if act.Patch.ResultTabs != nil {
			next.ResultTabs = *act.Patch.ResultTabs
		}
		if act.Patch.ActiveTab != nil {
			next.ActiveTab = *act.Patch.ActiveTab
		}
		return next, nil

	default:
		return s, ErrUnknownAction
	}
}

func firstError(tabs []*query.Result) *query.Result {
	for _, tab := range tabs {
		if tab.Failed() {
			return tab
		}
	}
	return nil
}
