// Package protocol defines the message vocabulary spoken between the host
// and the panel process, and its newline-delimited JSON framing. The channel
// is assumed reliable and ordered; there is no retry or acknowledgement
// layer here.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the sole unit of cross-process communication. The action name
// selects the handling branch on the receiving side; unknown actions are the
// receiver's problem and must be logged and dropped, never fatal.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Actions sent host -> panel.
const (
	ActionQueryResults = "queryResults"
	ActionReset        = "reset"
	ActionGetState     = "getState"
)

// Actions sent panel -> host.
const (
	ActionViewReady           = "viewReady"
	ActionReceivedState       = "receivedState"
	ActionSyncConsoleMessages = "syncConsoleMessages"
	ActionCall                = "call"
)

// CallPayload is the payload of an ActionCall message: a generic command
// invocation naming a namespaced command and its arguments.
type CallPayload struct {
	Command string `json:"command"`
	Args    []any  `json:"args"`
}

// New builds a message with payload marshaled in place. A nil payload
// produces a bare action message.
func New(action string, payload any) (*Message, error) {
	if action == "" {
		return nil, fmt.Errorf("message action is empty")
	}
	msg := &Message{Action: action}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", action, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// NewCall builds a call message for command with args.
func NewCall(command string, args ...any) (*Message, error) {
	if command == "" {
		return nil, fmt.Errorf("call command is empty")
	}
	if args == nil {
		args = []any{}
	}
	return New(ActionCall, CallPayload{Command: command, Args: args})
}

// DecodePayload unmarshals the message payload into v. An absent payload is
// an error: every action that carries data requires one.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %q has no payload", m.Action)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Action, err)
	}
	return nil
}

// HasPayload reports whether the message carries a payload.
func (m *Message) HasPayload() bool {
	return len(m.Payload) > 0 && string(m.Payload) != "null"
}
