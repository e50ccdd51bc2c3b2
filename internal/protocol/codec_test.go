package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	msg, err := NewCall("querydeck.executeQuery", map[string]any{"query": "select 1"}, map[string]any{"page": 1})
	require.NoError(t, err)
	require.NoError(t, enc.Encode(msg))

	// Newline-delimited framing.
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	dec := NewDecoder(&buf)
	got, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, ActionCall, got.Action)

	var call CallPayload
	require.NoError(t, got.DecodePayload(&call))
	assert.Equal(t, "querydeck.executeQuery", call.Command)
	require.Len(t, call.Args, 2)
}

func TestDecodeMultipleMessagesInOrder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	for _, action := range []string{ActionViewReady, ActionGetState, ActionReset} {
		msg, err := New(action, nil)
		require.NoError(t, err)
		require.NoError(t, enc.Encode(msg))
	}

	dec := NewDecoder(&buf)
	var actions []string
	for {
		msg, err := dec.Decode()
		if err == ErrChannelClosed {
			break
		}
		require.NoError(t, err)
		actions = append(actions, msg.Action)
	}
	assert.Equal(t, []string{ActionViewReady, ActionGetState, ActionReset}, actions)
}

func TestDecodeRejectsMissingAction(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"payload":{}}` + "\n"))
	_, err := dec.Decode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action")
}

func TestDecodeRejectsUnknownEnvelopeFields(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"action":"reset","extra":1}` + "\n"))
	_, err := dec.Decode()
	require.Error(t, err)
}

func TestDecodeClosedChannel(t *testing.T) {
	dec := NewDecoder(strings.NewReader(""))
	_, err := dec.Decode()
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestEncodeRejectsEmptyAction(t *testing.T) {
	enc := NewEncoder(&bytes.Buffer{})
	assert.Error(t, enc.Encode(&Message{}))
	assert.Error(t, enc.Encode(nil))
}

func TestDecodeLenient(t *testing.T) {
	msg, raw, err := DecodeLenient([]byte(`{"action":"viewReady","payload":null,"junk":true}`))
	require.NoError(t, err, "lenient decode tolerates unknown fields")
	assert.Equal(t, ActionViewReady, msg.Action)
	assert.NotEmpty(t, raw)

	_, _, err = DecodeLenient([]byte("  "))
	assert.Error(t, err)

	_, _, err = DecodeLenient([]byte("not json"))
	assert.Error(t, err)
}

func TestNewRejectsEmptyAction(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
	_, err = NewCall("")
	assert.Error(t, err)
}
