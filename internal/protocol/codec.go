package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrChannelClosed is returned by Decoder.Decode when the peer closed its
// end of the channel.
var ErrChannelClosed = errors.New("channel closed")

// Encoder writes newline-delimited messages. It serializes concurrent
// writers so messages from different goroutines never interleave; ordering
// between goroutines is whoever wins the lock.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one message. Returns an error if the message is invalid or
// the underlying writer fails.
func (e *Encoder) Encode(msg *Message) error {
	if msg == nil || msg.Action == "" {
		return fmt.Errorf("refusing to encode message without action")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(msg); err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Action, err)
	}
	return nil
}

// Decoder reads newline-delimited messages from a stream.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Decode reads the next message. Envelope parsing is strict: unknown
// top-level fields indicate a protocol version mismatch and fail the read.
// Payloads stay raw; their shape is the action handler's concern.
func (d *Decoder) Decode() (*Message, error) {
	var raw json.RawMessage
	if err := d.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrChannelClosed
		}
		return nil, fmt.Errorf("read message: %w", err)
	}

	var msg Message
	strict := json.NewDecoder(bytes.NewReader(raw))
	strict.DisallowUnknownFields()
	if err := strict.Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}
	if msg.Action == "" {
		return nil, fmt.Errorf("message missing required field: action")
	}
	return &msg, nil
}

// DecodeLenient parses a single message from raw bytes, returning the raw
// input alongside any error. Used when debugging protocol mismatches.
func DecodeLenient(data []byte) (*Message, []byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, data, fmt.Errorf("peer produced no output")
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, data, fmt.Errorf("output is not a valid message: %w", err)
	}
	if msg.Action == "" {
		return nil, data, fmt.Errorf("message missing required field: action")
	}
	return &msg, data, nil
}
