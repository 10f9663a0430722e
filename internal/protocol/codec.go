package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownCodec  = errors.New("protocol: unknown codec")
	ErrEmptyFrame    = errors.New("protocol: empty frame")
	ErrMissingEvent  = errors.New("protocol: envelope has no event name")
	ErrEmptyPayload  = errors.New("protocol: empty payload")
	ErrBadNutrientID = errors.New("protocol: nutrient id must be a non-empty string")
)

// Envelope is a decoded frame whose payload is still encoded.
type Envelope struct {
	Event string
	Data  []byte
}

// Codec frames events for one connection. A connection picks its codec at
// upgrade time and keeps it for its lifetime.
type Codec interface {
	Name() string
	// Binary reports whether frames must be sent as binary messages.
	Binary() bool
	Encode(event string, data any) ([]byte, error)
	Decode(frame []byte) (Envelope, error)
	DecodeData(env Envelope, v any) error
}

// Codecs available to clients, keyed by the ?codec= query value.
var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecFor resolves a codec by name. Empty selects JSON.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// DecodeNutrientID accepts either a bare id or {"nutrientId": id}.
func DecodeNutrientID(c Codec, env Envelope) (string, error) {
	var id string
	if err := c.DecodeData(env, &id); err == nil {
		if id == "" {
			return "", ErrBadNutrientID
		}
		return id, nil
	}
	var p CollectPayload
	if err := c.DecodeData(env, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadNutrientID, err)
	}
	if p.NutrientID == "" {
		return "", ErrBadNutrientID
	}
	return p.NutrientID, nil
}

// =============================================================================
// JSON (text frames)
// =============================================================================

type jsonEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(event string, data any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	env := jsonEnvelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func (jsonCodec) Decode(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return Envelope{Event: env.Event, Data: env.Data}, nil
}

func (jsonCodec) DecodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w for %q", ErrEmptyPayload, env.Event)
	}
	return json.Unmarshal(env.Data, v)
}

// =============================================================================
// MessagePack (binary frames)
// =============================================================================

// Payload structs only carry json tags; msgpack falls back to them.
const structTag = "json"

type msgpackEnvelope struct {
	Event string             `msgpack:"event"`
	Data  msgpack.RawMessage `msgpack:"data,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Encode(event string, data any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	env := msgpackEnvelope{Event: event}
	if data != nil {
		raw, err := marshalMsgpack(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s: %w", event, err)
		}
		env.Data = raw
	}
	return marshalMsgpack(&env)
}

func (msgpackCodec) Decode(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var env msgpackEnvelope
	if err := unmarshalMsgpack(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return Envelope{Event: env.Event, Data: env.Data}, nil
}

func (msgpackCodec) DecodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w for %q", ErrEmptyPayload, env.Event)
	}
	return unmarshalMsgpack(env.Data, v)
}

func marshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag(structTag)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalMsgpack(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag(structTag)
	return dec.Decode(v)
}
