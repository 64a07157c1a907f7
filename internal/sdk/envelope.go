package sdk

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Envelope is the untyped bag of result extras the SDK attaches to a
// finished flow. Every field is optional. A nil *Envelope stands for "the
// flow finished without data" and all accessors are safe to call on it.
type Envelope struct {
	extras *structpb.Struct
}

// NewEnvelope builds an Envelope from plain Go values (see structpb.NewValue
// for the accepted types).
func NewEnvelope(extras map[string]any) (*Envelope, error) {
	s, err := structpb.NewStruct(extras)
	if err != nil {
		return nil, fmt.Errorf("sdk: invalid envelope extras: %w", err)
	}
	return &Envelope{extras: s}, nil
}

// EnvelopeFromStruct wraps an existing Struct. A nil Struct yields an
// Envelope with no extras, which is distinct from a nil Envelope.
func EnvelopeFromStruct(s *structpb.Struct) *Envelope {
	return &Envelope{extras: s}
}

// ParseEnvelope decodes JSON-encoded extras. Empty input or a JSON null
// yields a nil Envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("sdk: failed to parse envelope: %w", err)
	}
	return &Envelope{extras: s}, nil
}

// Struct returns the underlying extras, or nil.
func (e *Envelope) Struct() *structpb.Struct {
	if e == nil {
		return nil
	}
	return e.extras
}

func (e *Envelope) field(key string) (*structpb.Value, bool) {
	if e == nil || e.extras == nil {
		return nil, false
	}
	v, ok := e.extras.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

// Int returns the integer stored under key, or def when absent or not a
// number.
func (e *Envelope) Int(key string, def int) int {
	v, ok := e.field(key)
	if !ok {
		return def
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || math.IsNaN(n.NumberValue) {
		return def
	}
	return int(n.NumberValue)
}

// String returns the string stored under key. ok is false when the key is
// absent, null or not a string.
func (e *Envelope) String(key string) (value string, ok bool) {
	v, present := e.field(key)
	if !present {
		return "", false
	}
	s, isStr := v.GetKind().(*structpb.Value_StringValue)
	if !isStr {
		return "", false
	}
	return s.StringValue, true
}

// Bool returns the boolean stored under key, or def.
func (e *Envelope) Bool(key string, def bool) bool {
	v, ok := e.field(key)
	if !ok {
		return def
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return def
	}
	return b.BoolValue
}

// Object returns the nested object stored under key, or nil.
func (e *Envelope) Object(key string) *structpb.Struct {
	v, ok := e.field(key)
	if !ok {
		return nil
	}
	return v.GetStructValue()
}
