package message

import (
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Blob is an opaque JSON object such as game settings. The server never interprets it
// beyond reading a few well-known keys, and replaces it wholesale on change.
type Blob struct {
	s *structpb.Struct
}

// NewBlob builds a Blob from a JSON-compatible map.
func NewBlob(m map[string]any) (Blob, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return Blob{}, err
	}
	return Blob{s: s}, nil
}

// BlobOf wraps an existing struct.
func BlobOf(s *structpb.Struct) Blob {
	return Blob{s: s}
}

// Struct returns the underlying struct, nil when empty.
func (b Blob) Struct() *structpb.Struct {
	return b.s
}

// IsZero reports whether the blob carries nothing.
func (b Blob) IsZero() bool {
	return b.s == nil
}

// AsMap converts the blob to plain Go values.
func (b Blob) AsMap() map[string]any {
	if b.s == nil {
		return nil
	}
	return b.s.AsMap()
}

// Int returns the integral numeric value stored under key.
func (b Blob) Int(key string) (int64, bool) {
	if b.s == nil {
		return 0, false
	}
	v, ok := b.s.GetFields()[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	f := n.NumberValue
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int64(f), true
}

// Equal reports whether both blobs hold the same content.
func (b Blob) Equal(o Blob) bool {
	if b.s == nil || o.s == nil {
		return b.s == nil && o.s == nil
	}
	return proto.Equal(b.s, o.s)
}

// MarshalJSON encodes the blob as a JSON object.
func (b Blob) MarshalJSON() ([]byte, error) {
	if b.s == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(b.s)
}

// UnmarshalJSON accepts a JSON object or null.
func (b *Blob) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.s = nil
		return nil
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return err
	}
	b.s = s
	return nil
}

// Payload is an opaque JSON value relayed between game clients.
type Payload struct {
	v *structpb.Value
}

// NewPayload builds a Payload from a JSON-compatible Go value.
func NewPayload(v any) (Payload, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{v: pv}, nil
}

// Value returns the underlying value, nil when empty.
func (p Payload) Value() *structpb.Value {
	return p.v
}

// AsInterface converts the payload to plain Go values.
func (p Payload) AsInterface() any {
	if p.v == nil {
		return nil
	}
	return p.v.AsInterface()
}

// MarshalJSON encodes the payload. Non-finite numbers are rejected.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.v == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(p.v)
}

// UnmarshalJSON accepts any JSON value.
func (p *Payload) UnmarshalJSON(data []byte) error {
	v := &structpb.Value{}
	if err := protojson.Unmarshal(data, v); err != nil {
		return err
	}
	p.v = v
	return nil
}
