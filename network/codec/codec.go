// Package codec turns records into self-delimiting JSON envelopes and back. Each record is
// encoded as {"type":"<name>","data":{...}} followed by a newline; the decoder finds the end
// of a record from the JSON structure itself, so any number of records may share one read
// and a record may be split across reads.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/linchenxuan/lobbyd/network/message"
)

var (
	// errCodecNotInit is returned when an operation is attempted before a Codec is set.
	errCodecNotInit = errors.New("codec not init")

	// _codec is the codec used by the package-level helpers.
	_codec Codec = &JSONCodec{}
)

// Codec encodes records and decodes them from an accumulating byte stream.
type Codec interface {
	// Encode appends the encoding of rec to b.
	Encode(rec message.Record, b []byte) ([]byte, error)

	// DecodeStream decodes records from the front of buf. It returns the decoded records in
	// order and the bytes not consumed yet. On a *ProtocolError the records decoded before
	// the bad one are still returned; the remainder is what follows the bad record when its
	// boundary is known, and nil when it is not.
	DecodeStream(buf []byte) (recs []message.Record, remainder []byte, err error)
}

// Encode uses the configured codec.
func Encode(rec message.Record, b []byte) ([]byte, error) {
	if _codec == nil {
		return nil, errCodecNotInit
	}
	return _codec.Encode(rec, b)
}

// DecodeStream uses the configured codec.
func DecodeStream(buf []byte) ([]message.Record, []byte, error) {
	if _codec == nil {
		return nil, buf, errCodecNotInit
	}
	return _codec.DecodeStream(buf)
}

// SetCodec replaces the package codec. It is not safe for concurrent use and should be
// called during initialization.
func SetCodec(c Codec) {
	_codec = c
}

// EncodeError reports a record that cannot be represented on the wire.
type EncodeError struct {
	MsgID string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.MsgID, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ProtocolError reports one malformed record. Resync is true when the decoder knows where
// the bad record ends and decoding may continue with the returned remainder.
type ProtocolError struct {
	MsgID  string
	Resync bool
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.MsgID != "" {
		return fmt.Sprintf("malformed %s record: %v", e.MsgID, e.Err)
	}
	return fmt.Sprintf("malformed record: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var emptyObject = []byte("{}")

// JSONCodec is the default codec.
type JSONCodec struct{}

// Encode is deterministic: field order follows the record struct and map keys are sorted.
func (c *JSONCodec) Encode(rec message.Record, b []byte) ([]byte, error) {
	if rec == nil {
		return b, &EncodeError{Err: errors.New("nil record")}
	}
	name := rec.MsgID()
	data, err := json.Marshal(rec)
	if err != nil {
		return b, &EncodeError{MsgID: name, Err: err}
	}
	env := envelope{Type: name}
	if !bytes.Equal(data, emptyObject) {
		env.Data = data
	}
	out, err := json.Marshal(&env)
	if err != nil {
		return b, &EncodeError{MsgID: name, Err: err}
	}
	b = append(b, out...)
	return append(b, '\n'), nil
}

// DecodeStream never retains buf; the remainder aliases it.
func (c *JSONCodec) DecodeStream(buf []byte) ([]message.Record, []byte, error) {
	var recs []message.Record
	for {
		buf = trimLeft(buf)
		if len(buf) == 0 {
			return recs, nil, nil
		}

		dec := json.NewDecoder(bytes.NewReader(buf))
		var env envelope
		err := dec.Decode(&env)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return recs, buf, nil
			}
			var syntaxErr *json.SyntaxError
			off := dec.InputOffset()
			if errors.As(err, &syntaxErr) || off <= 0 {
				return recs, nil, &ProtocolError{Err: err}
			}
			// The value was well formed but is not an envelope.
			return recs, rest(buf, off), &ProtocolError{Resync: true, Err: err}
		}
		after := rest(buf, dec.InputOffset())

		rec, err := decodeRecord(&env)
		if err != nil {
			return recs, after, &ProtocolError{MsgID: env.Type, Resync: true, Err: err}
		}
		recs = append(recs, rec)
		buf = after
	}
}

func decodeRecord(env *envelope) (message.Record, error) {
	if env.Type == "" {
		return nil, errors.New("missing type")
	}
	rec, err := message.CreateMsg(env.Type)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return rec, nil
	}
	if err := json.Unmarshal(env.Data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func rest(buf []byte, off int64) []byte {
	if off >= int64(len(buf)) {
		return nil
	}
	return buf[off:]
}

func trimLeft(buf []byte) []byte {
	for len(buf) > 0 {
		switch buf[0] {
		case ' ', '\t', '\r', '\n':
			buf = buf[1:]
		default:
			return buf
		}
	}
	return nil
}
