// Package message defines the record catalogue exchanged between lobby clients and the
// server, together with the metadata registry the codec and dispatcher use to create,
// validate and route records by name.
package message

// Record is implemented by every protocol record. MsgID is the record name carried in the
// envelope's "type" tag.
type Record interface {
	MsgID() string
}

// Direction states which side may originate a record.
type Direction uint8

const (
	// DirNone marks an uninitialized descriptor.
	DirNone Direction = iota
	// DirCS records are sent by clients only.
	DirCS
	// DirSC records are sent by the server only.
	DirSC
	// DirBoth records travel in either direction.
	DirBoth
)

func (d Direction) String() string {
	switch d {
	case DirCS:
		return "C->S"
	case DirSC:
		return "S->C"
	case DirBoth:
		return "both"
	default:
		return "none"
	}
}

// MsgLayerType selects the application layer a client record is routed to.
type MsgLayerType uint8

const (
	// MsgLayerType_None indicates an invalid or uninitialized layer type.
	MsgLayerType_None MsgLayerType = iota
	// MsgLayerType_Session is for records that act on the connection itself and need no
	// lobby: listing requests, create, join and disconnect.
	MsgLayerType_Session
	// MsgLayerType_Lobby is for records addressed to the sender's current lobby.
	MsgLayerType_Lobby
	// MsgLayerType_Max is a sentinel used for validating the range of layer types.
	MsgLayerType_Max
)

// MsgProtoInfo is the descriptor of one record type.
type MsgProtoInfo struct {
	// New returns an empty instance used as the decode target.
	New func() Record
	// MsgID is the record name.
	MsgID string
	// Dir states who may originate the record.
	Dir Direction
	// MsgHandle is the handler attached by the application. Its concrete type is owned by
	// the layer named in MsgLayerType.
	MsgHandle any
	// MsgLayerType is the layer that handles the record when a client sends it.
	MsgLayerType
}

// IsCS reports whether clients may send the record.
func (pi *MsgProtoInfo) IsCS() bool {
	return pi != nil && (pi.Dir == DirCS || pi.Dir == DirBoth)
}

// IsSC reports whether the server may send the record.
func (pi *MsgProtoInfo) IsSC() bool {
	return pi != nil && (pi.Dir == DirSC || pi.Dir == DirBoth)
}

// GetMsgID returns the record name.
func (pi *MsgProtoInfo) GetMsgID() string {
	if pi != nil {
		return pi.MsgID
	}
	return ""
}

// GetMsgHandle returns the handler registered for the record.
func (pi *MsgProtoInfo) GetMsgHandle() any {
	if pi != nil {
		return pi.MsgHandle
	}
	return nil
}
