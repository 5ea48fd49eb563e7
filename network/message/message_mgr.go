package message

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownRecord is returned when a record name has no registered descriptor.
var ErrUnknownRecord = errors.New("unknown record type")

var (
	propInfoMap = make(map[string]*MsgProtoInfo)
	propLock    sync.RWMutex
)

// RegisterMsgInfo registers the descriptor of a record type. A handler and layer attached
// earlier through RegisterMsgHandle are preserved.
func RegisterMsgInfo(pi *MsgProtoInfo) {
	if pi == nil || len(pi.MsgID) == 0 || pi.New == nil {
		return
	}

	propLock.Lock()
	defer propLock.Unlock()
	if p, ok := propInfoMap[pi.MsgID]; ok {
		pi.MsgHandle = p.MsgHandle
		pi.MsgLayerType = p.MsgLayerType
	}
	propInfoMap[pi.MsgID] = pi
}

// RegisterMsgHandle attaches a handler and its layer to a record name. If the record has
// not been described yet a partial entry is created and completed by RegisterMsgInfo.
func RegisterMsgHandle(msgid string, handle any, msgLayerType MsgLayerType) {
	if len(msgid) == 0 {
		return
	}

	propLock.Lock()
	defer propLock.Unlock()
	if p, ok := propInfoMap[msgid]; ok {
		p.MsgHandle = handle
		p.MsgLayerType = msgLayerType
		return
	}
	propInfoMap[msgid] = &MsgProtoInfo{
		MsgID:        msgid,
		MsgHandle:    handle,
		MsgLayerType: msgLayerType,
	}
}

// GetProtoInfo returns the descriptor for a record name.
func GetProtoInfo(msgID string) (*MsgProtoInfo, bool) {
	propLock.RLock()
	defer propLock.RUnlock()
	protoInfo, ok := propInfoMap[msgID]
	return protoInfo, ok
}

// CreateMsg returns an empty record for msgID.
func CreateMsg(msgID string) (Record, error) {
	info, ok := GetProtoInfo(msgID)
	if !ok || info.New == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecord, msgID)
	}
	return info.New(), nil
}

// ContainsMsg reports whether msgID has a complete descriptor.
func ContainsMsg(msgID string) bool {
	info, ok := GetProtoInfo(msgID)
	return ok && info.New != nil
}

// GetAllMsgList returns the sorted names of every record accepted by checkFunc.
func GetAllMsgList(checkFunc func(protoInfo *MsgProtoInfo) bool) []string {
	propLock.RLock()
	msgList := make([]string, 0, len(propInfoMap))
	for msgID, protoInfo := range propInfoMap {
		if checkFunc(protoInfo) {
			msgList = append(msgList, msgID)
		}
	}
	propLock.RUnlock()
	sort.Strings(msgList)
	return msgList
}
