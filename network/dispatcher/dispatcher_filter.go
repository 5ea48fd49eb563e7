package dispatcher

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/message"
)

var (
	// ErrRecordFiltered is returned for records blocked by the record filter.
	ErrRecordFiltered = errors.New("record is disabled on this server")
	// ErrWrongDirection is returned for server-only records sent by a client.
	ErrWrongDirection = errors.New("record may not be sent by a client")
)

// DispatcherFilterHandleFunc is the final handler of a filter chain.
type DispatcherFilterHandleFunc func(dd *DispatcherDelivery) error

// DispatcherFilter intercepts a record and either stops it or calls next.
type DispatcherFilter func(dd *DispatcherDelivery, next DispatcherFilterHandleFunc) error

// DispatcherFilterChain is the ordered processing pipeline for incoming records.
type DispatcherFilterChain []DispatcherFilter

// Handle executes the chain for one record, then f. If the chain is empty, f is called
// directly.
func (fc DispatcherFilterChain) Handle(dd *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	if len(fc) == 0 {
		return f(dd)
	}
	return fc[0](dd, func(dd *DispatcherDelivery) error {
		return fc[1:].Handle(dd, f)
	})
}

// reloadMsgFilterCfg replaces the filter map. The caller holds the write lock.
func (dp *Dispatcher) reloadMsgFilterCfg(cfg *MsgFilterPluginCfg) {
	newFilterMap := make(map[string]struct{}, len(cfg.MsgFilter))
	for _, msgName := range cfg.MsgFilter {
		newFilterMap[msgName] = struct{}{}
	}
	dp.msgFilterMap = newFilterMap
}

func (dp *Dispatcher) isFiltered(msgID string) bool {
	dp.lock.RLock()
	defer dp.lock.RUnlock()
	_, ok := dp.msgFilterMap[msgID]
	return ok
}

// msgFilter drops records named in the filter map and tells the client why.
func (dp *Dispatcher) msgFilter(d *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	msgID := d.ProtoInfo.GetMsgID()
	if !dp.isFiltered(msgID) {
		return f(d)
	}

	metrics.IncrCounterWithDimGroup(metrics.NameDispatchFilteredTotal, metrics.GroupNet, 1,
		metrics.Dimension{metrics.DimMsgID: msgID})
	log.Debug().Uint32("client_id", d.Session.ID()).Str("msgid", msgID).Msg("record filtered")
	d.Session.Send(&message.Error{Description: fmt.Sprintf("%s: %s", msgID, ErrRecordFiltered)})
	return nil
}

// directionFilter answers records a client may not originate with an Error.
func directionFilter(d *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	if d.ProtoInfo.IsCS() {
		return f(d)
	}
	msgID := d.ProtoInfo.GetMsgID()
	d.Session.Send(&message.Error{Description: fmt.Sprintf("%s: %s", msgID, ErrWrongDirection)})
	return fmt.Errorf("%w: %s", ErrWrongDirection, msgID)
}
