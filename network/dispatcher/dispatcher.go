// Package dispatcher routes decoded client records to the application layers. Every record
// passes a chain of filters (record filter, direction check, rate limiting) before the
// layer named in its descriptor handles it.
package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/handler"
	"github.com/linchenxuan/lobbyd/network/message"
)

// ErrNoReceiver is returned for records whose layer has no registered receiver.
var ErrNoReceiver = errors.New("no message layer receiver")

// DispatcherDelivery carries one record through the dispatcher pipeline.
type DispatcherDelivery struct {
	Session   handler.Session       // The session the record arrived on.
	Record    message.Record        // The decoded record.
	ProtoInfo *message.MsgProtoInfo // Descriptor looked up from the record registry.
}

var _ handler.Delivery = (*DispatcherDelivery)(nil)

// GetProtoInfo returns the record descriptor.
func (dd *DispatcherDelivery) GetProtoInfo() *message.MsgProtoInfo {
	return dd.ProtoInfo
}

// GetRecord returns the decoded record.
func (dd *DispatcherDelivery) GetRecord() message.Record {
	return dd.Record
}

// GetSession returns the originating session.
func (dd *DispatcherDelivery) GetSession() handler.Session {
	return dd.Session
}

// MsgFilterPluginCfg lists record names the dispatcher refuses.
type MsgFilterPluginCfg struct {
	// MsgFilter is a list of record names that are answered with an Error and dropped.
	MsgFilter []string `mapstructure:"msgFilter"`
}

// GetName returns the configuration key for the record filter settings.
func (c *MsgFilterPluginCfg) GetName() string {
	return "msg_filter"
}

// Validate rejects names that are not in the record catalogue.
func (c *MsgFilterPluginCfg) Validate() error {
	for _, name := range c.MsgFilter {
		if !message.ContainsMsg(name) {
			return fmt.Errorf("msgFilter: %w: %q", message.ErrUnknownRecord, name)
		}
	}
	return nil
}

// DispatcherConfig holds all configurable parameters for the Dispatcher.
type DispatcherConfig struct {
	// RecvRateLimit is the maximum number of records dispatched per second across all
	// sessions. This uses a token bucket algorithm.
	RecvRateLimit int `mapstructure:"recvRateLimit"`
	// TokenBurst defines the burst capacity of the token bucket.
	TokenBurst int `mapstructure:"tokenBurst"`
	// MsgFilter holds the record filter settings.
	MsgFilter MsgFilterPluginCfg `mapstructure:",squash"`
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() *DispatcherConfig {
	return &DispatcherConfig{
		RecvRateLimit: 10000,
		TokenBurst:    1000,
	}
}

// GetName returns the configuration key for the dispatcher settings.
func (c *DispatcherConfig) GetName() string {
	return "dispatcher"
}

// Validate checks if the dispatcher configuration parameters are within acceptable ranges.
func (c *DispatcherConfig) Validate() error {
	if c.RecvRateLimit <= 0 {
		return fmt.Errorf("RecvRateLimit must be positive")
	}
	if c.TokenBurst <= 0 {
		return fmt.Errorf("TokenBurst must be positive")
	}
	if c.RecvRateLimit > 1000000 {
		return fmt.Errorf("RecvRateLimit cannot exceed 1,000,000 records per second")
	}
	if c.TokenBurst > c.RecvRateLimit*10 {
		return fmt.Errorf("TokenBurst cannot exceed 10 times RecvRateLimit")
	}
	return c.MsgFilter.Validate()
}

// Dispatcher is the central record processing hub. It resolves the descriptor of each
// record, runs the filter chain and hands the record to the receiver of its layer.
// The filter map and the limiter can be reloaded while records are dispatched.
type Dispatcher struct {
	msglayers    map[message.MsgLayerType]handler.MsgLayerReceiver
	recvLimiter  *DispatcherRecvLimiter
	filters      DispatcherFilterChain
	msgFilterMap map[string]struct{}

	config *DispatcherConfig
	lock   sync.RWMutex
}

// NewDispatcher creates a dispatcher. A nil cfg selects DefaultConfig.
func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher configuration: %w", err)
	}

	d := &Dispatcher{
		msglayers:   make(map[message.MsgLayerType]handler.MsgLayerReceiver),
		recvLimiter: NewTokenRecvLimiter(cfg.RecvRateLimit, cfg.TokenBurst),
		config:      cfg,
	}

	d.reloadMsgFilterCfg(&cfg.MsgFilter)

	// The filter chain is processed in the order filters are added.
	d.filters = append(d.filters, d.msgFilter)
	d.filters = append(d.filters, directionFilter)
	d.filters = append(d.filters, d.recvLimiter.recvLimiterFilter)

	return d, nil
}

// RegisterMsglayer registers the receiver for one layer type. Not safe for concurrent
// calls; register every layer before the transports start.
func (d *Dispatcher) RegisterMsglayer(t message.MsgLayerType, m handler.MsgLayerReceiver) error {
	if m == nil {
		return errors.New("RegisterMsglayer: receiver is nil")
	}
	if t <= message.MsgLayerType_None || t >= message.MsgLayerType_Max {
		return errors.New("RegisterMsglayer: invalid message layer type")
	}

	if _, ok := d.msglayers[t]; ok {
		return errors.New("RegisterMsglayer: a receiver for this layer type is already registered")
	}
	d.msglayers[t] = m
	return nil
}

// Config returns the configuration in use.
func (d *Dispatcher) Config() *DispatcherConfig {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.config
}

// Reload swaps in a new configuration: the record filter and the rate limiter change for
// every record dispatched afterwards.
func (d *Dispatcher) Reload(cfg *DispatcherConfig) error {
	if cfg == nil {
		return errors.New("dispatcher reload: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid dispatcher configuration: %w", err)
	}

	d.lock.Lock()
	d.reloadMsgFilterCfg(&cfg.MsgFilter)
	d.config = cfg
	d.lock.Unlock()

	d.recvLimiter.Reload(cfg.RecvRateLimit, cfg.TokenBurst)
	return nil
}

// OnRecvRecord dispatches one record received on s. Errors returned by the filters or the
// layer are reported to the caller; replies to the client are the layers' business.
func (d *Dispatcher) OnRecvRecord(s handler.Session, rec message.Record) error {
	if s == nil || rec == nil {
		return errors.New("dispatcher: nil session or record")
	}
	msgID := rec.MsgID()
	pi, ok := message.GetProtoInfo(msgID)
	if !ok {
		return fmt.Errorf("dispatcher: %w: %q", message.ErrUnknownRecord, msgID)
	}

	dd := &DispatcherDelivery{Session: s, Record: rec, ProtoInfo: pi}
	dim := metrics.Dimension{metrics.DimMsgID: msgID}
	start := time.Now()
	err := d.filters.Handle(dd, d.handleTransportMsgImpl)
	metrics.RecordStopwatchWithDimGroup(metrics.NameDispatchDurationMS, metrics.GroupNet, start, dim)
	if err != nil {
		metrics.IncrCounterWithDimGroup(metrics.NameDispatchErrorTotal, metrics.GroupNet, 1, dim)
	}
	return err
}

// handleTransportMsgImpl is the final step of the filter chain.
func (d *Dispatcher) handleTransportMsgImpl(dd *DispatcherDelivery) error {
	receiver := d.chooseMsgLayerReceiver(dd)
	if receiver == nil {
		return fmt.Errorf("%w for record %q and layer type %v",
			ErrNoReceiver, dd.GetProtoInfo().GetMsgID(), dd.GetProtoInfo().MsgLayerType)
	}

	return receiver.OnRecvDispatcherPkg(dd)
}

// chooseMsgLayerReceiver selects the receiver named by the record descriptor.
func (d *Dispatcher) chooseMsgLayerReceiver(dd *DispatcherDelivery) handler.MsgLayerReceiver {
	if dd.GetProtoInfo() == nil {
		return nil
	}
	return d.msglayers[dd.GetProtoInfo().MsgLayerType]
}
