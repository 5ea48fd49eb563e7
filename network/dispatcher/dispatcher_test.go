package dispatcher

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/linchenxuan/lobbyd/network/handler"
	"github.com/linchenxuan/lobbyd/network/message"
)

type fakeSession struct {
	mu   sync.Mutex
	id   uint32
	sent []message.Record
}

func (s *fakeSession) ID() uint32              { return s.id }
func (s *fakeSession) Username() string        { return "" }
func (s *fakeSession) SetUsername(string)      {}
func (s *fakeSession) LobbyID() (uint64, bool) { return 0, false }
func (s *fakeSession) SetLobby(uint64)         {}
func (s *fakeSession) ClearLobby(uint64) bool  { return false }
func (s *fakeSession) Close(error)             {}
func (s *fakeSession) Send(rec message.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, rec)
	return true
}

func (s *fakeSession) records() []message.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Record(nil), s.sent...)
}

type testMsgLayerReceiver struct {
	t      *testing.T
	err    error
	called int
	last   handler.Delivery
}

var _ handler.MsgLayerReceiver = (*testMsgLayerReceiver)(nil)

func (r *testMsgLayerReceiver) OnRecvDispatcherPkg(delivery handler.Delivery) error {
	r.called++
	r.last = delivery
	if r.err != nil {
		return r.err
	}
	if delivery.GetProtoInfo() == nil {
		r.t.Fatalf("expected proto info")
	}
	if delivery.GetRecord().MsgID() != delivery.GetProtoInfo().GetMsgID() {
		r.t.Fatalf("msg id mismatch: record=%q proto=%q",
			delivery.GetRecord().MsgID(), delivery.GetProtoInfo().GetMsgID())
	}
	return nil
}

// testRecord is a client record registered only for these tests.
type testRecord struct{ name string }

func (r *testRecord) MsgID() string { return r.name }

func registerTestMsgProto(t *testing.T, name string, dir message.Direction, layer message.MsgLayerType) *testRecord {
	t.Helper()
	message.RegisterMsgInfo(&message.MsgProtoInfo{
		MsgID: name,
		Dir:   dir,
		New:   func() message.Record { return &testRecord{name: name} },
	})
	message.RegisterMsgHandle(name, nil, layer)
	return &testRecord{name: name}
}

func newTestDispatcher(t *testing.T, cfg *DispatcherConfig) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(cfg)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	return d
}

func TestDispatcherRoutesByLayer(t *testing.T) {
	rec := registerTestMsgProto(t, "DispatcherTestLobbyRecord", message.DirCS, message.MsgLayerType_Lobby)
	d := newTestDispatcher(t, nil)

	sessionLayer := &testMsgLayerReceiver{t: t}
	lobbyLayer := &testMsgLayerReceiver{t: t}
	if err := d.RegisterMsglayer(message.MsgLayerType_Session, sessionLayer); err != nil {
		t.Fatalf("RegisterMsglayer failed: %v", err)
	}
	if err := d.RegisterMsglayer(message.MsgLayerType_Lobby, lobbyLayer); err != nil {
		t.Fatalf("RegisterMsglayer failed: %v", err)
	}

	s := &fakeSession{id: 4}
	if err := d.OnRecvRecord(s, rec); err != nil {
		t.Fatalf("OnRecvRecord failed: %v", err)
	}
	if lobbyLayer.called != 1 || sessionLayer.called != 0 {
		t.Fatalf("routing mismatch: lobby=%d session=%d", lobbyLayer.called, sessionLayer.called)
	}
	if lobbyLayer.last.GetSession().ID() != 4 {
		t.Fatalf("delivery carries the wrong session")
	}
	if lobbyLayer.last.GetRecord() != rec {
		t.Fatalf("delivery carries the wrong record")
	}
}

func TestDispatcherHandlerError(t *testing.T) {
	rec := registerTestMsgProto(t, "DispatcherTestErrRecord", message.DirBoth, message.MsgLayerType_Session)
	d := newTestDispatcher(t, nil)

	wantErr := errors.New("layer failed")
	if err := d.RegisterMsglayer(message.MsgLayerType_Session, &testMsgLayerReceiver{t: t, err: wantErr}); err != nil {
		t.Fatalf("RegisterMsglayer failed: %v", err)
	}
	if err := d.OnRecvRecord(&fakeSession{}, rec); !errors.Is(err, wantErr) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatcherNoReceiver(t *testing.T) {
	rec := registerTestMsgProto(t, "DispatcherTestOrphanRecord", message.DirCS, message.MsgLayerType_Lobby)
	d := newTestDispatcher(t, nil)

	if err := d.OnRecvRecord(&fakeSession{}, rec); !errors.Is(err, ErrNoReceiver) {
		t.Fatalf("expected ErrNoReceiver, got %v", err)
	}
}

func TestDispatcherUnknownRecord(t *testing.T) {
	d := newTestDispatcher(t, nil)
	err := d.OnRecvRecord(&fakeSession{}, &testRecord{name: "DispatcherTestNeverRegistered"})
	if !errors.Is(err, message.ErrUnknownRecord) {
		t.Fatalf("expected ErrUnknownRecord, got %v", err)
	}
}

func TestDispatcherNilInput(t *testing.T) {
	d := newTestDispatcher(t, nil)
	testCases := []struct {
		name string
		s    handler.Session
		rec  message.Record
	}{
		{name: "nil session", rec: &message.LeaveLobby{}},
		{name: "nil record", s: &fakeSession{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := d.OnRecvRecord(tc.s, tc.rec); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDispatcherWrongDirection(t *testing.T) {
	d := newTestDispatcher(t, nil)
	layer := &testMsgLayerReceiver{t: t}
	if err := d.RegisterMsglayer(message.MsgLayerType_Session, layer); err != nil {
		t.Fatalf("RegisterMsglayer failed: %v", err)
	}

	s := &fakeSession{}
	err := d.OnRecvRecord(s, &message.LobbyInfo{})
	if !errors.Is(err, ErrWrongDirection) {
		t.Fatalf("expected ErrWrongDirection, got %v", err)
	}
	if layer.called != 0 {
		t.Fatalf("server record reached a layer")
	}
	sent := s.records()
	if len(sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(sent))
	}
	e, ok := sent[0].(*message.Error)
	if !ok || !strings.Contains(e.Description, message.NameLobbyInfo) {
		t.Fatalf("unexpected reply: %#v", sent[0])
	}
}

func TestDispatcherMsgFilterAndReload(t *testing.T) {
	rec := registerTestMsgProto(t, "DispatcherTestFilteredRecord", message.DirCS, message.MsgLayerType_Session)
	cfg := DefaultConfig()
	cfg.MsgFilter.MsgFilter = []string{rec.MsgID()}
	d := newTestDispatcher(t, cfg)

	layer := &testMsgLayerReceiver{t: t}
	if err := d.RegisterMsglayer(message.MsgLayerType_Session, layer); err != nil {
		t.Fatalf("RegisterMsglayer failed: %v", err)
	}

	s := &fakeSession{}
	if err := d.OnRecvRecord(s, rec); err != nil {
		t.Fatalf("filtered record should not fail: %v", err)
	}
	if layer.called != 0 {
		t.Fatalf("filtered record reached the layer")
	}
	if sent := s.records(); len(sent) != 1 {
		t.Fatalf("expected an Error reply, got %v", sent)
	}

	newCfg := DefaultConfig()
	newCfg.RecvRateLimit = 500
	newCfg.TokenBurst = 50
	if err := d.Reload(newCfg); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if err := d.OnRecvRecord(s, rec); err != nil {
		t.Fatalf("OnRecvRecord failed: %v", err)
	}
	if layer.called != 1 {
		t.Fatalf("record should pass once the filter is cleared")
	}
	if d.recvLimiter.Limit() != 500 {
		t.Fatalf("limiter not reloaded: %v", d.recvLimiter.Limit())
	}
	if d.Config() != newCfg {
		t.Fatalf("config not swapped")
	}

	if err := d.Reload(&DispatcherConfig{}); err == nil {
		t.Fatalf("invalid reload should fail")
	}
}

func TestDispatcherRegisterMsglayer(t *testing.T) {
	d := newTestDispatcher(t, nil)
	r := &testMsgLayerReceiver{t: t}

	if err := d.RegisterMsglayer(message.MsgLayerType_Session, nil); err == nil {
		t.Fatalf("nil receiver should fail")
	}
	if err := d.RegisterMsglayer(message.MsgLayerType_None, r); err == nil {
		t.Fatalf("invalid layer should fail")
	}
	if err := d.RegisterMsglayer(message.MsgLayerType_Max, r); err == nil {
		t.Fatalf("invalid layer should fail")
	}
	if err := d.RegisterMsglayer(message.MsgLayerType_Session, r); err != nil {
		t.Fatalf("RegisterMsglayer failed: %v", err)
	}
	if err := d.RegisterMsglayer(message.MsgLayerType_Session, r); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestDispatcherConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     DispatcherConfig
		wantErr bool
	}{
		{name: "defaults", cfg: *DefaultConfig()},
		{name: "zero rate", cfg: DispatcherConfig{TokenBurst: 1}, wantErr: true},
		{name: "zero burst", cfg: DispatcherConfig{RecvRateLimit: 1}, wantErr: true},
		{name: "rate too high", cfg: DispatcherConfig{RecvRateLimit: 2000000, TokenBurst: 1}, wantErr: true},
		{name: "burst too high", cfg: DispatcherConfig{RecvRateLimit: 1, TokenBurst: 11}, wantErr: true},
		{name: "unknown filter", cfg: DispatcherConfig{RecvRateLimit: 10, TokenBurst: 10,
			MsgFilter: MsgFilterPluginCfg{MsgFilter: []string{"NoSuchRecord"}}}, wantErr: true},
		{name: "known filter", cfg: DispatcherConfig{RecvRateLimit: 10, TokenBurst: 10,
			MsgFilter: MsgFilterPluginCfg{MsgFilter: []string{message.NameGameData}}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDispatcherFilterChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) DispatcherFilter {
		return func(dd *DispatcherDelivery, next DispatcherFilterHandleFunc) error {
			order = append(order, name)
			return next(dd)
		}
	}
	chain := DispatcherFilterChain{mk("a"), mk("b")}
	err := chain.Handle(&DispatcherDelivery{}, func(*DispatcherDelivery) error {
		order = append(order, "final")
		return nil
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if strings.Join(order, ",") != "a,b,final" {
		t.Fatalf("unexpected order: %v", order)
	}
}
