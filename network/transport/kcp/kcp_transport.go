// Package kcp implements the client transport over KCP, a reliable ordered stream on UDP.
package kcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/transport"
	kcpgo "github.com/xtaci/kcp-go/v5"
)

const _name = "kcp"

// KCPTransportCfg configures the listener and every accepted KCP session.
type KCPTransportCfg struct {
	Tag          string `mapstructure:"tag"`
	Addr         string `mapstructure:"addr"`
	NoDelay      int    `mapstructure:"noDelay"`      // 1 enables nodelay mode.
	IntervalMS   int    `mapstructure:"intervalMS"`   // Internal update interval.
	Resend       int    `mapstructure:"resend"`       // Fast retransmit trigger; 0 disables.
	NoCongestion int    `mapstructure:"noCongestion"` // 1 disables congestion control.
	SndWnd       int    `mapstructure:"sndWnd"`
	RcvWnd       int    `mapstructure:"rcvWnd"`
	MTU          int    `mapstructure:"mtu"`
	ACKNoDelay   bool   `mapstructure:"ackNoDelay"`
}

// GetName returns the configuration key.
func (c *KCPTransportCfg) GetName() string {
	return "kcp"
}

// Validate fills defaults and checks the parameters.
func (c *KCPTransportCfg) Validate() error {
	if c.Addr == "" {
		c.Addr = ":5556"
	}
	if c.IntervalMS == 0 {
		c.IntervalMS = 20
	}
	if c.SndWnd == 0 {
		c.SndWnd = 128
	}
	if c.RcvWnd == 0 {
		c.RcvWnd = 128
	}
	if c.MTU == 0 {
		c.MTU = 1400
	}
	if c.IntervalMS < 0 || c.SndWnd < 0 || c.RcvWnd < 0 {
		return errors.New("intervalMS and window sizes must be positive")
	}
	if c.MTU < 50 || c.MTU > 1500 {
		return fmt.Errorf("mtu %d out of range [50,1500]", c.MTU)
	}
	return nil
}

// KCPTransport accepts KCP sessions in stream mode and hands them to the connection handler.
type KCPTransport struct {
	cfg     *KCPTransportCfg
	handler transport.ConnHandler

	lock         sync.Mutex
	listener     *kcpgo.Listener
	acceptCancel context.CancelFunc
	connCancel   context.CancelFunc
	acceptDone   chan struct{}
	conns        sync.WaitGroup
}

var _ transport.Transport = (*KCPTransport)(nil)

// NewKCPTransport creates a stopped transport.
func NewKCPTransport(cfg *KCPTransportCfg) (*KCPTransport, error) {
	if cfg == nil {
		cfg = &KCPTransportCfg{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid KCPTransportCfg: %w", err)
	}
	return &KCPTransport{cfg: cfg}, nil
}

// FactoryName implements plugin.Plugin.
func (t *KCPTransport) FactoryName() string {
	return _name
}

// SetAddr changes the listen address used by the next Start.
func (t *KCPTransport) SetAddr(addr string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.cfg.Addr = addr
}

// Addr returns the bound UDP address.
func (t *KCPTransport) Addr() net.Addr {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Start binds the UDP socket and launches the accept loop.
func (t *KCPTransport) Start(opt transport.TransportOption) error {
	if err := opt.Validate(); err != nil {
		return err
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if t.listener != nil {
		return errors.New("kcp transport already started")
	}

	listener, err := kcpgo.ListenWithOptions(t.cfg.Addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to listen on KCP address '%s': %w", t.cfg.Addr, err)
	}

	t.handler = opt.Handler
	t.listener = listener
	connCtx, connCancel := context.WithCancel(context.Background())
	acceptCtx, acceptCancel := context.WithCancel(connCtx)
	t.connCancel, t.acceptCancel = connCancel, acceptCancel
	t.acceptDone = make(chan struct{})

	go t.serve(acceptCtx, connCtx, listener, t.acceptDone)
	transport.Started(_name, listener.Addr())
	return nil
}

// StopRecv closes the listener. Sessions already accepted keep running on the shared socket
// until they are closed.
func (t *KCPTransport) StopRecv() error {
	t.lock.Lock()
	cancel, done, l := t.acceptCancel, t.acceptDone, t.listener
	t.lock.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	// AcceptKCP blocks until the listener closes.
	err := l.Close()
	<-done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Stop closes the listener and every session.
func (t *KCPTransport) Stop() error {
	if err := t.StopRecv(); err != nil {
		log.Error().Err(err).Str("transport", _name).Msg("close kcp listener")
	}
	t.lock.Lock()
	cancel := t.connCancel
	t.lock.Unlock()
	if cancel != nil {
		cancel()
	}
	t.conns.Wait()
	return nil
}

func (t *KCPTransport) serve(ctx, connCtx context.Context, listener *kcpgo.Listener, done chan struct{}) {
	defer close(done)

	for {
		sess, err := listener.AcceptKCP()
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("transport", _name).Msg("failed to accept KCP session")
			}
			return
		}

		sess.SetStreamMode(true)
		sess.SetNoDelay(t.cfg.NoDelay, t.cfg.IntervalMS, t.cfg.Resend, t.cfg.NoCongestion)
		sess.SetWindowSize(t.cfg.SndWnd, t.cfg.RcvWnd)
		sess.SetMtu(t.cfg.MTU)
		sess.SetACKNoDelay(t.cfg.ACKNoDelay)
		transport.Serve(connCtx, &t.conns, t.handler, _name, sess)
	}
}
