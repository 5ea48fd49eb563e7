// Package tcp implements the client transport over plain TCP.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/transport"
)

const _name = "tcp"

// TCPTransportCfg holds all configuration parameters for the TCPTransport.
type TCPTransportCfg struct {
	Tag              string `mapstructure:"tag"`              // A unique identifier for this transport instance.
	Addr             string `mapstructure:"addr"`             // Listen address, ":5555" by default.
	SocketBufferSize int    `mapstructure:"socketBufferSize"` // Kernel read/write buffer size; 0 keeps the OS default.
	KeepAliveSec     int    `mapstructure:"keepAliveSec"`     // TCP keep-alive period; 0 keeps the OS default.
	NoDelay          bool   `mapstructure:"noDelay"`          // Disables Nagle's algorithm.
}

// GetName returns the configuration key for TCPTransportCfg.
func (c *TCPTransportCfg) GetName() string {
	return "tcp"
}

// Validate fills defaults and checks the parameters.
func (c *TCPTransportCfg) Validate() error {
	if c.Addr == "" {
		c.Addr = ":5555"
	}
	if c.SocketBufferSize < 0 {
		return errors.New("socketBufferSize cannot be negative")
	}
	if c.KeepAliveSec < 0 {
		return errors.New("keepAliveSec cannot be negative")
	}
	return nil
}

// TCPTransport listens for TCP connections and hands each one to the connection handler.
type TCPTransport struct {
	cfg     *TCPTransportCfg
	handler transport.ConnHandler

	lock         sync.Mutex
	listener     *net.TCPListener
	acceptCancel context.CancelFunc
	connCancel   context.CancelFunc
	acceptDone   chan struct{}
	conns        sync.WaitGroup
}

var _ transport.Transport = (*TCPTransport)(nil)

// NewTCPTransport creates a new TCPTransport instance with the given configuration.
func NewTCPTransport(cfg *TCPTransportCfg) (*TCPTransport, error) {
	if cfg == nil {
		cfg = &TCPTransportCfg{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid TCPTransportCfg: %w", err)
	}
	return &TCPTransport{cfg: cfg}, nil
}

// FactoryName implements plugin.Plugin.
func (t *TCPTransport) FactoryName() string {
	return _name
}

// SetAddr changes the listen address used by the next Start.
func (t *TCPTransport) SetAddr(addr string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.cfg.Addr = addr
}

// Addr returns the bound address.
func (t *TCPTransport) Addr() net.Addr {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Start binds the listener and launches the accept loop.
func (t *TCPTransport) Start(opt transport.TransportOption) error {
	if err := opt.Validate(); err != nil {
		return err
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if t.listener != nil {
		return errors.New("tcp transport already started")
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", t.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to resolve TCP address '%s': %w", t.cfg.Addr, err)
	}
	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP address '%s': %w", t.cfg.Addr, err)
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

// StopRecv stops the accept loop and keeps established connections.
func (t *TCPTransport) StopRecv() error {
	t.lock.Lock()
	cancel, done := t.acceptCancel, t.acceptDone
	t.lock.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Stop stops the accept loop, cancels every connection and waits for their handlers.
func (t *TCPTransport) Stop() error {
	if err := t.StopRecv(); err != nil {
		return err
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

// serve is the accept loop. The one second deadline lets it observe ctx.
func (t *TCPTransport) serve(ctx, connCtx context.Context, listener *net.TCPListener, done chan struct{}) {
	defer close(done)
	defer func() { _ = listener.Close() }()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("transport", _name).Msg("accept loop stopped")
			return
		default:
		}

		_ = listener.SetDeadline(time.Now().Add(time.Second))
		conn, err := listener.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Error().Err(err).Str("transport", _name).Msg("failed to accept TCP connection")
			return
		}

		if err = t.tune(conn); err != nil {
			log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("failed to tune TCP connection")
			_ = conn.Close()
			continue
		}
		transport.Serve(connCtx, &t.conns, t.handler, _name, conn)
	}
}

func (t *TCPTransport) tune(conn *net.TCPConn) error {
	if t.cfg.SocketBufferSize > 0 {
		if err := conn.SetReadBuffer(t.cfg.SocketBufferSize); err != nil {
			return err
		}
		if err := conn.SetWriteBuffer(t.cfg.SocketBufferSize); err != nil {
			return err
		}
	}
	if t.cfg.KeepAliveSec > 0 {
		if err := conn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := conn.SetKeepAlivePeriod(time.Duration(t.cfg.KeepAliveSec) * time.Second); err != nil {
			return err
		}
	}
	return conn.SetNoDelay(t.cfg.NoDelay)
}
