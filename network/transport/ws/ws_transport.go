// Package ws implements the client transport over WebSocket. Every text or binary message is
// one chunk of the client's record byte stream.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/transport"
)

const (
	_name            = "ws"
	_shutdownTimeout = 5 * time.Second
)

// WSTransportCfg configures the HTTP listener and the upgrader.
type WSTransportCfg struct {
	Tag             string   `mapstructure:"tag"`
	Addr            string   `mapstructure:"addr"`
	Path            string   `mapstructure:"path"`
	HealthPath      string   `mapstructure:"healthPath"`
	ReadBufferSize  int      `mapstructure:"readBufferSize"`
	WriteBufferSize int      `mapstructure:"writeBufferSize"`
	MaxMessageSize  int64    `mapstructure:"maxMessageSize"`
	AllowedOrigins  []string `mapstructure:"allowedOrigins"` // Empty accepts any origin.
}

// GetName returns the configuration key.
func (c *WSTransportCfg) GetName() string {
	return "ws"
}

// Validate fills defaults and checks the parameters.
func (c *WSTransportCfg) Validate() error {
	if c.Addr == "" {
		c.Addr = ":5557"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/healthz"
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = 4096
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 || c.MaxMessageSize < 0 {
		return errors.New("buffer and message sizes must be positive")
	}
	if c.Path == c.HealthPath {
		return errors.New("path and healthPath must differ")
	}
	return nil
}

// WSTransport serves WebSocket upgrades on a chi router.
type WSTransport struct {
	cfg      *WSTransportCfg
	handler  transport.ConnHandler
	upgrader websocket.Upgrader

	lock       sync.Mutex
	svr        *http.Server
	addr       net.Addr
	connCtx    context.Context
	connCancel context.CancelFunc
	serveDone  chan struct{}
	conns      sync.WaitGroup
}

var _ transport.Transport = (*WSTransport)(nil)

// NewWSTransport creates a stopped transport.
func NewWSTransport(cfg *WSTransportCfg) (*WSTransport, error) {
	if cfg == nil {
		cfg = &WSTransportCfg{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid WSTransportCfg: %w", err)
	}
	t := &WSTransport{cfg: cfg}
	t.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     t.checkOrigin,
	}
	return t, nil
}

// FactoryName implements plugin.Plugin.
func (t *WSTransport) FactoryName() string {
	return _name
}

// SetAddr changes the listen address used by the next Start.
func (t *WSTransport) SetAddr(addr string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.cfg.Addr = addr
}

// Addr returns the bound address.
func (t *WSTransport) Addr() net.Addr {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.addr
}

func (t *WSTransport) checkOrigin(r *http.Request) bool {
	if len(t.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(t.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// Router returns the HTTP routes served by the transport.
func (t *WSTransport) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(t.cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(t.cfg.Path, t.upgrade)
	return r
}

func (t *WSTransport) upgrade(w http.ResponseWriter, r *http.Request) {
	t.lock.Lock()
	ctx, h := t.connCtx, t.handler
	t.lock.Unlock()
	if ctx == nil || ctx.Err() != nil {
		http.Error(w, "transport stopped", http.StatusServiceUnavailable)
		return
	}

	c, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	c.SetReadLimit(t.cfg.MaxMessageSize)
	transport.Serve(ctx, &t.conns, h, _name, newConn(c))
}

// Start binds the HTTP listener and serves upgrades in the background.
func (t *WSTransport) Start(opt transport.TransportOption) error {
	if err := opt.Validate(); err != nil {
		return err
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if t.svr != nil {
		return errors.New("ws transport already started")
	}

	l, err := net.Listen("tcp", t.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on WS address '%s': %w", t.cfg.Addr, err)
	}

	t.handler = opt.Handler
	t.addr = l.Addr()
	t.connCtx, t.connCancel = context.WithCancel(context.Background())
	t.svr = &http.Server{Handler: t.Router(), ReadHeaderTimeout: 10 * time.Second}
	t.serveDone = make(chan struct{})

	go func(svr *http.Server, done chan struct{}) {
		defer close(done)
		if err := svr.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("transport", _name).Msg("websocket http server")
		}
	}(t.svr, t.serveDone)
	transport.Started(_name, l.Addr())
	return nil
}

// StopRecv shuts the HTTP server down. Upgraded connections are hijacked and unaffected.
func (t *WSTransport) StopRecv() error {
	t.lock.Lock()
	svr, done := t.svr, t.serveDone
	t.lock.Unlock()
	if svr == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), _shutdownTimeout)
	defer cancel()
	err := svr.Shutdown(ctx)
	<-done
	return err
}

// Stop shuts the HTTP server down and cancels every connection.
func (t *WSTransport) Stop() error {
	err := t.StopRecv()
	t.lock.Lock()
	cancel := t.connCancel
	t.lock.Unlock()
	if cancel != nil {
		cancel()
	}
	t.conns.Wait()
	return err
}
