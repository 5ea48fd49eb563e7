// Package transport defines the contract between listeners that produce client byte streams
// (TCP, KCP, WebSocket) and the session layer that consumes them.
package transport

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
)

// Transport is a listener of client connections.
type Transport interface {
	// Start binds the listener and begins accepting in the background. A bind failure is
	// returned synchronously.
	Start(opt TransportOption) error

	// StopRecv stops accepting new connections; established connections stay open.
	StopRecv() error

	// Stop stops accepting and cancels the context handed to every connection handler.
	Stop() error

	// Addr returns the bound address, nil before Start.
	Addr() net.Addr
}

// Rebinder is implemented by transports whose listen address may be changed before Start.
type Rebinder interface {
	SetAddr(addr string)
}

// Conn is one ordered, reliable client byte stream.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// ConnHandler consumes a connection. ServeConn blocks until the connection is finished and
// must close it; ctx is cancelled when the transport stops.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn Conn)
}

// ConnHandlerFunc adapts a function to ConnHandler.
type ConnHandlerFunc func(ctx context.Context, conn Conn)

// ServeConn calls f.
func (f ConnHandlerFunc) ServeConn(ctx context.Context, conn Conn) {
	f(ctx, conn)
}

// Serve runs h for conn on its own goroutine tracked by wg.
func Serve(ctx context.Context, wg *sync.WaitGroup, h ConnHandler, name string, conn Conn) {
	metrics.IncrCounterWithDimGroup(metrics.NameTransportAcceptTotal, metrics.GroupNet, 1,
		metrics.Dimension{metrics.DimTransport: name})
	log.Debug().Str("transport", name).Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeConn(ctx, conn)
	}()
}

// Started records a successful bind.
func Started(name string, addr net.Addr) {
	metrics.IncrCounterWithDimGroup(metrics.NameTransportStartTotal, metrics.GroupNet, 1,
		metrics.Dimension{metrics.DimTransport: name})
	log.Info().Str("transport", name).Str("address", addr.String()).Msg("transport started and listening")
}
