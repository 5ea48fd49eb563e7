package kcp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/linchenxuan/lobbyd/network/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kcpgo "github.com/xtaci/kcp-go/v5"
)

func TestKCPTransportEcho(t *testing.T) {
	tp, err := NewKCPTransport(&KCPTransportCfg{Addr: "127.0.0.1:0", NoDelay: 1, IntervalMS: 10})
	require.NoError(t, err)
	require.NoError(t, tp.Start(transport.TransportOption{Handler: transport.ConnHandlerFunc(
		func(ctx context.Context, c transport.Conn) {
			go func() {
				<-ctx.Done()
				_ = c.Close()
			}()
			_, _ = io.Copy(c, c)
		})}))
	defer tp.Stop()

	c, err := kcpgo.DialWithOptions(tp.Addr().String(), nil, 0, 0)
	require.NoError(t, err)
	defer c.Close()
	c.SetStreamMode(true)

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, 5)
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestKCPConfig(t *testing.T) {
	cfg := &KCPTransportCfg{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":5556", cfg.Addr)
	assert.Equal(t, 1400, cfg.MTU)
	assert.Error(t, (&KCPTransportCfg{MTU: 10}).Validate())
	assert.Error(t, (&KCPTransportCfg{SndWnd: -1}).Validate())
}
