package tcp

import (
	"github.com/linchenxuan/lobbyd/network/transport"
	"github.com/linchenxuan/lobbyd/plugin"
)

// NewFactory returns the plugin factory registered under transport/tcp.
func NewFactory() plugin.Factory {
	return transport.NewFactory(_name, func(cfg *TCPTransportCfg) (transport.Plugin, error) {
		t, err := NewTCPTransport(cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}
