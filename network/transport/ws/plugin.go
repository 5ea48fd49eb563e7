package ws

import (
	"github.com/linchenxuan/lobbyd/network/transport"
	"github.com/linchenxuan/lobbyd/plugin"
)

// NewFactory returns the plugin factory registered under transport/ws.
func NewFactory() plugin.Factory {
	return transport.NewFactory(_name, func(cfg *WSTransportCfg) (transport.Plugin, error) {
		t, err := NewWSTransport(cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}
