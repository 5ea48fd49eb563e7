package kcp

import (
	"github.com/linchenxuan/lobbyd/network/transport"
	"github.com/linchenxuan/lobbyd/plugin"
)

// NewFactory returns the plugin factory registered under transport/kcp.
func NewFactory() plugin.Factory {
	return transport.NewFactory(_name, func(cfg *KCPTransportCfg) (transport.Plugin, error) {
		t, err := NewKCPTransport(cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}
