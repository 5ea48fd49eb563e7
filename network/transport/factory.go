package transport

import (
	"fmt"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/plugin"
)

// Plugin is a transport built by the plugin manager.
type Plugin interface {
	plugin.Plugin
	Transport
}

type factory[C any] struct {
	name  string
	build func(cfg *C) (Plugin, error)
}

// NewFactory returns the plugin factory of one transport implementation. C is the
// implementation's config struct, decoded by the plugin manager before build is called.
func NewFactory[C any](name string, build func(cfg *C) (Plugin, error)) plugin.Factory {
	return &factory[C]{name: name, build: build}
}

func (f *factory[C]) Type() plugin.Type {
	return plugin.Transport
}

func (f *factory[C]) Name() string {
	return f.name
}

func (f *factory[C]) ConfigType() any {
	return new(C)
}

func (f *factory[C]) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*C)
	if !ok {
		return nil, fmt.Errorf("%s setup failed: invalid config type %T", f.name, cfgAny)
	}
	t, err := f.build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s setup failed: %w", f.name, err)
	}
	return t, nil
}

// Destroy stops the transport and cancels its connections.
func (f *factory[C]) Destroy(p plugin.Plugin) {
	t, ok := p.(Transport)
	if !ok {
		return
	}
	if err := t.Stop(); err != nil {
		log.Warn().Str("transport", f.name).Err(err).Msg("transport stop failed")
	}
}
