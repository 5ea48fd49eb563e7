package prometheus

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/plugin"
)

type factory struct{}

var _ plugin.Factory = (*factory)(nil)

// NewFactory returns the metrics/prometheus plugin factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

// Type returns the plugin type.
func (f *factory) Type() plugin.Type {
	return plugin.Metrics
}

// Name returns the name of the plugin implementation.
func (f *factory) Name() string {
	return "prometheus"
}

// ConfigType returns the config populated by the plugin manager.
func (f *factory) ConfigType() any {
	return &PrometheusReporterConfig{}
}

// Setup starts a reporter and registers it with the metrics package.
func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*PrometheusReporterConfig)
	if !ok {
		return nil, errors.New("prometheus setup failed: invalid config type")
	}

	p, err := NewPrometheusReporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("prometheus setup failed: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("prometheus setup failed: %w", err)
	}
	metrics.AddReporter(p)
	return p, nil
}

// Destroy unregisters and stops the reporter.
func (f *factory) Destroy(p plugin.Plugin) {
	if prom, ok := p.(*PrometheusReporter); ok && prom != nil {
		metrics.RemoveReporter(prom)
		prom.Stop()
	}
}
