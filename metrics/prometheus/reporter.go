// Package prometheus exports metrics records through a Prometheus registry, served over
// HTTP and optionally pushed to a push gateway.
package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	_namespace       = "lobbyd"
	_defaultChanSize = 65536
	_pushTimeout     = 5 * time.Second
)

// PrometheusReporterConfig configures the reporter.
type PrometheusReporterConfig struct {
	Tag             string            `mapstructure:"tag"`
	HTTPListenAddr  string            `mapstructure:"httpListenAddr"`
	MetricPath      string            `mapstructure:"metricPath"`
	HealthCheckPath string            `mapstructure:"healthCheckPath"`
	UsePush         bool              `mapstructure:"usePush"`
	PushAddr        string            `mapstructure:"pushAddr"`
	PushIntervalSec int               `mapstructure:"pushIntervalSec"`
	PushJobName     string            `mapstructure:"pushJobName"`
	ExtLabels       map[string]string `mapstructure:"extLabels"`
	ChanSize        int               `mapstructure:"chanSize"`
}

// GetName returns the configuration key.
func (c *PrometheusReporterConfig) GetName() string {
	return "prometheus"
}

// Validate fills defaults and checks the push settings.
func (c *PrometheusReporterConfig) Validate() error {
	if c.MetricPath == "" {
		c.MetricPath = "/metrics"
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/health"
	}
	if c.ChanSize <= 0 {
		c.ChanSize = _defaultChanSize
	}
	if c.UsePush {
		if c.PushAddr == "" || c.PushJobName == "" {
			return errors.New("pushAddr and pushJobName are required when usePush is set")
		}
		if c.PushIntervalSec <= 0 {
			return errors.New("pushIntervalSec must be positive when usePush is set")
		}
	}
	return nil
}

type vecKind int

const (
	_vecCounter vecKind = iota
	_vecGauge
	_vecHistogram
)

// vec is one Prometheus vector; its label names are fixed by the first record seen.
type vec struct {
	kind      vecKind
	labels    []string
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

func (v *vec) values(dims map[string]string) []string {
	out := make([]string, len(v.labels))
	for i, l := range v.labels {
		out[i] = dims[l]
	}
	return out
}

// PrometheusReporter implements metrics.Reporter.
type PrometheusReporter struct {
	cfg      *PrometheusReporterConfig
	reg      *prometheus.Registry
	factory  promauto.Factory
	records  chan metrics.Record
	vecs     map[string]*vec
	dropped  prometheus.Counter
	promSvr  *http.Server
	addr     net.Addr
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ metrics.Reporter = (*PrometheusReporter)(nil)

// NewPrometheusReporter creates a stopped reporter with its own registry.
func NewPrometheusReporter(cfg *PrometheusReporterConfig) (*PrometheusReporter, error) {
	if cfg == nil {
		cfg = &PrometheusReporterConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	ctx, cancel := context.WithCancel(context.Background())
	return &PrometheusReporter{
		cfg:     cfg,
		reg:     reg,
		factory: factory,
		records: make(chan metrics.Record, cfg.ChanSize),
		vecs:    map[string]*vec{},
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   _namespace,
			Name:        "metrics_dropped_total",
			Help:        "Metric records dropped because the reporter queue was full.",
			ConstLabels: cfg.ExtLabels,
		}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// FactoryName implements plugin.Plugin.
func (x *PrometheusReporter) FactoryName() string {
	return "prometheus"
}

// Registry returns the registry metrics are exported from.
func (x *PrometheusReporter) Registry() *prometheus.Registry {
	return x.reg
}

// Addr returns the HTTP listen address once started with an HTTP endpoint.
func (x *PrometheusReporter) Addr() net.Addr {
	return x.addr
}

// Report queues a record; it never blocks.
func (x *PrometheusReporter) Report(r metrics.Record) {
	select {
	case x.records <- *r.Clone():
	default:
		x.dropped.Inc()
	}
}

// Start launches the aggregation loop, the HTTP endpoint when an address is configured,
// and the pusher when enabled.
func (x *PrometheusReporter) Start() error {
	x.wg.Add(1)
	go x.aggregate()

	if x.cfg.HTTPListenAddr != "" {
		if err := x.startHTTPSvr(); err != nil {
			x.Stop()
			return err
		}
	}
	if x.cfg.UsePush {
		x.startPusher()
	}
	return nil
}

// Stop shuts down every goroutine and the HTTP endpoint.
func (x *PrometheusReporter) Stop() {
	x.stopOnce.Do(func() {
		x.cancel()
		if x.promSvr != nil {
			if err := x.promSvr.Close(); err != nil {
				log.Error().Err(err).Msg("stop prometheus http server")
			}
		}
		x.wg.Wait()
	})
}

func (x *PrometheusReporter) startHTTPSvr() error {
	l, err := net.Listen("tcp", x.cfg.HTTPListenAddr)
	if err != nil {
		return err
	}
	x.addr = l.Addr()

	mux := http.NewServeMux()
	mux.Handle(x.cfg.MetricPath, promhttp.HandlerFor(x.reg, promhttp.HandlerOpts{Registry: x.reg}))
	mux.HandleFunc(x.cfg.HealthCheckPath, func(w http.ResponseWriter, _ *http.Request) {
		if len(x.records) > cap(x.records)*9/10 {
			http.Error(w, "metrics queue saturated", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	x.promSvr = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		if err := x.promSvr.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("prometheus http server")
		}
	}()
	log.Info().Str("addr", l.Addr().String()).Str("path", x.cfg.MetricPath).Msg("prometheus http start listen on")
	return nil
}

func (x *PrometheusReporter) startPusher() {
	pusher := push.New(x.cfg.PushAddr, x.cfg.PushJobName).Gatherer(x.reg)
	if x.cfg.Tag != "" {
		pusher = pusher.Grouping("instance", x.cfg.Tag)
	}

	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		t := time.NewTicker(time.Duration(x.cfg.PushIntervalSec) * time.Second)
		defer t.Stop()
		for {
			select {
			case <-x.ctx.Done():
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(x.ctx, _pushTimeout)
				if err := pusher.PushContext(ctx); err != nil {
					log.Error().Err(err).Str("gateway", x.cfg.PushAddr).Msg("prometheus push")
				}
				cancel()
			}
		}
	}()
}

func (x *PrometheusReporter) aggregate() {
	defer x.wg.Done()
	for {
		select {
		case rc := <-x.records:
			x.merge(&rc)
		case <-x.ctx.Done():
			return
		}
	}
}

// Flush applies every queued record. It is meant for tests and shutdown paths where the
// aggregation loop is not running.
func (x *PrometheusReporter) Flush() {
	for {
		select {
		case rc := <-x.records:
			x.merge(&rc)
		default:
			return
		}
	}
}

func (x *PrometheusReporter) merge(rc *metrics.Record) {
	m := rc.Metrics()
	if m == nil {
		return
	}
	key := m.Group() + "*" + m.Name()
	v, ok := x.vecs[key]
	if !ok {
		v = x.newVec(rc)
		if v == nil {
			return
		}
		x.vecs[key] = v
	}

	lv := v.values(rc.Dimensions())
	switch v.kind {
	case _vecCounter:
		if val := float64(rc.Value()); val >= 0 {
			v.counter.WithLabelValues(lv...).Add(val)
		}
	case _vecGauge:
		v.gauge.WithLabelValues(lv...).Set(float64(rc.Value()))
	case _vecHistogram:
		v.histogram.WithLabelValues(lv...).Observe(float64(rc.Value()))
	}
}

func (x *PrometheusReporter) newVec(rc *metrics.Record) *vec {
	m := rc.Metrics()
	labels := make([]string, 0, len(rc.Dimensions()))
	for k := range rc.Dimensions() {
		if _, ext := x.cfg.ExtLabels[k]; !ext {
			labels = append(labels, k)
		}
	}
	sort.Strings(labels)

	subsystem := strings.ReplaceAll(m.Group(), ".", "_")
	name := strings.ReplaceAll(m.Name(), ".", "_")
	v := &vec{labels: labels}
	switch m.Policy() {
	case metrics.Policy_Sum:
		v.kind = _vecCounter
		v.counter = x.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: x.cfg.ExtLabels,
		}, labels)
	case metrics.Policy_Set:
		v.kind = _vecGauge
		v.gauge = x.factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: _namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: x.cfg.ExtLabels,
		}, labels)
	case metrics.Policy_Stopwatch:
		v.kind = _vecHistogram
		v.histogram = x.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: _namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: x.cfg.ExtLabels,
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 9),
		}, labels)
	default:
		log.Error().Str("metric", m.Name()).Int("policy", int(m.Policy())).Msg("prometheus merge unknown policy")
		return nil
	}
	return v
}
