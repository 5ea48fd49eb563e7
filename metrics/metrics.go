package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is the base interface for all metric types.
type Metrics interface {
	Name() string
	Group() string
	Policy() Policy
}

// Reporter receives every metric update.
type Reporter interface {
	Report(r Record)
}

// Counter accumulates values.
type Counter interface {
	Metrics
	Incr(delta Value)
	IncrWithDim(delta Value, dimensions Dimension)
}

// Gauge holds a point-in-time value.
type Gauge interface {
	Metrics
	Update(value Value)
	UpdateWithDim(value Value, dimensions Dimension)
}

// StopWatch measures durations.
type StopWatch interface {
	Metrics
	RecordWithDim(dimensions Dimension, startTime time.Time) time.Duration
}

var _reporters atomic.Pointer[[]Reporter]

// SetMetricsReporters replaces the reporter list.
func SetMetricsReporters(reports []Reporter) {
	cp := slices.Clone(reports)
	_reporters.Store(&cp)
}

// AddReporter appends a reporter.
func AddReporter(r Reporter) {
	for {
		old := _reporters.Load()
		var next []Reporter
		if old != nil {
			next = slices.Clone(*old)
		}
		next = append(next, r)
		if _reporters.CompareAndSwap(old, &next) {
			return
		}
	}
}

// RemoveReporter removes a reporter added earlier.
func RemoveReporter(r Reporter) {
	for {
		old := _reporters.Load()
		if old == nil {
			return
		}
		next := slices.DeleteFunc(slices.Clone(*old), func(x Reporter) bool { return x == r })
		if _reporters.CompareAndSwap(old, &next) {
			return
		}
	}
}

func report(r Record) {
	if rs := _reporters.Load(); rs != nil {
		for _, reporter := range *rs {
			reporter.Report(r)
		}
	}
}

// instrument implements Counter, Gauge and StopWatch; the policy decides which.
type instrument struct {
	name   string
	group  string
	policy Policy
}

func (m *instrument) Name() string   { return m.name }
func (m *instrument) Group() string  { return m.group }
func (m *instrument) Policy() Policy { return m.policy }

func (m *instrument) Incr(v Value) { m.IncrWithDim(v, nil) }

func (m *instrument) IncrWithDim(v Value, dimensions Dimension) {
	report(Record{metrics: m, value: v, dimensions: dimensions})
}

func (m *instrument) Update(v Value) { m.UpdateWithDim(v, nil) }

func (m *instrument) UpdateWithDim(v Value, dimensions Dimension) {
	report(Record{metrics: m, value: v, dimensions: dimensions})
}

func (m *instrument) RecordWithDim(dimensions Dimension, startTime time.Time) time.Duration {
	d := time.Since(startTime)
	report(Record{
		metrics:    m,
		value:      Value(float64(d.Microseconds()) / 1000),
		cnt:        1,
		dimensions: dimensions,
	})
	return d
}

// registry lazily creates one instrument per name and policy.
type registry struct {
	policy Policy
	lock   sync.RWMutex
	m      map[string]*instrument
}

func (r *registry) get(name, group string) *instrument {
	r.lock.RLock()
	ins, ok := r.m[name]
	r.lock.RUnlock()
	if ok {
		return ins
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if ins, ok = r.m[name]; ok {
		return ins
	}
	ins = &instrument{name: name, group: group, policy: r.policy}
	r.m[name] = ins
	return ins
}

var (
	_counters   = &registry{policy: Policy_Sum, m: map[string]*instrument{}}
	_gauges     = &registry{policy: Policy_Set, m: map[string]*instrument{}}
	_stopwatchs = &registry{policy: Policy_Stopwatch, m: map[string]*instrument{}}
)

// GetCounter returns the counter registered under key.
func GetCounter(key string, group string) Counter { return _counters.get(key, group) }

// GetGauge returns the gauge registered under key.
func GetGauge(key string, group string) Gauge { return _gauges.get(key, group) }

// GetStopWatch returns the stopwatch registered under key.
func GetStopWatch(key string, group string) StopWatch { return _stopwatchs.get(key, group) }

// IncrCounterWithGroup increases a counter.
func IncrCounterWithGroup(key string, group string, value Value) {
	_counters.get(key, group).Incr(value)
}

// IncrCounterWithDimGroup increases a counter with dimensions.
func IncrCounterWithDimGroup(key string, group string, value Value, dimensions Dimension) {
	_counters.get(key, group).IncrWithDim(value, dimensions)
}

// UpdateGaugeWithGroup sets a gauge.
func UpdateGaugeWithGroup(key string, group string, value Value) {
	_gauges.get(key, group).Update(value)
}

// UpdateGaugeWithDimGroup sets a gauge with dimensions.
func UpdateGaugeWithDimGroup(key string, group string, value Value, dimensions Dimension) {
	_gauges.get(key, group).UpdateWithDim(value, dimensions)
}

// RecordStopwatchWithGroup records the time elapsed since startTime.
func RecordStopwatchWithGroup(key string, group string, startTime time.Time) time.Duration {
	return _stopwatchs.get(key, group).RecordWithDim(nil, startTime)
}

// RecordStopwatchWithDimGroup records the time elapsed since startTime with dimensions.
func RecordStopwatchWithDimGroup(key string, group string, startTime time.Time, dimensions Dimension) time.Duration {
	return _stopwatchs.get(key, group).RecordWithDim(dimensions, startTime)
}
