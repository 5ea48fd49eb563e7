package metrics

import (
	"fmt"
	"maps"
)

// Record is one metric update.
type Record struct {
	metrics    Metrics
	value      Value
	cnt        int
	dimensions Dimension
}

// NewRecord builds a record, mainly for reporters and tests.
func NewRecord(m Metrics, v Value, dimensions Dimension) Record {
	r := Record{metrics: m, value: v, dimensions: dimensions}
	if m != nil && m.Policy() == Policy_Stopwatch {
		r.cnt = 1
	}
	return r
}

// Clone deep-copies the record.
func (r *Record) Clone() *Record {
	cp := *r
	cp.dimensions = maps.Clone(r.dimensions)
	return &cp
}

// Metrics returns the metric definition.
func (r *Record) Metrics() Metrics {
	return r.metrics
}

// Value returns the value; stopwatches report the mean of merged samples.
func (r *Record) Value() Value {
	if r.metrics != nil && r.metrics.Policy() == Policy_Stopwatch && r.cnt != 0 {
		return r.value / Value(r.cnt)
	}
	return r.value
}

// RawData returns the raw value and sample count.
func (r *Record) RawData() (Value, int) {
	return r.value, r.cnt
}

// Dimensions returns the labels.
func (r *Record) Dimensions() map[string]string {
	return r.dimensions
}

// Merge folds other into r. Both must describe the same metric and dimensions.
func (r *Record) Merge(other Record) error {
	if r.metrics.Name() != other.metrics.Name() {
		return fmt.Errorf("metrics name(%s,%s) not equal", r.metrics.Name(), other.metrics.Name())
	}
	if r.metrics.Policy() != other.metrics.Policy() {
		return fmt.Errorf("metrics policy(%v,%v) not equal", r.metrics.Policy(), other.metrics.Policy())
	}
	if !maps.Equal(r.dimensions, other.dimensions) {
		return fmt.Errorf("metrics(%s) dimensions not equal", r.metrics.Name())
	}

	switch r.metrics.Policy() {
	case Policy_Set:
		r.value = other.value
	case Policy_Sum:
		r.value += other.value
	case Policy_Stopwatch:
		r.value += other.value
		r.cnt += other.cnt
	default:
		return fmt.Errorf("metrics(%s) policy %v cannot merge", r.metrics.Name(), r.metrics.Policy())
	}
	return nil
}
