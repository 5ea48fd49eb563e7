package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memReporter struct {
	mu      sync.Mutex
	records []Record
}

func (m *memReporter) Report(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *r.Clone())
}

func (m *memReporter) byName(name string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Metrics().Name() == name {
			out = append(out, r)
		}
	}
	return out
}

func TestReportingFanOut(t *testing.T) {
	a, b := &memReporter{}, &memReporter{}
	SetMetricsReporters([]Reporter{a})
	AddReporter(b)
	defer SetMetricsReporters(nil)

	IncrCounterWithDimGroup("test_fanout_total", GroupNet, 2, Dimension{DimMsgID: "JoinLobby"})
	UpdateGaugeWithGroup("test_fanout_gauge", GroupLobby, 5)

	for _, rep := range []*memReporter{a, b} {
		got := rep.byName("test_fanout_total")
		require.Len(t, got, 1)
		assert.EqualValues(t, 2, got[0].Value())
		assert.Equal(t, GroupNet, got[0].Metrics().Group())
		assert.Equal(t, Policy_Sum, got[0].Metrics().Policy())
		assert.Equal(t, "JoinLobby", got[0].Dimensions()[DimMsgID])

		gauges := rep.byName("test_fanout_gauge")
		require.Len(t, gauges, 1)
		assert.Equal(t, Policy_Set, gauges[0].Metrics().Policy())
	}

	RemoveReporter(a)
	IncrCounterWithGroup("test_fanout_total", GroupNet, 1)
	assert.Len(t, a.byName("test_fanout_total"), 1)
	assert.Len(t, b.byName("test_fanout_total"), 2)
}

func TestStopwatch(t *testing.T) {
	rep := &memReporter{}
	SetMetricsReporters([]Reporter{rep})
	defer SetMetricsReporters(nil)

	d := RecordStopwatchWithDimGroup("test_sw_ms", GroupNet, time.Now().Add(-20*time.Millisecond), Dimension{DimMsgID: "x"})
	assert.GreaterOrEqual(t, d, 20*time.Millisecond)

	got := rep.byName("test_sw_ms")
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, float64(got[0].Value()), 20.0)
	_, cnt := got[0].RawData()
	assert.Equal(t, 1, cnt)
}

func TestInstrumentsAreShared(t *testing.T) {
	assert.Same(t, GetCounter("test_shared", GroupNet), GetCounter("test_shared", GroupNet))
	assert.NotEqual(t, GetCounter("test_shared", GroupNet).Policy(), GetGauge("test_shared", GroupNet).Policy())
}

func TestRecordMerge(t *testing.T) {
	sum := NewRecord(GetCounter("test_merge_sum", GroupNet), 1, Dimension{"k": "v"})
	require.NoError(t, sum.Merge(NewRecord(GetCounter("test_merge_sum", GroupNet), 2, Dimension{"k": "v"})))
	assert.EqualValues(t, 3, sum.Value())

	assert.Error(t, sum.Merge(NewRecord(GetCounter("test_merge_sum", GroupNet), 2, Dimension{"k": "w"})))
	assert.Error(t, sum.Merge(NewRecord(GetCounter("test_merge_other", GroupNet), 2, Dimension{"k": "v"})))
	assert.Error(t, sum.Merge(NewRecord(GetGauge("test_merge_sum", GroupNet), 2, Dimension{"k": "v"})))

	set := NewRecord(GetGauge("test_merge_set", GroupNet), 1, nil)
	require.NoError(t, set.Merge(NewRecord(GetGauge("test_merge_set", GroupNet), 7, nil)))
	assert.EqualValues(t, 7, set.Value())

	sw := NewRecord(GetStopWatch("test_merge_sw", GroupNet), 10, nil)
	require.NoError(t, sw.Merge(NewRecord(GetStopWatch("test_merge_sw", GroupNet), 30, nil)))
	assert.EqualValues(t, 20, sw.Value())
}
