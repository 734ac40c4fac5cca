package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersAreSafeForConcurrentUse(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncrementCounter(CounterStepsAdvanced)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), m.GetCounters()[CounterStepsAdvanced])
}

func TestRecordTimer(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer("db_query", 10*time.Millisecond)
	m.RecordTimer("db_query", 30*time.Millisecond)

	got := m.GetTimers()["db_query"]
	assert.Equal(t, int64(2), got.Count)
	assert.Equal(t, int64(10), got.MinTimeMs)
	assert.Equal(t, int64(30), got.MaxTimeMs)
	assert.InDelta(t, 20.0, got.AverageTimeMs, 0.001)
}

func TestErrorRates(t *testing.T) {
	m := NewMetrics()
	m.RecordResult("job_advance", nil)
	m.RecordResult("job_advance", nil)
	m.RecordResult("job_advance", nil)
	m.RecordResult("job_advance", errors.New("boom"))

	got := m.GetErrorRates()["job_advance"]
	assert.Equal(t, int64(4), got.Total)
	assert.Equal(t, int64(1), got.Errors)
	assert.InDelta(t, 25.0, got.ErrorRate, 0.001)
}

func TestHealth(t *testing.T) {
	m := NewMetrics()
	assert.True(t, m.Healthy())

	m.SetHealth(HealthDatabase, true)
	m.SetHealth(HealthCache, false)
	assert.False(t, m.Healthy())
	assert.Equal(t, map[string]bool{HealthDatabase: true, HealthCache: false}, m.GetHealthChecks())

	m.SetHealth(HealthCache, true)
	assert.True(t, m.Healthy())
}
