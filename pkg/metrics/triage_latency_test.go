package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerStats(t *testing.T) {
	tr := NewTracker(10)
	for i := 1; i <= 5; i++ {
		var err error
		if i == 5 {
			err = errors.New("boom")
		}
		tr.Observe(time.Duration(i)*time.Millisecond, err)
	}

	s := tr.Stats()
	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 5*time.Millisecond, s.Max)
	assert.Equal(t, 3*time.Millisecond, s.Avg)
	assert.Equal(t, 3*time.Millisecond, s.P50)
}

func TestTrackerDropsOldestAtLimit(t *testing.T) {
	tr := NewTracker(2)
	tr.Observe(100*time.Millisecond, nil)
	tr.Observe(time.Millisecond, nil)
	tr.Observe(2*time.Millisecond, nil)

	s := tr.Stats()
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 2*time.Millisecond, s.Max)
}

func TestEmptyTracker(t *testing.T) {
	assert.Equal(t, Stats{}, NewTracker(0).Stats())
}

func TestRegistryConcurrentObserve(t *testing.T) {
	r := NewRegistry(100)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Observe("llm", time.Millisecond, nil)
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, 8, snap["llm"].Count)

	r.Reset()
	assert.Empty(t, r.Snapshot())
}

func TestStatsFields(t *testing.T) {
	f := Stats{Count: 2, Avg: 1500 * time.Microsecond}.Fields("alert")
	assert.Equal(t, 2, f["alert_calls"])
	assert.Equal(t, 1.5, f["alert_avg_ms"])
}
