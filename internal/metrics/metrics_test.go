package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	name   string
	value  float64
	labels Labels
}

// recorder is an in-memory Backend for assertions.
type recorder struct {
	mu       sync.Mutex
	counters []observation
	hists    []observation
	flushed  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, observation{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, observation{name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

// The global backend is shared, so these tests run sequentially.
func TestRecorders(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(Reset)

	RecordStep("job", "locate", errors.New("boom"), 2*time.Second)
	RecordRow("job", "flagged", 3)
	RecordRow("job", "failed", 0)
	RecordFlag("job", "profit")
	RecordSolve("job", "optimal", 500*time.Millisecond)
	require.NoError(t, Flush())

	require.Len(t, rec.counters, 4)
	assert.Equal(t, StepTotal, rec.counters[0].name)
	assert.Equal(t, "failure", rec.counters[0].labels["status"])
	assert.Equal(t, observation{RowsTotal, 3, Labels{"job": "job", "kind": "flagged"}}, rec.counters[1])
	assert.Equal(t, "profit", rec.counters[2].labels["field"])
	assert.Equal(t, SolveTotal, rec.counters[3].name)

	require.Len(t, rec.hists, 2)
	assert.Equal(t, 2.0, rec.hists[0].value)
	assert.Equal(t, SolveDurationSeconds, rec.hists[1].name)
	assert.Equal(t, 0.5, rec.hists[1].value)
	assert.Equal(t, 1, rec.flushed)
}

func TestSetBackendNilKeepsCurrent(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(Reset)

	SetBackend(nil)
	RecordRow("job", "processed", 1)
	assert.Len(t, rec.counters, 1)

	Reset()
	RecordRow("job", "processed", 1)
	assert.Len(t, rec.counters, 1)
	assert.NoError(t, Flush())
}
