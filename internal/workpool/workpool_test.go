package workpool

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRunsAllJobs(t *testing.T) {
	p := New(4)
	defer p.Close()

	const n = 200
	var count int64
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		p.Submit(func() {
			atomic.AddInt64(&count, 1)
			done <- struct{}{}
		})
	}
	for i := 0; i < n; i++ {
		<-done
	}
	assert.Equal(t, int64(n), atomic.LoadInt64(&count))
}

func TestCloseWaitsForInFlightJobs(t *testing.T) {
	p := New(2)
	var ran int32
	p.Submit(func() { atomic.StoreInt32(&ran, 1) })
	p.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestNewWithNonPositiveUsesGOMAXPROCS(t *testing.T) {
	p := New(0)
	defer p.Close()
	assert.NotNil(t, p.jobs)
	// New sizes the job queue at 4x the worker count.
	assert.Equal(t, runtime.GOMAXPROCS(-1)*4, cap(p.jobs))
}
