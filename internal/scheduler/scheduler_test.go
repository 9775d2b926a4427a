package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	symbolRefreshes int32
	fullRefreshes   int32
}

func (c *countingCache) RefreshSymbols(ctx context.Context) {
	atomic.AddInt32(&c.symbolRefreshes, 1)
}

func (c *countingCache) RefreshBothBackground(ctx context.Context) {
	atomic.AddInt32(&c.fullRefreshes, 1)
}

type countingScanner struct {
	scans int32
	panic bool
}

func (s *countingScanner) Scan(ctx context.Context) {
	atomic.AddInt32(&s.scans, 1)
	if s.panic {
		panic("scan blew up")
	}
}

func TestSchedulerRunsBothLoops(t *testing.T) {
	cache := &countingCache{}
	scanner := &countingScanner{}

	s := New(cache, scanner, 10*time.Millisecond, 10*time.Millisecond)
	s.Start()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&cache.symbolRefreshes) >= 2 &&
			atomic.LoadInt32(&scanner.scans) >= 2
	}, time.Second, time.Millisecond)

	s.Stop()

	// eager refresh at start plus one per cache tick
	full := atomic.LoadInt32(&cache.fullRefreshes)
	assert.GreaterOrEqual(t, full, atomic.LoadInt32(&cache.symbolRefreshes)+1)
}

func TestStopHaltsTicking(t *testing.T) {
	cache := &countingCache{}
	scanner := &countingScanner{}

	s := New(cache, scanner, 5*time.Millisecond, 5*time.Millisecond)
	s.Start()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&scanner.scans) >= 1
	}, time.Second, time.Millisecond)

	s.Stop()
	after := atomic.LoadInt32(&scanner.scans)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, after, atomic.LoadInt32(&scanner.scans), "no scans after Stop")
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	s := New(&countingCache{}, &countingScanner{}, time.Minute, time.Minute)
	s.Stop()
}

func TestPanickingScanDoesNotKillLoop(t *testing.T) {
	cache := &countingCache{}
	scanner := &countingScanner{panic: true}

	s := New(cache, scanner, time.Hour, 5*time.Millisecond)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&scanner.scans) >= 3
	}, time.Second, time.Millisecond, "loop must survive panics in an iteration")
}
