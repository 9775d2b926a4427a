package scheduler

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Cache is the refresh surface the scheduler drives.
type Cache interface {
	RefreshSymbols(ctx context.Context)
	RefreshBothBackground(ctx context.Context)
}

// Scanner runs one alert detection cycle.
type Scanner interface {
	Scan(ctx context.Context)
}

// Scheduler owns the two periodic loops of the pipeline: the cache
// refresh loop and the alert scan loop. Both run until Stop and survive
// any panic or failure inside an iteration.
type Scheduler struct {
	cache         Cache
	scanner       Scanner
	cacheInterval time.Duration
	alertInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cache Cache, scanner Scanner, cacheInterval, alertInterval time.Duration) *Scheduler {
	return &Scheduler{
		cache:         cache,
		scanner:       scanner,
		cacheInterval: cacheInterval,
		alertInterval: alertInterval,
	}
}

// Start eagerly populates the cache, then launches both loops. It returns
// once the loops are running.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cache.RefreshBothBackground(ctx)

	s.wg.Add(2)
	go s.loop(ctx, "cache-refresh", s.cacheInterval, func() {
		s.cache.RefreshSymbols(ctx)
		s.cache.RefreshBothBackground(ctx)
	})
	go s.loop(ctx, "alert-scan", s.alertInterval, func() {
		s.scanner.Scan(ctx)
	})

	log.Infof("scheduler started (cache every %s, alerts every %s)", s.cacheInterval, s.alertInterval)
}

// Stop cancels both loops and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, tick func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runRecovered(name, tick)
		}
	}
}

// runRecovered keeps a panicking iteration from killing the loop; only
// process shutdown stops it.
func runRecovered(name string, tick func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic recovered in %s loop: %v", name, r)
		}
	}()
	tick()
}
