package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEvictorInterval = 5 * time.Minute
	defaultIdleTimeout     = 30 * time.Minute
)

// EvictorService periodically drops idle compiled networks from memory.
type EvictorService struct {
	networks *NetworkService
	logger   *zap.Logger

	interval time.Duration
	idle     time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewEvictorService(networks *NetworkService, logger *zap.Logger) *EvictorService {
	return &EvictorService{
		networks: networks,
		logger:   logger,
		interval: defaultEvictorInterval,
		idle:     defaultIdleTimeout,
		stopCh:   make(chan struct{}),
	}
}

func (s *EvictorService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *EvictorService) SetIdleTimeout(d time.Duration) {
	s.idle = d
}

// Start runs the evictor on a periodic schedule in a background goroutine.
func (s *EvictorService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("network evictor started",
			zap.Duration("interval", s.interval),
			zap.Duration("idle_timeout", s.idle))

		for {
			select {
			case <-ticker.C:
				s.run()
			case <-s.stopCh:
				s.logger.Info("network evictor stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the evictor.
func (s *EvictorService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *EvictorService) run() {
	if n := s.networks.Evict(s.idle); n > 0 {
		s.logger.Info("evicted idle networks",
			zap.Int("count", n),
			zap.Int("remaining", s.networks.Loaded()))
	}
}
