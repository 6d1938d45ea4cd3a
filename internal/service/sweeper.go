package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultSweepInterval = 60 * time.Second

// ExpirationSweeper periodically evicts stale queue entries and matches
type ExpirationSweeper struct {
	store    *QueueStore
	logger   *zap.Logger
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewExpirationSweeper(store *QueueStore, interval time.Duration, logger *zap.Logger) *ExpirationSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExpirationSweeper{
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the sweep loop; a second call is a no-op
func (s *ExpirationSweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("Starting ExpirationSweeper", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.sweepLoop(s.stopChan)
}

// Stop halts the loop and waits for an in-flight sweep to finish
func (s *ExpirationSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("ExpirationSweeper stopped")
}

func (s *ExpirationSweeper) sweepLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep runs one cleanup pass. A panic inside the store is logged, not propagated.
func (s *ExpirationSweeper) Sweep() (entries, matches int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
			s.logger.Error("Queue sweep failed", zap.Error(err))
		}
	}()

	entries, matches = s.store.CleanupExpired()
	if entries > 0 || matches > 0 {
		s.logger.Info("Expired queue state removed",
			zap.Int("entries", entries),
			zap.Int("matches", matches),
			zap.Int("remaining", s.store.GetTotalInQueue()))
	}
	return entries, matches, nil
}
