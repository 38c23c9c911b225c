package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Scheduler triggers synchronization cycles on a fixed interval. The
// SyncService serializes cycles itself; a tick that lands mid-cycle is
// simply dropped.
type Scheduler struct {
	syncService *SyncService
	interval    time.Duration
	stopChan    chan struct{}
	running     bool
	mu          sync.Mutex
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(syncService *SyncService, interval time.Duration) *Scheduler {
	return &Scheduler{
		syncService: syncService,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the periodic sync process
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting with interval: %v", s.interval)

	go func() {
		// Give the server a moment to come up before the first cycle
		select {
		case <-time.After(10 * time.Second):
			s.runOnce()
		case <-s.stopChan:
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				log.Println("[Scheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the periodic sync process
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), CycleTimeout)
	defer cancel()

	_, err := s.syncService.RunCycle(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleInProgress):
		log.Println("[Scheduler] Previous cycle still running, skipping this tick")
	case errors.Is(err, ErrNotAuthorized):
		// The next tick retries once the mailbox has been authorized
		log.Println("[Scheduler] Mailbox not authorized yet, waiting for OAuth setup")
	default:
		log.Printf("[Scheduler] Sync cycle failed: %v", err)
	}
}
