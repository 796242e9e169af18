package services

import (
	"context"
	"log"
	"time"
)

// Sweeper force-closes sessions left active past the abandonment
// threshold. It runs on its own clock, independent of request traffic,
// and closes at least once: re-sweeping an already-closed session is a
// safe no-op through the conditional transition.
type Sweeper struct {
	sessions SessionStore
	svc      *SessionService
	clock    Clock
	interval time.Duration
	stopChan chan struct{}
}

func NewSweeper(sessions SessionStore, svc *SessionService, clock Clock, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		svc:      svc,
		clock:    clock,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop()
	log.Printf("Stale session sweeper started (interval %s)", s.interval)
}

func (s *Sweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *Sweeper) loop() {
	// Run on startup as well as by interval.
	s.Sweep(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep force-closes every abandoned active session. Individual failures
// are logged and skipped so one bad session never aborts the batch.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.svc.StaleThreshold())

	stale, err := s.sessions.FindStaleActive(ctx, cutoff)
	if err != nil {
		log.Printf("Sweep failed to query stale sessions: %v", err)
		return
	}

	closed := 0
	for i := range stale {
		session := stale[i]
		switch err := s.svc.CloseStale(ctx, &session); err {
		case nil:
			closed++
		case ErrConcurrentModificationLost:
			// Someone (the user, or another sweep) closed it between the
			// query and the transition. That outcome is fine.
		default:
			log.Printf("Sweep failed to close session %s: %v", session.ID, err)
		}
	}

	if closed > 0 {
		log.Printf("Cleaned up %d stale sessions", closed)
	}
}
