package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"studysync-backend/internal/models"
	"studysync-backend/internal/services"
)

// stubSessionStore serves a single session for FindByID; the retry
// processor touches no other store method.
type stubSessionStore struct {
	services.SessionStore
	session *models.Session
	err     error
}

func (s *stubSessionStore) FindByID(_ context.Context, _ uuid.UUID) (*models.Session, error) {
	return s.session, s.err
}

type countingAnalytics struct {
	calls int
	err   error
}

func (c *countingAnalytics) RecordCompletedSession(_ context.Context, _ *models.Session) error {
	if c.err != nil {
		return c.err
	}
	c.calls++
	return nil
}

func terminalSession(status models.SessionStatus) *models.Session {
	start := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	duration := int64(3600)
	return &models.Session{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		StartTime:       start,
		EndTime:         &end,
		DurationSeconds: &duration,
		Status:          status,
	}
}

func TestProcess_RefreshesTerminalSession(t *testing.T) {
	session := terminalSession(models.SessionCompleted)
	analytics := &countingAnalytics{}
	pool := NewPool(nil, &stubSessionStore{session: session}, analytics, 0)

	pool.process(context.Background(), 0, analyticsJob{UserID: session.UserID, SessionID: session.ID})

	if analytics.calls != 1 {
		t.Fatalf("Expected 1 analytics refresh, got %d", analytics.calls)
	}
}

func TestProcess_DropsNonTerminalSession(t *testing.T) {
	session := terminalSession(models.SessionActive)
	session.EndTime = nil
	session.DurationSeconds = nil
	analytics := &countingAnalytics{}
	pool := NewPool(nil, &stubSessionStore{session: session}, analytics, 0)

	pool.process(context.Background(), 0, analyticsJob{UserID: session.UserID, SessionID: session.ID})

	if analytics.calls != 0 {
		t.Fatalf("Expected an open session's job dropped, got %d refreshes", analytics.calls)
	}
}

func TestProcess_DropsMissingSession(t *testing.T) {
	analytics := &countingAnalytics{}
	pool := NewPool(nil, &stubSessionStore{}, analytics, 0)

	pool.process(context.Background(), 0, analyticsJob{UserID: uuid.New(), SessionID: uuid.New()})

	if analytics.calls != 0 {
		t.Fatalf("Expected a vanished session's job dropped, got %d refreshes", analytics.calls)
	}
}

func TestProcess_GivesUpAtMaxAttempts(t *testing.T) {
	session := terminalSession(models.SessionCompleted)
	analytics := &countingAnalytics{err: errors.New("analytics store down")}

	// Attempts is one below the cap; the failure must end the job without
	// re-enqueueing (a re-enqueue would hit the nil queue and panic).
	pool := NewPool(nil, &stubSessionStore{session: session}, analytics, 0)
	pool.process(context.Background(), 0, analyticsJob{
		UserID:    session.UserID,
		SessionID: session.ID,
		Attempts:  maxAttempts - 1,
	})

	if analytics.calls != 0 {
		t.Fatalf("Expected no successful refresh, got %d", analytics.calls)
	}
}
