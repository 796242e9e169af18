package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"studysync-backend/internal/models"
)

// LeaderboardInvalidator evicts a group's cached leaderboards after a
// session completion.
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context, groupID uuid.UUID) error
}

// AnalyticsUpdater refreshes the owner's rolling study statistics for a
// session that reached a terminal status.
type AnalyticsUpdater interface {
	RecordCompletedSession(ctx context.Context, session *models.Session) error
}

type StartSessionRequest struct {
	GroupID      *uuid.UUID `json:"group_id,omitempty"`
	StudySubject *string    `json:"study_subject,omitempty"`
	Location     *string    `json:"location,omitempty"`
	Platform     string     `json:"platform,omitempty"`
	AppVersion   *string    `json:"app_version,omitempty"`
	DeviceID     *string    `json:"device_id,omitempty"`
}

type EndSessionRequest struct {
	Mood         *string `json:"mood,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Productivity *int    `json:"productivity,omitempty"`
}

// SessionService owns session state transitions. All transitions go
// through the store's conditional updates, so a transition racing the
// sweeper (or another request) loses cleanly instead of double-closing.
type SessionService struct {
	sessions    SessionStore
	users       UserStore
	antiCheat   *AntiCheatService
	analytics   AnalyticsUpdater
	leaderboard LeaderboardInvalidator
	retryQueue  AnalyticsQueue
	clock       Clock

	maxSessionDuration int64
	anomalyThreshold   float64
	staleThreshold     time.Duration
}

func NewSessionService(
	sessions SessionStore,
	users UserStore,
	antiCheat *AntiCheatService,
	analytics AnalyticsUpdater,
	leaderboard LeaderboardInvalidator,
	clock Clock,
	maxSessionDuration int64,
	anomalyThreshold float64,
	staleThreshold time.Duration,
) *SessionService {
	return &SessionService{
		sessions:           sessions,
		users:              users,
		antiCheat:          antiCheat,
		analytics:          analytics,
		leaderboard:        leaderboard,
		clock:              clock,
		maxSessionDuration: maxSessionDuration,
		anomalyThreshold:   anomalyThreshold,
		staleThreshold:     staleThreshold,
	}
}

// SetRetryQueue wires the optional background retry queue for analytics
// updates that fail inline.
func (s *SessionService) SetRetryQueue(q AnalyticsQueue) {
	s.retryQueue = q
}

// StartSession creates a new active session for the user. A non-stale
// active session blocks the start; a stale one is force-closed first,
// through the same path the sweeper uses.
func (s *SessionService) StartSession(ctx context.Context, userID uuid.UUID, req StartSessionRequest) (*models.Session, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	active, err := s.sessions.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if active != nil {
		if !s.isStale(active) {
			return nil, ErrActiveSessionExists
		}
		// Abandoned session; close it the way the sweeper would. Losing
		// the close race means someone else already closed it, which is
		// fine either way.
		if err := s.CloseStale(ctx, active); err != nil && err != ErrConcurrentModificationLost {
			return nil, fmt.Errorf("close stale session: %w", err)
		}
	}

	now := s.clock.Now()
	platform := req.Platform
	if platform == "" {
		platform = "mobile"
	}

	session := &models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		GroupID:   req.GroupID,
		StartTime: now,
		Status:    models.SessionActive,
		Source: models.SessionSource{
			Platform:   platform,
			AppVersion: req.AppVersion,
			DeviceID:   req.DeviceID,
		},
		Metadata: models.SessionMetadata{
			StudySubject: req.StudySubject,
			Location:     req.Location,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.sessions.CreateActive(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("Session started for user %s (group %v)", userID, req.GroupID)
	return session, nil
}

// EndSession closes the user's active session, runs validation, and
// triggers the downstream analytics and leaderboard refreshes. The
// session write always happens before the downstream side effects, and a
// downstream failure never rolls it back.
func (s *SessionService) EndSession(ctx context.Context, userID uuid.UUID, req EndSessionRequest) (*models.Session, error) {
	session, err := s.sessions.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if session == nil {
		return nil, ErrNoActiveSession
	}

	now := s.clock.Now()
	duration := session.CurrentDuration(now)

	session.EndTime = &now
	session.DurationSeconds = &duration
	if req.Mood != nil {
		session.Metadata.Mood = req.Mood
	}
	if req.Notes != nil {
		session.Metadata.Notes = req.Notes
	}
	if req.Productivity != nil {
		session.Metadata.Productivity = req.Productivity
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	// Completed history covering the hour before start through the end,
	// for the rapid-succession and overlap checks.
	recent, err := s.sessions.FindCompletedByUserInRange(ctx, userID, session.StartTime.Add(-time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("load recent sessions: %w", err)
	}

	validation := s.antiCheat.Validate(session, user, recent, now)
	session.Validation = &validation

	session.Status = models.SessionCompleted
	if validation.AnomalyScore > s.anomalyThreshold || len(validation.Flags) > 0 {
		session.Status = models.SessionSuspicious
		log.Printf("Suspicious session %s for user %s: anomaly score %.2f, flags %v",
			session.ID, userID, validation.AnomalyScore, validation.Flags)
	}
	session.UpdatedAt = now

	if err := s.sessions.TransitionFromActive(ctx, session); err != nil {
		return nil, err
	}

	s.refreshDownstream(ctx, session)

	log.Printf("Session ended for user %s, duration %d seconds", userID, duration)
	return session, nil
}

// refreshDownstream performs the best-effort side effects that follow a
// persisted completion: analytics first, then leaderboard invalidation.
func (s *SessionService) refreshDownstream(ctx context.Context, session *models.Session) {
	if err := s.analytics.RecordCompletedSession(ctx, session); err != nil {
		log.Printf("Analytics update failed for user %s: %v", session.UserID, err)
		if s.retryQueue != nil {
			if qErr := s.retryQueue.EnqueueRefresh(ctx, session.UserID, session.ID); qErr != nil {
				log.Printf("Failed to enqueue analytics retry for user %s: %v", session.UserID, qErr)
			}
		}
	}

	if session.GroupID != nil {
		if err := s.leaderboard.Invalidate(ctx, *session.GroupID); err != nil {
			log.Printf("Leaderboard invalidation failed for group %s: %v", *session.GroupID, err)
		}
	}
}

// GetActiveSession returns the user's active session along with its
// live-computed current duration.
func (s *SessionService) GetActiveSession(ctx context.Context, userID uuid.UUID) (*models.Session, int64, error) {
	session, err := s.sessions.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("find active session: %w", err)
	}
	if session == nil {
		return nil, 0, ErrNoActiveSession
	}
	return session, session.CurrentDuration(s.clock.Now()), nil
}

// GetSessionHistory lists the user's sessions, newest first.
func (s *SessionService) GetSessionHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.Session, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.sessions.FindByUserPaged(ctx, userID, pageSize, (page-1)*pageSize)
}

// GetSessionsByDateRange lists the user's completed sessions within
// [start, end), newest first.
func (s *SessionService) GetSessionsByDateRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.Session, error) {
	return s.sessions.FindCompletedByUserInRange(ctx, userID, start, end)
}

// CloseStale force-closes an abandoned active session. The recorded
// duration is the configured maximum, a deliberate penalty value rather
// than the actual elapsed time. Shared by the sweeper and the start path.
func (s *SessionService) CloseStale(ctx context.Context, session *models.Session) error {
	now := s.clock.Now()
	duration := s.maxSessionDuration

	session.EndTime = &now
	session.DurationSeconds = &duration
	session.Status = models.SessionInvalid
	session.Validation = &models.SessionValidation{
		ServerValidated: true,
		AnomalyScore:    1.0,
		Flags:           []string{FlagAutoClosedStale},
		Rules: models.ValidationRules{
			MaxDuration:      true,
			ReasonableHours:  true,
			DeviceConsistent: true,
			TimezoneMatch:    true,
			NoOverlap:        true,
		},
		ValidatedAt: now,
	}
	session.UpdatedAt = now

	if err := s.sessions.TransitionFromActive(ctx, session); err != nil {
		return err
	}

	log.Printf("Auto-closed stale session %s for user %s", session.ID, session.UserID)
	return nil
}

// StaleThreshold is the abandonment cutoff shared with the sweeper.
func (s *SessionService) StaleThreshold() time.Duration {
	return s.staleThreshold
}

func (s *SessionService) isStale(session *models.Session) bool {
	return s.clock.Now().Sub(session.StartTime) >= s.staleThreshold
}
