package services

import (
	"context"
	"fmt"
	"time"

	"studysync-backend/internal/models"
)

const analyticsWindow = 30 * 24 * time.Hour

// AnalyticsService maintains each user's rolling study aggregates. It
// runs after session completion; it is not transactional with the
// session write, but every update must eventually land (the lifecycle
// enqueues a retry when an inline update fails).
type AnalyticsService struct {
	users    UserStore
	sessions SessionStore
	clock    Clock
}

func NewAnalyticsService(users UserStore, sessions SessionStore, clock Clock) *AnalyticsService {
	return &AnalyticsService{users: users, sessions: sessions, clock: clock}
}

// RecordCompletedSession folds one terminal session into the owner's
// analytics. Completed and suspicious sessions both count; invalid ones
// do not.
func (s *AnalyticsService) RecordCompletedSession(ctx context.Context, session *models.Session) error {
	if session.DurationSeconds == nil || !session.Status.CountsTowardAnalytics() {
		return nil
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	now := s.clock.Now()
	analytics := user.Analytics

	analytics.TotalStudySeconds += *session.DurationSeconds

	count, err := s.sessions.CountCompletedByUserInRange(ctx, session.UserID, now.Add(-analyticsWindow), now)
	if err != nil {
		return fmt.Errorf("count recent sessions: %w", err)
	}
	if count > 0 {
		analytics.AverageSessionSeconds = analytics.TotalStudySeconds / count
	}

	analytics.CurrentStreak, analytics.LongestStreak = advanceStreak(analytics, now)
	analytics.PreferredStudyTimes = recordStudyTimeBucket(analytics.PreferredStudyTimes, session.StartTime)
	analytics.LastActivityAt = &now

	return s.users.SaveAnalytics(ctx, session.UserID, analytics)
}

// advanceStreak extends the consecutive-day streak when the previous
// activity fell on the preceding UTC day, keeps it on a same-day repeat,
// and resets it otherwise.
func advanceStreak(analytics models.UserAnalytics, now time.Time) (current, longest int) {
	current = analytics.CurrentStreak
	if current < 1 {
		current = 1
	} else if analytics.LastActivityAt != nil {
		last := analytics.LastActivityAt.UTC()
		switch utcDate(now).Sub(utcDate(last)) {
		case 0:
			// Same day, streak unchanged.
		case 24 * time.Hour:
			current++
		default:
			current = 1
		}
	} else {
		current = 1
	}

	longest = analytics.LongestStreak
	if current > longest {
		longest = current
	}
	return current, longest
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// recordStudyTimeBucket tracks which 3-hour start-of-day buckets the user
// studies in, e.g. "21:00-24:00". The 00:00-03:00 bucket marks an
// established late-night pattern for the scoring engine.
func recordStudyTimeBucket(buckets []string, start time.Time) []string {
	hour := (start.UTC().Hour() / 3) * 3
	label := fmt.Sprintf("%02d:00-%02d:00", hour, hour+3)
	for _, b := range buckets {
		if b == label {
			return buckets
		}
	}
	return append(buckets, label)
}
