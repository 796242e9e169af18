package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studysync-backend/internal/models"
)

// SessionStore is the durable session storage contract. Implementations
// must provide the conditional-transition semantics documented on
// CreateActive and TransitionFromActive; everything else is plain reads.
type SessionStore interface {
	// CreateActive persists a new active session. It fails with
	// ErrActiveSessionExists if the user already has an active session,
	// atomically with respect to concurrent creates for the same user.
	CreateActive(ctx context.Context, s *models.Session) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// FindActiveByUser returns the user's active session, or nil if none.
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Session, error)

	// TransitionFromActive writes the session's terminal state (end time,
	// duration, status, validation, metadata) only if the stored status is
	// still active. It fails with ErrConcurrentModificationLost when
	// another writer closed the session first.
	TransitionFromActive(ctx context.Context, s *models.Session) error

	FindCompletedByUserInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.Session, error)
	FindCompletedByGroupInRange(ctx context.Context, groupID uuid.UUID, start, end time.Time) ([]models.Session, error)

	// FindStaleActive returns active sessions started before the cutoff.
	FindStaleActive(ctx context.Context, before time.Time) ([]models.Session, error)

	// CountCompletedByUserInRange counts sessions that reached a terminal
	// status counting toward analytics (completed or suspicious) and
	// started within [start, end).
	CountCompletedByUserInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) (int64, error)

	// FindByUserPaged lists the user's sessions ordered by start time
	// descending.
	FindByUserPaged(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Session, error)
}

// UserStore exposes the user identities and rolling analytics this core
// consumes and mutates. Identity management itself lives elsewhere.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
	SaveAnalytics(ctx context.Context, userID uuid.UUID, analytics models.UserAnalytics) error
}

// Cache is a keyed JSON cache with explicit prefix invalidation and no
// implicit expiry.
type Cache interface {
	// Get unmarshals the cached value into dest and reports whether the
	// key was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	EvictPrefix(ctx context.Context, prefix string) error
}

// EventPublisher notifies interested listeners that a group's leaderboard
// changed. Publishing is best effort.
type EventPublisher interface {
	PublishLeaderboardUpdated(ctx context.Context, groupID uuid.UUID) error
}

// AnalyticsQueue re-enqueues failed analytics refreshes for background
// retry, so a completed session can never permanently miss its analytics
// update.
type AnalyticsQueue interface {
	EnqueueRefresh(ctx context.Context, userID, sessionID uuid.UUID) error
}
