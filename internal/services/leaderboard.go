package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"studysync-backend/internal/models"
)

// LeaderboardService computes ranked weekly group totals from completed
// sessions, cache-aside keyed by (group, ISO week) with explicit
// invalidation and no implicit expiry. Concurrent recomputes of the same
// week are idempotent, so the cache-miss path takes no lock; the final
// cache write is last-writer-wins.
type LeaderboardService struct {
	sessions   SessionStore
	users      UserStore
	cache      Cache
	clock      Clock
	publisher  EventPublisher
	maxEntries int
}

func NewLeaderboardService(sessions SessionStore, users UserStore, cache Cache, clock Clock, maxEntries int) *LeaderboardService {
	return &LeaderboardService{
		sessions:   sessions,
		users:      users,
		cache:      cache,
		clock:      clock,
		maxEntries: maxEntries,
	}
}

// SetPublisher wires the optional live-update publisher.
func (s *LeaderboardService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// GetWeeklyLeaderboard returns the ranked leaderboard for the group and
// ISO week, computing and caching it on a miss. An empty week means the
// week containing now.
func (s *LeaderboardService) GetWeeklyLeaderboard(ctx context.Context, groupID uuid.UUID, week string) (*models.WeeklyLeaderboard, error) {
	if week == "" {
		week = WeekKey(s.clock.Now())
	}

	weekStart, weekEnd, err := WeekBounds(week)
	if err != nil {
		return nil, err
	}

	key := leaderboardCacheKey(groupID, week)

	var cached models.WeeklyLeaderboard
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Printf("Leaderboard cache read failed for %s: %v", key, err)
	} else if hit {
		return &cached, nil
	}

	entries, err := s.computeEntries(ctx, groupID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	board := &models.WeeklyLeaderboard{
		GroupID:           groupID,
		Week:              week,
		WeekStart:         weekStart,
		WeekEnd:           weekEnd,
		Entries:           entries,
		TotalParticipants: len(entries),
	}

	if err := s.cache.Set(ctx, key, board); err != nil {
		log.Printf("Leaderboard cache write failed for %s: %v", key, err)
	}

	return board, nil
}

// Invalidate evicts every cached week for the group. The next read
// recomputes lazily.
func (s *LeaderboardService) Invalidate(ctx context.Context, groupID uuid.UUID) error {
	if err := s.cache.EvictPrefix(ctx, leaderboardCachePrefix(groupID)); err != nil {
		return fmt.Errorf("evict leaderboard cache: %w", err)
	}
	log.Printf("Invalidated leaderboard cache for group %s", groupID)

	if s.publisher != nil {
		if err := s.publisher.PublishLeaderboardUpdated(ctx, groupID); err != nil {
			log.Printf("Failed to publish leaderboard update for group %s: %v", groupID, err)
		}
	}
	return nil
}

type memberTotals struct {
	userID         uuid.UUID
	totalSeconds   int64
	sessionCount   int
	longestSession int64
}

func (s *LeaderboardService) computeEntries(ctx context.Context, groupID uuid.UUID, start, end time.Time) ([]models.LeaderboardEntry, error) {
	sessions, err := s.sessions.FindCompletedByGroupInRange(ctx, groupID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load group sessions: %w", err)
	}

	byUser := make(map[uuid.UUID]*memberTotals)
	for i := range sessions {
		session := &sessions[i]
		if session.DurationSeconds == nil {
			continue
		}
		totals := byUser[session.UserID]
		if totals == nil {
			totals = &memberTotals{userID: session.UserID}
			byUser[session.UserID] = totals
		}
		totals.totalSeconds += *session.DurationSeconds
		totals.sessionCount++
		if *session.DurationSeconds > totals.longestSession {
			totals.longestSession = *session.DurationSeconds
		}
	}

	ranked := make([]*memberTotals, 0, len(byUser))
	for _, totals := range byUser {
		ranked = append(ranked, totals)
	}
	// Descending by total; equal totals break deterministically by user id.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].totalSeconds != ranked[j].totalSeconds {
			return ranked[i].totalSeconds > ranked[j].totalSeconds
		}
		return ranked[i].userID.String() < ranked[j].userID.String()
	})
	if len(ranked) > s.maxEntries {
		ranked = ranked[:s.maxEntries]
	}

	userIDs := make([]uuid.UUID, len(ranked))
	for i, totals := range ranked {
		userIDs[i] = totals.userID
	}
	users, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard users: %w", err)
	}
	userMap := make(map[uuid.UUID]*models.User, len(users))
	for i := range users {
		userMap[users[i].ID] = &users[i]
	}

	entries := make([]models.LeaderboardEntry, 0, len(ranked))
	for _, totals := range ranked {
		user := userMap[totals.userID]
		if user == nil {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			UserID:          totals.userID,
			DisplayName:     user.DisplayName,
			AvatarURL:       user.AvatarURL,
			Rank:            len(entries) + 1,
			TotalSeconds:    totals.totalSeconds,
			SessionCount:    totals.sessionCount,
			AverageDuration: float64(totals.totalSeconds) / float64(totals.sessionCount),
			LongestSession:  totals.longestSession,
			StreakDays:      user.Analytics.CurrentStreak,
		})
	}

	return entries, nil
}

func leaderboardCacheKey(groupID uuid.UUID, week string) string {
	return leaderboardCachePrefix(groupID) + week
}

func leaderboardCachePrefix(groupID uuid.UUID) string {
	return "leaderboard:" + groupID.String() + ":"
}
