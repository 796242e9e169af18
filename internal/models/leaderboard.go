package models

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry is one ranked row of a weekly group leaderboard. It is
// derived from completed sessions and never persisted as source of truth.
type LeaderboardEntry struct {
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	AvatarURL       *string   `json:"avatar_url,omitempty"`
	Rank            int       `json:"rank"`
	TotalSeconds    int64     `json:"total_seconds"`
	SessionCount    int       `json:"session_count"`
	AverageDuration float64   `json:"average_duration"`
	LongestSession  int64     `json:"longest_session"`
	StreakDays      int       `json:"streak_days"`
}

// WeeklyLeaderboard is keyed by (group, ISO week), Monday-start UTC, with
// a half-open [WeekStart, WeekEnd) window.
type WeeklyLeaderboard struct {
	GroupID           uuid.UUID          `json:"group_id"`
	Week              string             `json:"week"`
	WeekStart         time.Time          `json:"week_start"`
	WeekEnd           time.Time          `json:"week_end"`
	Entries           []LeaderboardEntry `json:"entries"`
	TotalParticipants int                `json:"total_participants"`
}
