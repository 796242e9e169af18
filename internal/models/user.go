package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID     `json:"id"`
	Email          string        `json:"email"`
	DisplayName    string        `json:"display_name"`
	AvatarURL      *string       `json:"avatar_url,omitempty"`
	Timezone       string        `json:"timezone"`
	KnownDeviceIDs []string      `json:"known_device_ids"`
	Analytics      UserAnalytics `json:"analytics"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// UserAnalytics is the rolling aggregate of a user's completed sessions.
// It is recomputed once per completed session, after validation has
// settled the session's final status.
type UserAnalytics struct {
	TotalStudySeconds     int64      `json:"total_study_seconds"`
	AverageSessionSeconds int64      `json:"average_session_seconds"`
	CurrentStreak         int        `json:"current_streak"`
	LongestStreak         int        `json:"longest_streak"`
	PreferredStudyTimes   []string   `json:"preferred_study_times"`
	LastActivityAt        *time.Time `json:"last_activity_at,omitempty"`
}

// KnowsDevice reports whether the device identifier matches one of the
// user's known devices.
func (u *User) KnowsDevice(deviceID string) bool {
	for _, id := range u.KnownDeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}
