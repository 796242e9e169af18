package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionCompleted  SessionStatus = "completed"
	SessionInvalid    SessionStatus = "invalid"
	SessionSuspicious SessionStatus = "suspicious"
)

// IsTerminal reports whether the status can never change again.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionInvalid || s == SessionSuspicious
}

// CountsTowardAnalytics reports whether sessions in this status contribute
// to the owner's rolling study statistics.
func (s SessionStatus) CountsTowardAnalytics() bool {
	return s == SessionCompleted || s == SessionSuspicious
}

type Session struct {
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"user_id"`
	GroupID         *uuid.UUID         `json:"group_id,omitempty"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         *time.Time         `json:"end_time,omitempty"`
	DurationSeconds *int64             `json:"duration_seconds,omitempty"`
	Status          SessionStatus      `json:"status"`
	Source          SessionSource      `json:"source"`
	Metadata        SessionMetadata    `json:"metadata"`
	Validation      *SessionValidation `json:"validation,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type SessionSource struct {
	Platform   string  `json:"platform"`
	AppVersion *string `json:"app_version,omitempty"`
	DeviceID   *string `json:"device_id,omitempty"`
}

type SessionMetadata struct {
	StudySubject *string `json:"study_subject,omitempty"`
	Location     *string `json:"location,omitempty"`
	Mood         *string `json:"mood,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Productivity *int    `json:"productivity,omitempty"`
}

type SessionValidation struct {
	ServerValidated bool            `json:"server_validated"`
	AnomalyScore    float64         `json:"anomaly_score"`
	Flags           []string        `json:"flags"`
	Rules           ValidationRules `json:"rules"`
	ValidatedAt     time.Time       `json:"validated_at"`
}

// ValidationRules are informational check results; none is individually fatal.
type ValidationRules struct {
	MaxDuration      bool `json:"max_duration"`
	ReasonableHours  bool `json:"reasonable_hours"`
	DeviceConsistent bool `json:"device_consistent"`
	TimezoneMatch    bool `json:"timezone_match"`
	NoOverlap        bool `json:"no_overlap"`
}

// HasFlag reports whether the validation raised the given flag.
func (v *SessionValidation) HasFlag(flag string) bool {
	if v == nil {
		return false
	}
	for _, f := range v.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// CurrentDuration is the live elapsed time of an active session. It is
// derived on read and never persisted.
func (s *Session) CurrentDuration(now time.Time) int64 {
	d := int64(now.Sub(s.StartTime).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
