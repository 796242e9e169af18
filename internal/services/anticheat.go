package services

import (
	"time"

	"studysync-backend/internal/models"
)

const (
	FlagExcessiveDuration   = "excessive_duration"
	FlagRoundNumberDuration = "round_number_duration"
	FlagVeryShortSession    = "very_short_session"
	FlagOvernightSession    = "overnight_session"
	FlagWeekendMarathon     = "weekend_marathon"
	FlagAutoClosedStale     = "auto_closed_stale"
)

// nightOwlBucket is the preferred-study-time bucket that exempts a user
// from the unusual-hours penalty.
const nightOwlBucket = "00:00-03:00"

// AntiCheatService scores completed sessions for abuse heuristics. It is
// a pure function of its inputs; the only clock read is the caller-supplied
// validation timestamp.
type AntiCheatService struct {
	maxSessionDuration int64
}

func NewAntiCheatService(maxSessionDuration int64) *AntiCheatService {
	return &AntiCheatService{maxSessionDuration: maxSessionDuration}
}

// Validate produces the validation verdict for a session that just ended.
// recent must hold the user's completed sessions covering the window from
// one hour before the session's start through its end; it feeds both the
// rapid-succession heuristic and the overlap rule.
func (s *AntiCheatService) Validate(session *models.Session, user *models.User, recent []models.Session, now time.Time) models.SessionValidation {
	return models.SessionValidation{
		ServerValidated: true,
		AnomalyScore:    s.anomalyScore(session, user, recent),
		Flags:           s.detectSuspiciousPatterns(session),
		Rules:           s.checkRules(session, recent),
		ValidatedAt:     now,
	}
}

func (s *AntiCheatService) anomalyScore(session *models.Session, user *models.User, recent []models.Session) float64 {
	durationScore := s.durationAnomalyScore(session, user.Analytics)
	timeScore := timeAnomalyScore(session, user.Analytics)
	patternScore := patternAnomalyScore(session, recent)
	deviceScore := deviceAnomalyScore(session, user)

	return durationScore*0.4 + timeScore*0.2 + patternScore*0.3 + deviceScore*0.1
}

func (s *AntiCheatService) durationAnomalyScore(session *models.Session, analytics models.UserAnalytics) float64 {
	if session.DurationSeconds == nil {
		return 0.0
	}
	duration := *session.DurationSeconds

	if duration > s.maxSessionDuration {
		return 1.0
	}

	// Compare with the user's historical average
	if analytics.AverageSessionSeconds > 0 {
		avg := float64(analytics.AverageSessionSeconds)
		deviation := float64(duration) - avg
		if deviation < 0 {
			deviation = -deviation
		}
		relative := deviation / avg / 3.0
		if relative > 1.0 {
			return 1.0
		}
		return relative
	}

	return 0.0
}

func timeAnomalyScore(session *models.Session, analytics models.UserAnalytics) float64 {
	if isUnusualHours(session.StartTime) && !isNightOwl(analytics) {
		return 0.8
	}
	return 0.0
}

func patternAnomalyScore(session *models.Session, recent []models.Session) float64 {
	threshold := session.StartTime.Add(-time.Hour)
	count := 0
	for _, other := range recent {
		if other.ID == session.ID {
			continue
		}
		if !other.StartTime.Before(threshold) && other.StartTime.Before(session.StartTime) {
			count++
		}
	}
	if count > 3 {
		return 0.9 // too many sessions in rapid succession
	}
	return 0.0
}

func deviceAnomalyScore(session *models.Session, user *models.User) float64 {
	deviceID := session.Source.DeviceID
	if deviceID == nil || *deviceID == "" {
		return 0.5
	}
	if user.KnowsDevice(*deviceID) {
		return 0.0
	}
	return 0.3
}

func (s *AntiCheatService) detectSuspiciousPatterns(session *models.Session) []string {
	flags := []string{}

	if session.DurationSeconds != nil {
		duration := *session.DurationSeconds

		if duration > s.maxSessionDuration {
			flags = append(flags, FlagExcessiveDuration)
		}
		if duration >= 3600 && duration%3600 == 0 {
			flags = append(flags, FlagRoundNumberDuration)
		}
		if duration < 60 {
			flags = append(flags, FlagVeryShortSession)
		}
	}

	if isOvernightSession(session) {
		flags = append(flags, FlagOvernightSession)
	}

	if isWeekendMarathon(session) {
		flags = append(flags, FlagWeekendMarathon)
	}

	return flags
}

func (s *AntiCheatService) checkRules(session *models.Session, recent []models.Session) models.ValidationRules {
	return models.ValidationRules{
		MaxDuration:      session.DurationSeconds == nil || *session.DurationSeconds <= s.maxSessionDuration,
		ReasonableHours:  !isUnusualHours(session.StartTime),
		DeviceConsistent: session.Source.DeviceID != nil && *session.Source.DeviceID != "",
		TimezoneMatch:    true, // timezone validation not implemented upstream
		NoOverlap:        !hasOverlap(session, recent),
	}
}

// isUnusualHours reports whether the start time falls strictly between
// 02:00 and 05:00 UTC.
func isUnusualHours(start time.Time) bool {
	utc := start.UTC()
	secs := utc.Hour()*3600 + utc.Minute()*60 + utc.Second()
	return secs > 2*3600 && secs < 5*3600
}

func isNightOwl(analytics models.UserAnalytics) bool {
	for _, bucket := range analytics.PreferredStudyTimes {
		if bucket == nightOwlBucket {
			return true
		}
	}
	return false
}

func isOvernightSession(session *models.Session) bool {
	if session.EndTime == nil {
		return false
	}
	startY, startM, startD := session.StartTime.UTC().Date()
	endY, endM, endD := session.EndTime.UTC().Date()
	return startY != endY || startM != endM || startD != endD
}

func isWeekendMarathon(session *models.Session) bool {
	if session.DurationSeconds == nil {
		return false
	}
	day := session.StartTime.UTC().Weekday()
	isWeekend := day == time.Saturday || day == time.Sunday
	return isWeekend && *session.DurationSeconds > 28800
}

// hasOverlap reports whether another completed session intersects the
// candidate's [start, end) span. Back-to-back sessions that merely touch
// at a boundary do not overlap.
func hasOverlap(session *models.Session, recent []models.Session) bool {
	if session.EndTime == nil {
		return false
	}
	for _, other := range recent {
		if other.ID == session.ID || other.EndTime == nil {
			continue
		}
		if other.StartTime.Before(*session.EndTime) && other.EndTime.After(session.StartTime) {
			return true
		}
	}
	return false
}
