package services

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"studysync-backend/internal/models"
)

const testMaxDuration = 43200

// Wednesday noon UTC: outside every time-based heuristic.
var quietStart = time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

func endedSession(userID uuid.UUID, start time.Time, durationSec int64, deviceID *string) *models.Session {
	end := start.Add(time.Duration(durationSec) * time.Second)
	return &models.Session{
		ID:              uuid.New(),
		UserID:          userID,
		StartTime:       start,
		EndTime:         &end,
		DurationSeconds: &durationSec,
		Status:          models.SessionCompleted,
		Source: models.SessionSource{
			Platform: "mobile",
			DeviceID: deviceID,
		},
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestValidate_Deterministic(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser()
	user.KnownDeviceIDs = []string{"device-1"}
	session := endedSession(user.ID, quietStart, 5400, strPtr("device-1"))
	now := quietStart.Add(2 * time.Hour)

	first := svc.Validate(session, &user, nil, now)
	second := svc.Validate(session, &user, nil, now)

	if first.AnomalyScore != second.AnomalyScore {
		t.Fatalf("Expected identical scores, got %v and %v", first.AnomalyScore, second.AnomalyScore)
	}
	if !reflect.DeepEqual(first.Flags, second.Flags) {
		t.Fatalf("Expected identical flags, got %v and %v", first.Flags, second.Flags)
	}
	if !reflect.DeepEqual(first.Rules, second.Rules) {
		t.Fatalf("Expected identical rules, got %+v and %+v", first.Rules, second.Rules)
	}
}

func TestValidate_NewUserRoundHourNoDevice(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser() // no history, no known devices
	start := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	session := endedSession(user.ID, start, 3600, nil)

	verdict := svc.Validate(session, &user, nil, start.Add(time.Hour))

	// Only the missing device contributes: 0.5 * 0.1
	if !approxEqual(verdict.AnomalyScore, 0.05) {
		t.Errorf("Expected score 0.05, got %v", verdict.AnomalyScore)
	}
	if !verdict.HasFlag(FlagRoundNumberDuration) {
		t.Errorf("Expected %s flag, got %v", FlagRoundNumberDuration, verdict.Flags)
	}
	if len(verdict.Flags) != 1 {
		t.Errorf("Expected exactly one flag, got %v", verdict.Flags)
	}
}

func TestDurationScore(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)

	tests := []struct {
		name     string
		duration int64
		avg      int64
		expected float64
	}{
		{"exceeds max", testMaxDuration + 1, 0, 1.0},
		{"no history under max", 5400, 0, 0.0},
		{"deviation from average", 5400, 3600, 0.5 / 3.0},
		{"deviation capped at 1", 40000, 100, 1.0},
		{"matches average exactly", 3600, 3600, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			user := newTestUser()
			user.Analytics.AverageSessionSeconds = tc.avg
			session := endedSession(user.ID, quietStart, tc.duration, nil)

			got := svc.durationAnomalyScore(session, user.Analytics)
			if !approxEqual(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestTimeScore_UnusualHoursWindow(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		nightOwl bool
		expected float64
	}{
		{"03:00 no pattern", time.Date(2026, 1, 7, 3, 0, 0, 0, time.UTC), false, 0.8},
		{"03:00 night owl", time.Date(2026, 1, 7, 3, 0, 0, 0, time.UTC), true, 0.0},
		{"02:00 boundary excluded", time.Date(2026, 1, 7, 2, 0, 0, 0, time.UTC), false, 0.0},
		{"02:00:01 included", time.Date(2026, 1, 7, 2, 0, 1, 0, time.UTC), false, 0.8},
		{"05:00 boundary excluded", time.Date(2026, 1, 7, 5, 0, 0, 0, time.UTC), false, 0.0},
		{"04:59:59 included", time.Date(2026, 1, 7, 4, 59, 59, 0, time.UTC), false, 0.8},
		{"midnight excluded", time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC), false, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			user := newTestUser()
			if tc.nightOwl {
				user.Analytics.PreferredStudyTimes = []string{"00:00-03:00"}
			}
			session := endedSession(user.ID, tc.start, 5400, nil)

			got := timeAnomalyScore(session, user.Analytics)
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestPatternScore_RapidSuccession(t *testing.T) {
	user := newTestUser()
	session := endedSession(user.ID, quietStart, 5400, nil)

	makeRecent := func(n int) []models.Session {
		recent := []models.Session{}
		for i := 0; i < n; i++ {
			prior := endedSession(user.ID, quietStart.Add(-time.Duration(i+1)*5*time.Minute), 120, nil)
			recent = append(recent, *prior)
		}
		return recent
	}

	if got := patternAnomalyScore(session, makeRecent(4)); got != 0.9 {
		t.Errorf("Expected 0.9 for 4 rapid sessions, got %v", got)
	}
	if got := patternAnomalyScore(session, makeRecent(3)); got != 0.0 {
		t.Errorf("Expected 0.0 for 3 rapid sessions, got %v", got)
	}
}

func TestPatternScore_IgnoresSessionsOutsideWindow(t *testing.T) {
	user := newTestUser()
	session := endedSession(user.ID, quietStart, 5400, nil)

	recent := []models.Session{}
	for i := 0; i < 5; i++ {
		prior := endedSession(user.ID, quietStart.Add(-2*time.Hour), 120, nil)
		recent = append(recent, *prior)
	}

	if got := patternAnomalyScore(session, recent); got != 0.0 {
		t.Errorf("Expected sessions before the window to be ignored, got %v", got)
	}
}

func TestDeviceScore(t *testing.T) {
	user := newTestUser()
	user.KnownDeviceIDs = []string{"device-1"}

	tests := []struct {
		name     string
		deviceID *string
		expected float64
	}{
		{"no device", nil, 0.5},
		{"empty device", strPtr(""), 0.5},
		{"unknown device", strPtr("device-9"), 0.3},
		{"known device", strPtr("device-1"), 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			session := endedSession(user.ID, quietStart, 5400, tc.deviceID)
			got := deviceAnomalyScore(session, &user)
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestFlags_RoundNumberDuration(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser()

	tests := []struct {
		duration int64
		flagged  bool
	}{
		{3600, true},
		{7200, true},
		{3599, false},
		{0, false},
	}

	for _, tc := range tests {
		session := endedSession(user.ID, quietStart, tc.duration, nil)
		verdict := svc.Validate(session, &user, nil, quietStart.Add(time.Hour))
		if verdict.HasFlag(FlagRoundNumberDuration) != tc.flagged {
			t.Errorf("Duration %d: expected flagged=%v, flags %v", tc.duration, tc.flagged, verdict.Flags)
		}
	}
}

func TestFlags_VeryShortSession(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser()

	short := svc.Validate(endedSession(user.ID, quietStart, 59, nil), &user, nil, quietStart.Add(time.Minute))
	if !short.HasFlag(FlagVeryShortSession) {
		t.Errorf("Expected 59s session flagged, got %v", short.Flags)
	}

	ok := svc.Validate(endedSession(user.ID, quietStart, 61, nil), &user, nil, quietStart.Add(time.Minute))
	if ok.HasFlag(FlagVeryShortSession) {
		t.Errorf("Expected 61s session unflagged, got %v", ok.Flags)
	}
}

func TestFlags_OvernightSession(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser()

	lateStart := time.Date(2026, 1, 7, 23, 30, 0, 0, time.UTC)
	overnight := svc.Validate(endedSession(user.ID, lateStart, 3700, nil), &user, nil, lateStart.Add(2*time.Hour))
	if !overnight.HasFlag(FlagOvernightSession) {
		t.Errorf("Expected session crossing midnight flagged, got %v", overnight.Flags)
	}

	sameDay := svc.Validate(endedSession(user.ID, quietStart, 3700, nil), &user, nil, quietStart.Add(2*time.Hour))
	if sameDay.HasFlag(FlagOvernightSession) {
		t.Errorf("Expected same-day session unflagged, got %v", sameDay.Flags)
	}
}

func TestFlags_WeekendMarathon(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser()

	saturday := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	wednesday := time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		start    time.Time
		duration int64
		flagged  bool
	}{
		{"saturday over 8h", saturday, 28801, true},
		{"saturday exactly 8h", saturday, 28800, false},
		{"weekday over 8h", wednesday, 30000, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verdict := svc.Validate(endedSession(user.ID, tc.start, tc.duration, nil), &user, nil, tc.start.Add(10*time.Hour))
			if verdict.HasFlag(FlagWeekendMarathon) != tc.flagged {
				t.Errorf("Expected flagged=%v, flags %v", tc.flagged, verdict.Flags)
			}
		})
	}
}

func TestRules(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser()
	user.KnownDeviceIDs = []string{"device-1"}

	session := endedSession(user.ID, quietStart, 5400, strPtr("device-1"))
	verdict := svc.Validate(session, &user, nil, quietStart.Add(2*time.Hour))

	rules := verdict.Rules
	if !rules.MaxDuration || !rules.ReasonableHours || !rules.DeviceConsistent || !rules.TimezoneMatch || !rules.NoOverlap {
		t.Fatalf("Expected all rules to pass for an unremarkable session, got %+v", rules)
	}

	nightSession := endedSession(user.ID, time.Date(2026, 1, 7, 3, 0, 0, 0, time.UTC), 5400, nil)
	nightVerdict := svc.Validate(nightSession, &user, nil, quietStart)
	if nightVerdict.Rules.ReasonableHours {
		t.Error("Expected reasonable-hours rule to fail for a 03:00 start")
	}
	if nightVerdict.Rules.DeviceConsistent {
		t.Error("Expected device rule to fail without a device id")
	}
}

func TestRules_Overlap(t *testing.T) {
	svc := NewAntiCheatService(testMaxDuration)
	user := newTestUser()

	session := endedSession(user.ID, quietStart, 3700, nil)

	// Overlapping completed session inside the candidate's span.
	overlapping := *endedSession(user.ID, quietStart.Add(10*time.Minute), 300, nil)
	verdict := svc.Validate(session, &user, []models.Session{overlapping}, quietStart.Add(2*time.Hour))
	if verdict.Rules.NoOverlap {
		t.Error("Expected overlap rule to fail with an intersecting session")
	}

	// Back-to-back sessions touch at the boundary but do not overlap.
	backToBack := *endedSession(user.ID, quietStart.Add(-30*time.Minute), 1800, nil)
	verdict = svc.Validate(session, &user, []models.Session{backToBack}, quietStart.Add(2*time.Hour))
	if !verdict.Rules.NoOverlap {
		t.Error("Expected back-to-back session not to count as overlapping")
	}
}
