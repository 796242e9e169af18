package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WeekKey formats the ISO week containing t (UTC) as "2025-W03".
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// WeekBounds resolves an ISO week key to its half-open UTC instant range
// [weekStart, weekEnd), Monday-start.
func WeekBounds(week string) (time.Time, time.Time, error) {
	start, err := weekStart(week)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 7), nil
}

func weekStart(week string) (time.Time, error) {
	parts := strings.SplitN(week, "-W", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid ISO week %q", week)
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO week year %q", week)
	}
	weekNum, err := strconv.Atoi(parts[1])
	if err != nil || weekNum < 1 || weekNum > 53 {
		return time.Time{}, fmt.Errorf("invalid ISO week number %q", week)
	}

	// January 4 always falls in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	mondayOfWeek1 := jan4.AddDate(0, 0, 1-weekday)

	return mondayOfWeek1.AddDate(0, 0, (weekNum-1)*7), nil
}
