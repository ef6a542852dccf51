package domain

import "time"

// DefaultStreakWindow is the number of days scanned when computing a streak.
const DefaultStreakWindow = 30

// StreakDay is the scoring state of one stored day.
type StreakDay struct {
	Date    time.Time
	Counted bool
	Pass    bool
}

// ComputeStreak counts consecutive passing counted days ending at asOf,
// scanning at most window days backward. Stored days that are not counted
// are skipped. A counted failure stops the count, as does a missing day
// that is a counted weekday. Missing days that are not counted weekdays are
// skipped. The result depends only on its inputs.
func ComputeStreak(days []StreakDay, asOf time.Time, window int, countedWeekday func(time.Weekday) bool) int {
	if window <= 0 {
		window = DefaultStreakWindow
	}
	byDate := make(map[string]StreakDay, len(days))
	for _, d := range days {
		byDate[FormatDate(d.Date)] = d
	}

	anchor := Day(asOf)
	streak := 0
	for i := 0; i < window; i++ {
		date := anchor.AddDate(0, 0, -i)
		day, ok := byDate[FormatDate(date)]
		if !ok {
			if countedWeekday != nil && countedWeekday(date.Weekday()) {
				break
			}
			continue
		}
		if !day.Counted {
			continue
		}
		if !day.Pass {
			break
		}
		streak++
	}
	return streak
}
