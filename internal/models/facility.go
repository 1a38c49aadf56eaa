package models

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// WorkingHours is the daily availability window in facility-local time.
type WorkingHours struct {
	Start civil.Time
	End   civil.Time
}

// CompletionRequirements are facility rules checked when a task is completed.
type CompletionRequirements struct {
	Photo     bool // at least MinPhotos (minimum one) photo references
	Comment   bool // a non-blank completion comment
	MinPhotos int
}

// RequiredPhotos returns how many photos a completion must carry.
func (r CompletionRequirements) RequiredPhotos() int {
	if !r.Photo {
		return 0
	}
	return max(1, r.MinPhotos)
}

// Facility is the hierarchy root that owns the schedule every task below it follows.
type Facility struct {
	ID           string
	Name         string
	OwnerID      string // assignee (manager) responsible for the facility
	NotifyChatID int64  // Telegram chat for notifications, zero disables
	Timezone     string
	WorkingDays  []time.Weekday // empty means Monday to Friday
	WorkingHours *WorkingHours  // nil means the whole day
	Requirements CompletionRequirements
}

// DefaultWorkingDays is used when a facility has no working days configured.
func DefaultWorkingDays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

// ParseClock parses "HH:MM" into a civil time.
func ParseClock(raw string) (civil.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d:%d", &hour, &minute); err != nil {
		return civil.Time{}, fmt.Errorf("%w: invalid clock %q: %w", ErrValidation, raw, err)
	}

	clock := civil.Time{Hour: hour, Minute: minute}
	if !clock.IsValid() {
		return civil.Time{}, fmt.Errorf("%w: invalid clock %q", ErrValidation, raw)
	}

	return clock, nil
}

// FormatClock renders a civil time as "HH:MM".
func FormatClock(clock civil.Time) string {
	return fmt.Sprintf("%02d:%02d", clock.Hour, clock.Minute)
}

// ParseWeekday parses weekday names such as "MONDAY" or "mon".
func ParseWeekday(raw string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for day := time.Sunday; day <= time.Saturday; day++ {
		full := strings.ToLower(day.String())
		if name == full || name == full[:3] {
			return day, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: unknown weekday %q", ErrValidation, raw)
}

// WeekdayNames renders weekdays the way they are stored, e.g. "MONDAY".
func WeekdayNames(days []time.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, day := range days {
		out = append(out, strings.ToUpper(day.String()))
	}
	return out
}
