package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/models"
)

const (
	periodDaily     = 1
	periodWeekly    = 7
	periodMonthly   = 30
	periodQuarterly = 90
	periodYearly    = 365
)

var periodPattern = regexp.MustCompile(`(\d+)\s*(дн|день|дня|дней|недел|месяц|day|week|month)`)

// PeriodDays converts a frequency descriptor into a period in days.
// Unrecognised descriptors are treated as daily.
func PeriodDays(freq models.Frequency) int {
	text := strings.ToLower(strings.TrimSpace(string(freq)))

	switch {
	case text == "" || text == string(models.FrequencyDaily) ||
		strings.Contains(text, "ежедневно") || strings.Contains(text, "каждый день"):
		return periodDaily
	case text == string(models.FrequencyWeekly) ||
		strings.Contains(text, "еженедельно") || strings.Contains(text, "раз в неделю"):
		return periodWeekly
	case text == string(models.FrequencyMonthly) ||
		strings.Contains(text, "ежемесячно") || strings.Contains(text, "раз в месяц"):
		return periodMonthly
	case text == string(models.FrequencyQuarterly) ||
		strings.Contains(text, "ежеквартально") || strings.Contains(text, "раз в квартал"):
		return periodQuarterly
	case text == string(models.FrequencyYearly) ||
		strings.Contains(text, "ежегодно") || strings.Contains(text, "раз в год"):
		return periodYearly
	}

	match := periodPattern.FindStringSubmatch(text)
	if match == nil {
		return periodDaily
	}

	count, err := strconv.Atoi(match[1])
	if err != nil || count <= 0 {
		return periodDaily
	}

	unit := match[2]
	switch {
	case strings.HasPrefix(unit, "недел") || unit == "week":
		return count * periodWeekly
	case strings.HasPrefix(unit, "месяц") || unit == "month":
		return count * periodMonthly
	default:
		return count
	}
}

// Occurs reports whether a work item with the given frequency fires on date.
// Weekly items fire on Mondays, monthly on the 1st, quarterly on the 1st of
// January, April, July and October, yearly on January 1st. Any other period N
// fires on every day of the year divisible by N.
func Occurs(freq models.Frequency, date civil.Date) bool {
	switch period := PeriodDays(freq); period {
	case periodDaily:
		return true
	case periodWeekly:
		return date.In(time.UTC).Weekday() == time.Monday
	case periodMonthly:
		return date.Day == 1
	case periodQuarterly:
		return date.Day == 1 && (date.Month-1)%3 == 0
	case periodYearly:
		return date.Day == 1 && date.Month == time.January
	default:
		return date.In(time.UTC).YearDay()%period == 0
	}
}
