package schedule_test

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/schedule"
	"github.com/stretchr/testify/assert"
)

func TestPeriodDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		freq models.Frequency
		want int
	}{
		{models.FrequencyDaily, 1},
		{models.FrequencyWeekly, 7},
		{models.FrequencyMonthly, 30},
		{models.FrequencyQuarterly, 90},
		{models.FrequencyYearly, 365},
		{"Ежедневно", 1},
		{"еженедельно", 7},
		{"ежемесячно", 30},
		{"Ежеквартально", 90},
		{"ежегодно", 365},
		{"раз в 2 недели", 14},
		{"раз в 3 месяца", 90},
		{"каждые 10 дней", 10},
		{"every 5 days", 5},
		{"", 1},
		{"whenever", 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, schedule.PeriodDays(tt.freq))
		})
	}
}

func TestOccurs(t *testing.T) {
	t.Parallel()

	monday := civil.Date{Year: 2025, Month: 3, Day: 3}
	tuesday := civil.Date{Year: 2025, Month: 3, Day: 4}

	t.Run("daily fires every day", func(t *testing.T) {
		t.Parallel()
		assert.True(t, schedule.Occurs(models.FrequencyDaily, monday))
		assert.True(t, schedule.Occurs(models.FrequencyDaily, tuesday))
	})

	t.Run("weekly fires on mondays", func(t *testing.T) {
		t.Parallel()
		assert.True(t, schedule.Occurs(models.FrequencyWeekly, monday))
		assert.False(t, schedule.Occurs(models.FrequencyWeekly, tuesday))
	})

	t.Run("monthly fires on the first", func(t *testing.T) {
		t.Parallel()
		assert.True(t, schedule.Occurs(models.FrequencyMonthly, civil.Date{Year: 2025, Month: 3, Day: 1}))
		assert.False(t, schedule.Occurs(models.FrequencyMonthly, tuesday))
	})

	t.Run("quarterly fires on quarter starts", func(t *testing.T) {
		t.Parallel()
		assert.True(t, schedule.Occurs(models.FrequencyQuarterly, civil.Date{Year: 2025, Month: 4, Day: 1}))
		assert.True(t, schedule.Occurs(models.FrequencyQuarterly, civil.Date{Year: 2025, Month: 10, Day: 1}))
		assert.False(t, schedule.Occurs(models.FrequencyQuarterly, civil.Date{Year: 2025, Month: 3, Day: 1}))
	})

	t.Run("yearly fires on january first", func(t *testing.T) {
		t.Parallel()
		assert.True(t, schedule.Occurs(models.FrequencyYearly, civil.Date{Year: 2026, Month: 1, Day: 1}))
		assert.False(t, schedule.Occurs(models.FrequencyYearly, civil.Date{Year: 2026, Month: 2, Day: 1}))
	})

	t.Run("custom period uses day of year", func(t *testing.T) {
		t.Parallel()
		assert.True(t, schedule.Occurs("раз в 2 недели", civil.Date{Year: 2025, Month: 1, Day: 14}))
		assert.False(t, schedule.Occurs("раз в 2 недели", civil.Date{Year: 2025, Month: 1, Day: 15}))
	})
}
