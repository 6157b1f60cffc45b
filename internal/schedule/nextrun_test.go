package schedule_test

import (
	"testing"
	"time"

	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestComputeNextRun_Daily(t *testing.T) {
	s := &models.Scheduler{
		Recurrence: models.RecurrenceDaily,
		TimeOfDay:  "02:00",
	}

	t.Run("before the configured time runs same day", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("after the configured time runs next day", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("exactly at the configured time runs next day", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), next)
	})
}

func TestComputeNextRun_Weekly(t *testing.T) {
	t.Run("later in the current week", func(t *testing.T) {
		// 2026-03-10 is a Tuesday; schedule for Friday (5).
		s := &models.Scheduler{
			Recurrence: models.RecurrenceWeekly,
			TimeOfDay:  "09:30",
			DayOfWeek:  intPtr(5),
		}
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 13, 9, 30, 0, 0, time.UTC), next)
		assert.Equal(t, time.Friday, next.Weekday())
	})

	t.Run("same weekday but time already passed rolls a full week", func(t *testing.T) {
		s := &models.Scheduler{
			Recurrence: models.RecurrenceWeekly,
			TimeOfDay:  "09:30",
			DayOfWeek:  intPtr(2), // Tuesday
		}
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC), next)
	})

	t.Run("sunday is day zero", func(t *testing.T) {
		s := &models.Scheduler{
			Recurrence: models.RecurrenceWeekly,
			TimeOfDay:  "00:15",
			DayOfWeek:  intPtr(0),
		}
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Sunday, next.Weekday())
		assert.Equal(t, time.Date(2026, 3, 15, 0, 15, 0, 0, time.UTC), next)
	})
}

func TestComputeNextRun_Monthly(t *testing.T) {
	t.Run("later in the current month", func(t *testing.T) {
		s := &models.Scheduler{
			Recurrence: models.RecurrenceMonthly,
			TimeOfDay:  "03:00",
			DayOfMonth: intPtr(15),
		}
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("already passed this month rolls to next month", func(t *testing.T) {
		s := &models.Scheduler{
			Recurrence: models.RecurrenceMonthly,
			TimeOfDay:  "03:00",
			DayOfMonth: intPtr(5),
		}
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 4, 5, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("day 31 clamps to the length of february", func(t *testing.T) {
		s := &models.Scheduler{
			Recurrence: models.RecurrenceMonthly,
			TimeOfDay:  "03:00",
			DayOfMonth: intPtr(31),
		}
		now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 2, 28, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("december rolls into january of the next year", func(t *testing.T) {
		s := &models.Scheduler{
			Recurrence: models.RecurrenceMonthly,
			TimeOfDay:  "03:00",
			DayOfMonth: intPtr(1),
		}
		now := time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)
		next, err := schedule.ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2027, 1, 1, 3, 0, 0, 0, time.UTC), next)
	})
}

func TestComputeNextRun_Custom(t *testing.T) {
	s := &models.Scheduler{
		Recurrence: models.RecurrenceCustom,
		CronExpr:   "0 */6 * * *",
	}
	now := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)
	next, err := schedule.ComputeNextRun(s, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), next)
}

func TestComputeNextRun_ScanNow(t *testing.T) {
	s := &models.Scheduler{Recurrence: models.RecurrenceScanNow}
	_, err := schedule.ComputeNextRun(s, time.Now())
	var verr *schedule.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		scheduler models.Scheduler
		wantField string
	}{
		{
			name:      "daily without time of day",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceDaily},
			wantField: "time_of_day",
		},
		{
			name:      "malformed time of day",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceDaily, TimeOfDay: "25:99"},
			wantField: "time_of_day",
		},
		{
			name:      "weekly without day of week",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceWeekly, TimeOfDay: "02:00"},
			wantField: "day_of_week",
		},
		{
			name:      "weekly day of week out of range",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceWeekly, TimeOfDay: "02:00", DayOfWeek: intPtr(7)},
			wantField: "day_of_week",
		},
		{
			name:      "monthly without day of month",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceMonthly, TimeOfDay: "02:00"},
			wantField: "day_of_month",
		},
		{
			name:      "monthly day of month out of range",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceMonthly, TimeOfDay: "02:00", DayOfMonth: intPtr(0)},
			wantField: "day_of_month",
		},
		{
			name:      "custom without cron expression",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceCustom},
			wantField: "cron_expr",
		},
		{
			name:      "custom with bad cron expression",
			scheduler: models.Scheduler{Recurrence: models.RecurrenceCustom, CronExpr: "not a cron"},
			wantField: "cron_expr",
		},
		{
			name:      "unknown recurrence",
			scheduler: models.Scheduler{Recurrence: "hourly"},
			wantField: "recurrence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schedule.Validate(&tt.scheduler)
			var verr *schedule.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}

	t.Run("valid configurations pass", func(t *testing.T) {
		valid := []models.Scheduler{
			{Recurrence: models.RecurrenceScanNow},
			{Recurrence: models.RecurrenceDaily, TimeOfDay: "23:59"},
			{Recurrence: models.RecurrenceWeekly, TimeOfDay: "00:00", DayOfWeek: intPtr(6)},
			{Recurrence: models.RecurrenceMonthly, TimeOfDay: "12:00", DayOfMonth: intPtr(31)},
			{Recurrence: models.RecurrenceCustom, CronExpr: "*/5 * * * *"},
		}
		for i := range valid {
			assert.NoError(t, schedule.Validate(&valid[i]))
		}
	})
}
