package schedule

import (
	"fmt"
	"time"

	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/pkg/util"
)

// ValidationError rejects a bad scheduler configuration before any scan is
// created. There are no silent defaults.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scheduler config: %s %s", e.Field, e.Reason)
}

// Validate checks the recurrence parameters of a scheduler.
func Validate(s *models.Scheduler) error {
	switch s.Recurrence {
	case models.RecurrenceScanNow:
		return nil
	case models.RecurrenceDaily:
		return validateTimeOfDay(s.TimeOfDay)
	case models.RecurrenceWeekly:
		if err := validateTimeOfDay(s.TimeOfDay); err != nil {
			return err
		}
		if s.DayOfWeek == nil || *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return &ValidationError{Field: "day_of_week", Reason: "must be 0-6 for weekly recurrence"}
		}
		return nil
	case models.RecurrenceMonthly:
		if err := validateTimeOfDay(s.TimeOfDay); err != nil {
			return err
		}
		if s.DayOfMonth == nil || *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return &ValidationError{Field: "day_of_month", Reason: "must be 1-31 for monthly recurrence"}
		}
		return nil
	case models.RecurrenceCustom:
		if s.CronExpr == "" {
			return &ValidationError{Field: "cron_expr", Reason: "is required for custom recurrence"}
		}
		if err := util.ValidateCronExpr(s.CronExpr); err != nil {
			return &ValidationError{Field: "cron_expr", Reason: err.Error()}
		}
		return nil
	default:
		return &ValidationError{Field: "recurrence", Reason: fmt.Sprintf("unknown value %q", s.Recurrence)}
	}
}

func validateTimeOfDay(tod string) error {
	if tod == "" {
		return &ValidationError{Field: "time_of_day", Reason: "is required"}
	}
	if _, _, err := parseTimeOfDay(tod); err != nil {
		return &ValidationError{Field: "time_of_day", Reason: err.Error()}
	}
	return nil
}

func parseTimeOfDay(tod string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", tod)
	if err != nil {
		return 0, 0, fmt.Errorf("must be HH:MM, got %q", tod)
	}
	return t.Hour(), t.Minute(), nil
}

// ComputeNextRun returns the next trigger time strictly after now, in UTC.
// scan_now schedulers have no recurrence and are rejected.
func ComputeNextRun(s *models.Scheduler, now time.Time) (time.Time, error) {
	if err := Validate(s); err != nil {
		return time.Time{}, err
	}
	now = now.UTC()

	switch s.Recurrence {
	case models.RecurrenceScanNow:
		return time.Time{}, &ValidationError{Field: "recurrence", Reason: "scan_now has no next run"}

	case models.RecurrenceDaily:
		hour, minute, _ := parseTimeOfDay(s.TimeOfDay)
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case models.RecurrenceWeekly:
		hour, minute, _ := parseTimeOfDay(s.TimeOfDay)
		days := (*s.DayOfWeek - int(now.Weekday()) + 7) % 7
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC).
			AddDate(0, 0, days)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	case models.RecurrenceMonthly:
		hour, minute, _ := parseTimeOfDay(s.TimeOfDay)
		next := monthlyOccurrence(now.Year(), now.Month(), *s.DayOfMonth, hour, minute)
		if !next.After(now) {
			year, month := now.Year(), now.Month()+1
			next = monthlyOccurrence(year, month, *s.DayOfMonth, hour, minute)
		}
		return next, nil

	case models.RecurrenceCustom:
		return util.NextCronTime(s.CronExpr, now)
	}

	return time.Time{}, &ValidationError{Field: "recurrence", Reason: fmt.Sprintf("unknown value %q", s.Recurrence)}
}

// monthlyOccurrence clamps the configured day to the target month, so day 31
// in February yields the 28th (or 29th).
func monthlyOccurrence(year int, month time.Month, day, hour, minute int) time.Time {
	// Normalize month overflow first (January + 12 etc).
	base := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lastDay := base.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(base.Year(), base.Month(), day, hour, minute, 0, 0, time.UTC)
}
