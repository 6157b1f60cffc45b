package models

import "github.com/google/uuid"

type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceCustom  Recurrence = "custom"   // raw cron expression
	RecurrenceScanNow Recurrence = "scan_now" // one-shot, triggered at creation
)

type SchedulerStatus string

const (
	SchedulerStatusScheduled SchedulerStatus = "scheduled"
	SchedulerStatusDisabled  SchedulerStatus = "disabled"
	SchedulerStatusCompleted SchedulerStatus = "completed" // scan_now after its single trigger
)

// Scheduler owns the recurrence configuration of a project's scans. Each
// trigger produces exactly one Scan and recomputes NextRunAt.
type Scheduler struct {
	Base
	ProjectID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"project_id"`
	Recurrence Recurrence `gorm:"not null" json:"recurrence"`

	// TimeOfDay is "HH:MM" in UTC. Required for daily/weekly/monthly.
	TimeOfDay  string `gorm:"size:5" json:"time_of_day,omitempty"`
	DayOfWeek  *int   `json:"day_of_week,omitempty"`  // 0=Sunday, weekly only
	DayOfMonth *int   `json:"day_of_month,omitempty"` // 1-31, monthly only, clamped
	CronExpr   string `gorm:"size:100" json:"cron_expr,omitempty"` // custom only

	Status SchedulerStatus `gorm:"not null;index;default:'scheduled'" json:"status"`

	// Timing (Unix timestamps, UTC)
	NextRunAt int64  `gorm:"index" json:"next_run_at"`
	LastRunAt *int64 `json:"last_run_at,omitempty"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"-"`
	Scans   []Scan   `gorm:"foreignKey:SchedulerID" json:"-"`
}

func (Scheduler) TableName() string {
	return "schedulers"
}
