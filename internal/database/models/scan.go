package models

import "github.com/google/uuid"

type ScanStatus string

const (
	ScanStatusScheduled ScanStatus = "scheduled"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusError     ScanStatus = "error"
)

// ScannerType names one scanner family. The configured set intersected
// with a project's resolved targets decides which adapters run.
type ScannerType string

const (
	ScannerWebApp      ScannerType = "webapp"
	ScannerPortScan    ScannerType = "port_scan"
	ScannerDNSRecon    ScannerType = "dns_recon"
	ScannerDependency  ScannerType = "dependency"
	ScannerSecret      ScannerType = "secret"
	ScannerContract    ScannerType = "contract"
	ScannerAzure       ScannerType = "azure_posture"
	ScannerGoogle      ScannerType = "google_posture"
	ScannerLanguage    ScannerType = "language_profile"
)

// Scan is one execution of a scheduler. It is the single source of truth
// for run progress; only the orchestrator mutates it.
type Scan struct {
	Base
	SchedulerID uuid.UUID  `gorm:"type:uuid;index;not null" json:"scheduler_id"`
	ProjectID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"project_id"`
	Status      ScanStatus `gorm:"not null;index;default:'scheduled'" json:"status"`

	// Execution
	StartedAt  int64 `json:"started_at,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`

	// FailedScanners is a JSON array of ScannerType values whose task
	// failed during this run. Non-empty implies Status == error, but the
	// findings of every succeeding adapter are still persisted.
	FailedScanners string `gorm:"type:jsonb;default:'[]'" json:"failed_scanners,omitempty"`
	Error          string `json:"error,omitempty"`

	// Stats
	FindingsCount int `gorm:"default:0" json:"findings_count"`

	// Asynq task ID for tracking
	TaskID string `gorm:"index" json:"task_id,omitempty"`

	Scheduler  *Scheduler  `gorm:"foreignKey:SchedulerID" json:"-"`
	Project    *Project    `gorm:"foreignKey:ProjectID" json:"-"`
	RawOutputs []RawOutput `gorm:"foreignKey:ScanID" json:"-"`
}

func (Scan) TableName() string {
	return "scans"
}

// RawOutput is the unmodified payload produced by one scanner run against
// one target. Immutable once written: raw evidence is never lost even when
// downstream structuring fails.
type RawOutput struct {
	Base
	ScanID      uuid.UUID   `gorm:"type:uuid;index;not null" json:"scan_id"`
	ScannerType ScannerType `gorm:"not null" json:"scanner_type"`
	TargetID    uuid.UUID   `gorm:"type:uuid;index;not null" json:"target_id"`
	TargetType  TargetType  `gorm:"not null" json:"target_type"`
	Payload     string      `gorm:"type:text" json:"payload"`

	Scan *Scan `gorm:"foreignKey:ScanID" json:"-"`
}

func (RawOutput) TableName() string {
	return "raw_outputs"
}
