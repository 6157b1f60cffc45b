package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "informational"
)

// Rank returns an integer rank for comparison (informational=0, critical=4).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ParseSeverity parses a severity string case-insensitively. Accepts the
// aliases scanners commonly emit ("moderate", "info", "unknown").
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium", "moderate":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	case "informational", "info", "unknown", "":
		return SeverityInfo, nil
	default:
		return SeverityInfo, fmt.Errorf("invalid severity: %s", s)
	}
}

type FindingStatus string

const (
	FindingStatusOpen          FindingStatus = "open"
	FindingStatusClosed        FindingStatus = "closed"
	FindingStatusIgnored       FindingStatus = "ignored"
	FindingStatusFalsePositive FindingStatus = "false_positive"
)

// Finding is a normalized, deduplicated security observation. At most one
// non-deleted Finding exists per (project_id, target_id, scanner_type, name);
// re-observations reopen the existing row and add a FindingScanLink instead
// of inserting a duplicate.
type Finding struct {
	Base
	ProjectID   uuid.UUID   `gorm:"type:uuid;index;not null;uniqueIndex:uniq_finding_key" json:"project_id"`
	TargetID    uuid.UUID   `gorm:"type:uuid;index;not null;uniqueIndex:uniq_finding_key" json:"target_id"`
	TargetType  TargetType  `gorm:"not null" json:"target_type"`
	ScannerType ScannerType `gorm:"not null;index;uniqueIndex:uniq_finding_key" json:"scanner_type"`

	// The partial unique index enforces the at-most-one-non-deleted-record
	// invariant per finding key, including under concurrent scans.
	Name        string        `gorm:"not null;uniqueIndex:uniq_finding_key,where:deleted_at IS NULL" json:"name"`
	Description string        `gorm:"type:text" json:"description,omitempty"`
	Severity    Severity      `gorm:"not null;index" json:"severity"`
	Status      FindingStatus `gorm:"not null;index;default:'open'" json:"status"`

	// DetailKind tags which ExtendedDetail shape this finding carries.
	DetailKind DetailKind `gorm:"index" json:"detail_kind,omitempty"`

	RawOutputID *uuid.UUID `gorm:"type:uuid" json:"raw_output_id,omitempty"`

	Detail    *ExtendedDetail    `gorm:"foreignKey:FindingID" json:"detail,omitempty"`
	Fix       *FixRecommendation `gorm:"foreignKey:FindingID" json:"fix,omitempty"`
	ScanLinks []FindingScanLink  `gorm:"foreignKey:FindingID" json:"-"`
	Project   *Project           `gorm:"foreignKey:ProjectID" json:"-"`
}

func (Finding) TableName() string {
	return "findings"
}

// FindingScanLink records that a scan run observed (or re-observed) a
// finding. Append-only: never updated, never deleted while the finding lives.
type FindingScanLink struct {
	Base
	FindingID uuid.UUID `gorm:"type:uuid;index;not null" json:"finding_id"`
	ScanID    uuid.UUID `gorm:"type:uuid;index;not null" json:"scan_id"`

	Finding *Finding `gorm:"foreignKey:FindingID" json:"-"`
	Scan    *Scan    `gorm:"foreignKey:ScanID" json:"-"`
}

func (FindingScanLink) TableName() string {
	return "finding_scan_links"
}

// FixRecommendation is owned 1:1 by the finding that created it and is
// deleted together with it.
type FixRecommendation struct {
	Base
	FindingID        uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"finding_id"`
	ScannerSuggested string    `gorm:"type:text" json:"scanner_suggested,omitempty"`
	AISuggested      string    `gorm:"type:text" json:"ai_suggested,omitempty"`
}

func (FixRecommendation) TableName() string {
	return "fix_recommendations"
}
