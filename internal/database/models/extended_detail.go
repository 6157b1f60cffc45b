package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DetailKind tags the shape of an ExtendedDetail payload. One kind per
// scanner family; the switch in DecodePayload is the only place a kind is
// resolved, so adding a shape without wiring it fails loudly.
type DetailKind string

const (
	DetailKindSecret     DetailKind = "secret"
	DetailKindDependency DetailKind = "dependency"
	DetailKindContract   DetailKind = "contract"
	DetailKindWeb        DetailKind = "web"
	DetailKindCloud      DetailKind = "cloud"
	DetailKindLanguage   DetailKind = "language"
	DetailKindNetwork    DetailKind = "network"
)

// ExtendedDetail is the scanner-specific payload owned 1:1 by a finding.
// The typed shape is serialized into Payload and recovered through the
// Kind tag.
type ExtendedDetail struct {
	Base
	FindingID uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"finding_id"`
	Kind      DetailKind `gorm:"not null;index" json:"kind"`
	Payload   string     `gorm:"type:jsonb;default:'{}'" json:"payload"`
}

func (ExtendedDetail) TableName() string {
	return "extended_details"
}

// SecretDetail describes a leaked credential occurrence.
type SecretDetail struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	RuleID    string `json:"rule_id"`
	Match     string `json:"match,omitempty"`
}

// DependencyDetail describes a vulnerable package.
type DependencyDetail struct {
	Ecosystem        string `json:"ecosystem,omitempty"`
	Package          string `json:"package"`
	InstalledVersion string `json:"installed_version"`
	FixedVersion     string `json:"fixed_version,omitempty"`
	VulnerabilityID  string `json:"vulnerability_id"`
}

// ContractDetail describes a smart-contract issue. LineNumber participates
// in structural deduplication.
type ContractDetail struct {
	Contract   string `json:"contract,omitempty"`
	Check      string `json:"check,omitempty"`
	LineNumber int    `json:"line_number"`
}

// WebDetail describes a web-application issue on a probed URL.
type WebDetail struct {
	URL      string `json:"url"`
	Header   string `json:"header,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// CloudDetail describes a cloud posture violation.
type CloudDetail struct {
	Provider   string `json:"provider"`
	ResourceID string `json:"resource_id"`
	Rule       string `json:"rule"`
	Region     string `json:"region,omitempty"`
}

// LanguageDetail is a language-profile snapshot entry. Profile findings are
// wholesale-replaced every scan rather than reopened.
type LanguageDetail struct {
	Language string  `json:"language"`
	Bytes    int64   `json:"bytes"`
	Percent  float64 `json:"percent"`
}

// NetworkDetail describes an exposed network service.
type NetworkDetail struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Service  string `json:"service,omitempty"`
	Banner   string `json:"banner,omitempty"`
}

// NewExtendedDetail serializes a typed detail into a row. The kind must
// match the value's shape; mismatches surface at decode time.
func NewExtendedDetail(findingID uuid.UUID, kind DetailKind, v any) (*ExtendedDetail, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s detail: %w", kind, err)
	}
	return &ExtendedDetail{
		FindingID: findingID,
		Kind:      kind,
		Payload:   string(data),
	}, nil
}

// DecodePayload recovers the typed detail value for the row's kind.
func (d *ExtendedDetail) DecodePayload() (any, error) {
	var v any
	switch d.Kind {
	case DetailKindSecret:
		v = &SecretDetail{}
	case DetailKindDependency:
		v = &DependencyDetail{}
	case DetailKindContract:
		v = &ContractDetail{}
	case DetailKindWeb:
		v = &WebDetail{}
	case DetailKindCloud:
		v = &CloudDetail{}
	case DetailKindLanguage:
		v = &LanguageDetail{}
	case DetailKindNetwork:
		v = &NetworkDetail{}
	default:
		return nil, fmt.Errorf("unknown detail kind: %s", d.Kind)
	}
	if err := json.Unmarshal([]byte(d.Payload), v); err != nil {
		return nil, fmt.Errorf("decoding %s detail: %w", d.Kind, err)
	}
	return v, nil
}
