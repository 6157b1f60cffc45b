package models

// Project is the owning scope for targets, schedulers, scans and findings.
type Project struct {
	Base
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `json:"description,omitempty"`

	// Relationships
	Schedulers []Scheduler `gorm:"foreignKey:ProjectID" json:"-"`
	Scans      []Scan      `gorm:"foreignKey:ProjectID" json:"-"`
	Findings   []Finding   `gorm:"foreignKey:ProjectID" json:"-"`
}

func (Project) TableName() string {
	return "projects"
}
