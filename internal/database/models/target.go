package models

import "github.com/google/uuid"

// TargetType identifies which kind of scannable entity a finding or raw
// output points at. Targets live in separate tables, so the type travels
// alongside the target ID everywhere a reference crosses tables.
type TargetType string

const (
	TargetTypeRepository TargetType = "repository"
	TargetTypeDomain     TargetType = "domain"
	TargetTypeContract   TargetType = "contract"
	TargetTypeAzure      TargetType = "azure"
	TargetTypeGoogle     TargetType = "google"
)

type CloudProvider string

const (
	ProviderAzure  CloudProvider = "azure"
	ProviderGoogle CloudProvider = "google"
)

// Repository is a git repository target. One clone per scan is shared by
// every source-scanning adapter.
type Repository struct {
	Base
	ProjectID uuid.UUID `gorm:"type:uuid;index;not null" json:"project_id"`
	CloneURL  string    `gorm:"not null" json:"clone_url"`
	Branch    string    `gorm:"size:255" json:"branch,omitempty"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"-"`
}

func (Repository) TableName() string {
	return "repositories"
}

// Domain is a hostname target for web, DNS and network scanning.
type Domain struct {
	Base
	ProjectID uuid.UUID `gorm:"type:uuid;index;not null" json:"project_id"`
	Hostname  string    `gorm:"not null" json:"hostname"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"-"`
}

func (Domain) TableName() string {
	return "domains"
}

// ContractBundle is a set of smart-contract sources scanned as one unit.
type ContractBundle struct {
	Base
	ProjectID  uuid.UUID `gorm:"type:uuid;index;not null" json:"project_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	SourcePath string    `gorm:"not null" json:"source_path"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"-"`
}

func (ContractBundle) TableName() string {
	return "contract_bundles"
}

// CloudCredential holds an encrypted credential blob for a cloud posture
// scan. The plaintext shape depends on the provider and is only ever
// decrypted inside the target resolver.
type CloudCredential struct {
	Base
	ProjectID uuid.UUID     `gorm:"type:uuid;index;not null" json:"project_id"`
	Name      string        `gorm:"not null" json:"name"`
	Provider  CloudProvider `gorm:"not null" json:"provider"`

	// Encrypted credential payload (age encrypted blob)
	EncryptedData []byte `gorm:"type:bytea;not null" json:"-"`

	LastUsed int64 `json:"last_used,omitempty"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"-"`
}

func (CloudCredential) TableName() string {
	return "cloud_credentials"
}

// AzureCredential is the decrypted payload for Provider == azure.
type AzureCredential struct {
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	SubscriptionID string `json:"subscription_id"`
}

// GoogleCredential is the decrypted payload for Provider == google.
type GoogleCredential struct {
	ProjectID          string `json:"project_id"`
	ServiceAccountJSON string `json:"service_account_json"`
}
