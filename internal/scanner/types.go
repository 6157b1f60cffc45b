package scanner

import (
	"context"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// Target is one resolved scannable entity handed to an adapter. Exactly one
// of the typed fields is set, matching Type. Cloud credentials arrive
// already decrypted; ClonePath is populated by the resource manager for
// repository targets before any source adapter runs.
type Target struct {
	ID   uuid.UUID
	Type models.TargetType

	Repository *models.Repository
	Domain     *models.Domain
	Contract   *models.ContractBundle
	Azure      *models.AzureCredential
	Google     *models.GoogleCredential

	// ClonePath is the shared read-only checkout for repository targets.
	ClonePath string
}

// StructuredFinding is a candidate finding produced by an adapter or the
// normalizer, before deduplication.
type StructuredFinding struct {
	Name        string
	Description string
	Severity    models.Severity
	TargetType  models.TargetType

	DetailKind models.DetailKind
	Detail     any

	// FixSuggestion is the scanner's own remediation text, if any.
	FixSuggestion string
}

// Result carries the raw payload of one adapter run plus any findings the
// adapter produced itself. Raw may be non-empty even when Execute returns
// an error: raw evidence is persisted regardless of structuring outcome.
type Result struct {
	Raw      string
	Findings []StructuredFinding
}

// Adapter runs exactly one scanner against one resolved target. Execute
// must be idempotent with respect to external side effects and must not
// write to the store; persistence belongs to the orchestrator. Zero
// findings is success, not an error.
type Adapter interface {
	Type() models.ScannerType
	TargetType() models.TargetType
	Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error)
}

// Structurer converts free scanner text into structured findings. Implemented
// by the structuring client; injected so adapters stay network-agnostic in
// tests.
type Structurer interface {
	Structure(ctx context.Context, rawText, schemaHint string) ([]StructuredFinding, error)
}

// Compile-time interface satisfaction checks
var (
	_ Adapter = (*SecretsAdapter)(nil)
	_ Adapter = (*DependencyAdapter)(nil)
	_ Adapter = (*LanguageProfiler)(nil)
	_ Adapter = (*WebAppAdapter)(nil)
	_ Adapter = (*PortScanAdapter)(nil)
	_ Adapter = (*DNSReconAdapter)(nil)
	_ Adapter = (*ContractAdapter)(nil)
	_ Adapter = (*AzurePostureAdapter)(nil)
	_ Adapter = (*GooglePostureAdapter)(nil)
)
