package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// contractSchemaHint tells the structuring service what shape to emit for
// smart-contract findings. Line numbers are required: structural
// deduplication matches on them.
const contractSchemaHint = `Each finding must be an object with fields:
"name" (short issue title), "description", "severity" (one of critical, high,
medium, low, informational), "contract" (contract name if known), "check"
(detector name if known) and "line_number" (integer source line, 0 if unknown).`

// ContractAdapter runs slither against a smart-contract bundle. Slither's
// human-readable report is handed to the structuring collaborator; if that
// fails the raw output is still preserved and the task fails closed with no
// findings.
type ContractAdapter struct {
	logger     *slog.Logger
	structurer Structurer
}

func NewContractAdapter(logger *slog.Logger, structurer Structurer) *ContractAdapter {
	return &ContractAdapter{logger: logger, structurer: structurer}
}

func (a *ContractAdapter) Type() models.ScannerType {
	return models.ScannerContract
}

func (a *ContractAdapter) TargetType() models.TargetType {
	return models.TargetTypeContract
}

func (a *ContractAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	if !ToolAvailable("slither") {
		return nil, fmt.Errorf("slither not found in PATH: %w", ErrToolUnavailable)
	}

	sourcePath := target.Contract.SourcePath

	res, runErr := RunTool(ctx, "slither", []string{sourcePath}, "")
	// Slither writes its report to stderr and exits non-zero when detectors
	// fire; only abnormal exits are tool failures.
	raw := res.Stderr
	if raw == "" {
		raw = res.Stdout
	}
	if runErr != nil && (res.ExitCode == exitNotFound || res.ExitCode == exitTimeout) {
		return &Result{Raw: raw},
			fmt.Errorf("slither exited with code %d: %w", res.ExitCode, ErrToolUnavailable)
	}

	findings, err := a.structurer.Structure(ctx, raw, contractSchemaHint)
	if err != nil {
		// Raw evidence survives; the caller records a structuring failure
		// for this scanner type only.
		return &Result{Raw: raw}, &StructuringError{Err: err}
	}

	for i := range findings {
		findings[i].TargetType = models.TargetTypeContract
		findings[i].DetailKind = models.DetailKindContract
	}

	a.logger.Info("contract scan finished",
		"scan_id", scanID,
		"bundle", target.Contract.Name,
		"findings", len(findings),
	)

	return &Result{Raw: raw, Findings: findings}, nil
}
