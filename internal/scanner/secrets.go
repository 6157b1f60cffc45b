package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// SecretsAdapter scans a repository checkout for hardcoded secrets using
// gitleaks.
type SecretsAdapter struct {
	logger *slog.Logger
}

func NewSecretsAdapter(logger *slog.Logger) *SecretsAdapter {
	return &SecretsAdapter{logger: logger}
}

func (a *SecretsAdapter) Type() models.ScannerType {
	return models.ScannerSecret
}

func (a *SecretsAdapter) TargetType() models.TargetType {
	return models.TargetTypeRepository
}

type gitleaksFinding struct {
	Description string `json:"Description"`
	File        string `json:"File"`
	StartLine   int    `json:"StartLine"`
	RuleID      string `json:"RuleID"`
	Match       string `json:"Match"`
}

func (a *SecretsAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	if !ToolAvailable("gitleaks") {
		return nil, fmt.Errorf("gitleaks not found in PATH: %w", ErrToolUnavailable)
	}

	reportFile, err := os.CreateTemp("", "gitleaks-report-*.json")
	if err != nil {
		return nil, fmt.Errorf("creating report file: %w", err)
	}
	reportPath := reportFile.Name()
	reportFile.Close()
	defer os.Remove(reportPath)

	args := []string{"detect", "--source", target.ClonePath, "--report-path", reportPath, "--no-banner"}
	res, runErr := RunTool(ctx, "gitleaks", args, "")

	// Gitleaks exits 1 when leaks are found; that is a successful scan.
	if runErr != nil && res.ExitCode != 1 {
		return &Result{Raw: res.Stdout + res.Stderr},
			fmt.Errorf("gitleaks exited with code %d: %w", res.ExitCode, ErrToolUnavailable)
	}

	report, err := os.ReadFile(reportPath)
	if err != nil {
		return &Result{Raw: res.Stdout + res.Stderr}, fmt.Errorf("reading report: %w", ErrUnparsable)
	}

	var leaks []gitleaksFinding
	if len(report) > 0 {
		if err := json.Unmarshal(report, &leaks); err != nil {
			return &Result{Raw: string(report)}, fmt.Errorf("parsing gitleaks report: %w", ErrUnparsable)
		}
	}

	findings := make([]StructuredFinding, 0, len(leaks))
	for _, leak := range leaks {
		findings = append(findings, StructuredFinding{
			Name:        fmt.Sprintf("Hardcoded secret %s in %s", leak.RuleID, leak.File),
			Description: leak.Description,
			Severity:    models.SeverityHigh,
			TargetType:  models.TargetTypeRepository,
			DetailKind:  models.DetailKindSecret,
			Detail: models.SecretDetail{
				File:      leak.File,
				StartLine: leak.StartLine,
				RuleID:    leak.RuleID,
			},
			FixSuggestion: "Remove the secret from the repository history and rotate the credential.",
		})
	}

	a.logger.Info("secret scan finished",
		"scan_id", scanID,
		"target", target.ClonePath,
		"leaks", len(leaks),
	)

	return &Result{Raw: string(report), Findings: findings}, nil
}
