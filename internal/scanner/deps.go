package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// DependencyAdapter scans a repository checkout for vulnerable dependencies
// and license issues using trivy in filesystem mode.
type DependencyAdapter struct {
	logger *slog.Logger
}

func NewDependencyAdapter(logger *slog.Logger) *DependencyAdapter {
	return &DependencyAdapter{logger: logger}
}

func (a *DependencyAdapter) Type() models.ScannerType {
	return models.ScannerDependency
}

func (a *DependencyAdapter) TargetType() models.TargetType {
	return models.TargetTypeRepository
}

type trivyReport struct {
	Results []struct {
		Target          string `json:"Target"`
		Type            string `json:"Type"`
		Vulnerabilities []struct {
			VulnerabilityID  string `json:"VulnerabilityID"`
			PkgName          string `json:"PkgName"`
			InstalledVersion string `json:"InstalledVersion"`
			FixedVersion     string `json:"FixedVersion"`
			Severity         string `json:"Severity"`
			Title            string `json:"Title"`
			Description      string `json:"Description"`
		} `json:"Vulnerabilities"`
	} `json:"Results"`
}

func (a *DependencyAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	if !ToolAvailable("trivy") {
		return nil, fmt.Errorf("trivy not found in PATH: %w", ErrToolUnavailable)
	}

	args := []string{"fs", "--format", "json", "--quiet", "--scanners", "vuln,license", target.ClonePath}
	res, runErr := RunTool(ctx, "trivy", args, "")
	if runErr != nil {
		return &Result{Raw: res.Stdout + res.Stderr},
			fmt.Errorf("trivy exited with code %d: %w", res.ExitCode, ErrToolUnavailable)
	}

	var report trivyReport
	if err := json.Unmarshal([]byte(res.Stdout), &report); err != nil {
		return &Result{Raw: res.Stdout}, fmt.Errorf("parsing trivy report: %w", ErrUnparsable)
	}

	var findings []StructuredFinding
	for _, r := range report.Results {
		for _, v := range r.Vulnerabilities {
			sev, _ := models.ParseSeverity(v.Severity)

			fix := ""
			if v.FixedVersion != "" {
				fix = fmt.Sprintf("Upgrade %s to %s.", v.PkgName, v.FixedVersion)
			}

			findings = append(findings, StructuredFinding{
				Name:        fmt.Sprintf("%s: %s", v.VulnerabilityID, v.PkgName),
				Description: v.Title,
				Severity:    sev,
				TargetType:  models.TargetTypeRepository,
				DetailKind:  models.DetailKindDependency,
				Detail: models.DependencyDetail{
					Ecosystem:        r.Type,
					Package:          v.PkgName,
					InstalledVersion: v.InstalledVersion,
					FixedVersion:     v.FixedVersion,
					VulnerabilityID:  v.VulnerabilityID,
				},
				FixSuggestion: fix,
			})
		}
	}

	a.logger.Info("dependency scan finished",
		"scan_id", scanID,
		"target", target.ClonePath,
		"vulnerabilities", len(findings),
	)

	return &Result{Raw: res.Stdout, Findings: findings}, nil
}
