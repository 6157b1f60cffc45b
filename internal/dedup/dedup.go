package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/scanner"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PersistenceError marks a store failure. Unlike adapter or structuring
// failures it is scan-fatal.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// MatchResult is the explicit outcome of matching one candidate against
// the recorded findings. Dedup never signals through panics or swallowed
// errors; callers always see whether and why a candidate matched.
type MatchResult struct {
	Matched bool
	Reason  string
	Finding *models.Finding
}

// Deduplicator reconciles candidate findings against previously recorded
// ones so re-running a scan never duplicates records. Policy is selected by
// scanner type: language profiles are replaced wholesale, smart-contract
// findings match structurally, everything else matches on the exact key
// (project, target, scanner type, name).
type Deduplicator struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewDeduplicator(db *gorm.DB, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{db: db, logger: logger}
}

// Process persists all candidates of one (adapter, target) task. Each
// candidate is handled in its own transaction so one bad row cannot poison
// its siblings. Returns how many findings were observed (new or relinked).
func (d *Deduplicator) Process(ctx context.Context, scanID, projectID uuid.UUID, scannerType models.ScannerType, targetID uuid.UUID, targetType models.TargetType, rawOutputID uuid.UUID, candidates []scanner.StructuredFinding) (int, error) {
	observed := 0
	for i := range candidates {
		if err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := d.reconcile(tx, scanID, projectID, scannerType, targetID, targetType, rawOutputID, &candidates[i])
			return err
		}); err != nil {
			return observed, &PersistenceError{Err: err}
		}
		observed++
	}
	return observed, nil
}

// reconcile matches one candidate and either relinks the existing record or
// inserts a new one, inside the caller's transaction.
func (d *Deduplicator) reconcile(tx *gorm.DB, scanID, projectID uuid.UUID, scannerType models.ScannerType, targetID uuid.UUID, targetType models.TargetType, rawOutputID uuid.UUID, candidate *scanner.StructuredFinding) (MatchResult, error) {
	var match MatchResult
	var err error

	switch scannerType {
	case models.ScannerLanguage:
		return d.replaceSnapshot(tx, scanID, projectID, scannerType, targetID, targetType, rawOutputID, candidate)
	case models.ScannerContract:
		match, err = d.matchStructural(tx, projectID, scannerType, targetID, candidate)
	default:
		match, err = d.matchExact(tx, projectID, scannerType, targetID, candidate.Name)
	}
	if err != nil {
		return MatchResult{}, err
	}

	if match.Matched {
		// Re-observation: reopen if previously closed, never duplicate.
		if match.Finding.Status == models.FindingStatusClosed {
			if err := tx.Model(match.Finding).Update("status", models.FindingStatusOpen).Error; err != nil {
				return MatchResult{}, err
			}
		}
		if err := tx.Create(&models.FindingScanLink{FindingID: match.Finding.ID, ScanID: scanID}).Error; err != nil {
			return MatchResult{}, err
		}
		return match, nil
	}

	finding, err := d.insert(tx, scanID, projectID, scannerType, targetID, targetType, rawOutputID, candidate)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Matched: false, Reason: "new finding", Finding: finding}, nil
}

// matchExact implements the default policy: equality on the full finding key.
func (d *Deduplicator) matchExact(tx *gorm.DB, projectID uuid.UUID, scannerType models.ScannerType, targetID uuid.UUID, name string) (MatchResult, error) {
	var existing []models.Finding
	err := tx.
		Where("project_id = ? AND target_id = ? AND scanner_type = ? AND name = ?",
			projectID, targetID, scannerType, name).
		Order("created_at DESC").
		Find(&existing).Error
	if err != nil {
		return MatchResult{}, err
	}

	if len(existing) == 0 {
		return MatchResult{Matched: false, Reason: "no record with key"}, nil
	}
	if len(existing) > 1 {
		// Should not happen under the uniqueness invariant; defended against
		// by taking the most recently created record.
		d.logger.Warn("consistency warning: multiple findings share a key",
			"project_id", projectID,
			"target_id", targetID,
			"scanner_type", scannerType,
			"name", name,
			"count", len(existing),
		)
	}
	return MatchResult{Matched: true, Reason: "exact key match", Finding: &existing[0]}, nil
}

// matchStructural implements the smart-contract policy: a substring match on
// name narrows the candidates, then either identical names or an equal
// source line is sufficient to treat the candidate as a re-observation.
func (d *Deduplicator) matchStructural(tx *gorm.DB, projectID uuid.UUID, scannerType models.ScannerType, targetID uuid.UUID, candidate *scanner.StructuredFinding) (MatchResult, error) {
	var existing []models.Finding
	err := tx.
		Preload("Detail").
		Where("project_id = ? AND target_id = ? AND scanner_type = ?", projectID, targetID, scannerType).
		Order("created_at DESC").
		Find(&existing).Error
	if err != nil {
		return MatchResult{}, err
	}

	candLine := candidateLine(candidate)

	var matches []*models.Finding
	var reason string
	for i := range existing {
		rec := &existing[i]
		if !strings.Contains(rec.Name, candidate.Name) && !strings.Contains(candidate.Name, rec.Name) {
			continue
		}
		if rec.Name == candidate.Name {
			matches = append(matches, rec)
			reason = "identical name"
			continue
		}
		if candLine > 0 && recordLine(rec) == candLine {
			matches = append(matches, rec)
			reason = "matching source line"
		}
	}

	if len(matches) == 0 {
		return MatchResult{Matched: false, Reason: "no structural match"}, nil
	}
	if len(matches) > 1 {
		d.logger.Warn("consistency warning: multiple structural matches",
			"project_id", projectID,
			"target_id", targetID,
			"name", candidate.Name,
			"count", len(matches),
		)
	}
	return MatchResult{Matched: true, Reason: reason, Finding: matches[0]}, nil
}

// replaceSnapshot implements the language-profile policy: profile rows are
// regenerated every scan, so a key match soft-deletes the previous snapshot
// before the new row is inserted instead of reopening it.
func (d *Deduplicator) replaceSnapshot(tx *gorm.DB, scanID, projectID uuid.UUID, scannerType models.ScannerType, targetID uuid.UUID, targetType models.TargetType, rawOutputID uuid.UUID, candidate *scanner.StructuredFinding) (MatchResult, error) {
	match, err := d.matchExact(tx, projectID, scannerType, targetID, candidate.Name)
	if err != nil {
		return MatchResult{}, err
	}

	if match.Matched {
		if err := deleteFindingTree(tx, match.Finding); err != nil {
			return MatchResult{}, err
		}
	}

	finding, err := d.insert(tx, scanID, projectID, scannerType, targetID, targetType, rawOutputID, candidate)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Matched: match.Matched, Reason: "snapshot replaced", Finding: finding}, nil
}

// insert creates the finding with its owned detail and fix recommendation
// plus the scan link. The partial unique index on the finding key serializes
// racing inserts; the loser re-reads and links to the winner's row.
func (d *Deduplicator) insert(tx *gorm.DB, scanID, projectID uuid.UUID, scannerType models.ScannerType, targetID uuid.UUID, targetType models.TargetType, rawOutputID uuid.UUID, candidate *scanner.StructuredFinding) (*models.Finding, error) {
	finding := &models.Finding{
		ProjectID:   projectID,
		TargetID:    targetID,
		TargetType:  targetType,
		ScannerType: scannerType,
		Name:        candidate.Name,
		Description: candidate.Description,
		Severity:    candidate.Severity,
		Status:      models.FindingStatusOpen,
		DetailKind:  candidate.DetailKind,
	}
	if rawOutputID != uuid.Nil {
		finding.RawOutputID = &rawOutputID
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(finding)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent scan inserted the same key first; link to its row.
		match, err := d.matchExact(tx, projectID, scannerType, targetID, candidate.Name)
		if err != nil {
			return nil, err
		}
		if !match.Matched {
			return nil, fmt.Errorf("finding upsert conflict but no existing row for %q", candidate.Name)
		}
		if err := tx.Create(&models.FindingScanLink{FindingID: match.Finding.ID, ScanID: scanID}).Error; err != nil {
			return nil, err
		}
		return match.Finding, nil
	}

	if candidate.Detail != nil {
		detail, err := models.NewExtendedDetail(finding.ID, candidate.DetailKind, candidate.Detail)
		if err != nil {
			return nil, err
		}
		if err := tx.Create(detail).Error; err != nil {
			return nil, err
		}
	}

	fix := &models.FixRecommendation{FindingID: finding.ID}
	if scannerType == models.ScannerContract {
		fix.AISuggested = candidate.FixSuggestion
	} else {
		fix.ScannerSuggested = candidate.FixSuggestion
	}
	if err := tx.Create(fix).Error; err != nil {
		return nil, err
	}

	if err := tx.Create(&models.FindingScanLink{FindingID: finding.ID, ScanID: scanID}).Error; err != nil {
		return nil, err
	}

	return finding, nil
}

// deleteFindingTree soft-deletes a finding together with the detail and fix
// recommendation it owns.
func deleteFindingTree(tx *gorm.DB, finding *models.Finding) error {
	if err := tx.Where("finding_id = ?", finding.ID).Delete(&models.ExtendedDetail{}).Error; err != nil {
		return err
	}
	if err := tx.Where("finding_id = ?", finding.ID).Delete(&models.FixRecommendation{}).Error; err != nil {
		return err
	}
	return tx.Delete(finding).Error
}

func candidateLine(candidate *scanner.StructuredFinding) int {
	if detail, ok := candidate.Detail.(models.ContractDetail); ok {
		return detail.LineNumber
	}
	return 0
}

func recordLine(finding *models.Finding) int {
	if finding.Detail == nil {
		return 0
	}
	v, err := finding.Detail.DecodePayload()
	if err != nil {
		return 0
	}
	if detail, ok := v.(*models.ContractDetail); ok {
		return detail.LineNumber
	}
	return 0
}
