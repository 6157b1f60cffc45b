package targets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// DeleteTarget walks from a target to every record that causally depends on
// it and soft-deletes them all, then the target itself. Each dependent
// collection is handled independently: a failure in one is logged and does
// not block marking the others deleted. After it returns, no default-scoped
// query returns the target, its findings, or their details.
func (s *Service) DeleteTarget(ctx context.Context, targetID uuid.UUID) error {
	db := s.db.WithContext(ctx)

	var findingIDs []uuid.UUID
	if err := db.Model(&models.Finding{}).
		Where("target_id = ?", targetID).
		Pluck("id", &findingIDs).Error; err != nil {
		return err
	}

	var failures []error

	if len(findingIDs) > 0 {
		// Owned 1:1 records go first so a partial failure cannot leave a
		// live detail pointing at a deleted finding.
		if err := db.Where("finding_id IN ?", findingIDs).Delete(&models.ExtendedDetail{}).Error; err != nil {
			s.logger.Error("cascade: deleting extended details failed", "target_id", targetID, "error", err)
			failures = append(failures, err)
		}
		if err := db.Where("finding_id IN ?", findingIDs).Delete(&models.FixRecommendation{}).Error; err != nil {
			s.logger.Error("cascade: deleting fix recommendations failed", "target_id", targetID, "error", err)
			failures = append(failures, err)
		}
		if err := db.Where("target_id = ?", targetID).Delete(&models.Finding{}).Error; err != nil {
			s.logger.Error("cascade: deleting findings failed", "target_id", targetID, "error", err)
			failures = append(failures, err)
		}
	}

	deleted, err := s.deleteTargetRow(ctx, targetID)
	if err != nil {
		s.logger.Error("cascade: deleting target failed", "target_id", targetID, "error", err)
		failures = append(failures, err)
	} else if !deleted && len(findingIDs) == 0 {
		return ErrTargetNotFound
	}

	if len(failures) > 0 {
		return errors.Join(failures...)
	}

	s.logger.Info("cascade delete completed", "target_id", targetID, "findings", len(findingIDs))
	return nil
}

// deleteTargetRow tries each target table in turn; the ID lives in exactly
// one of them. Repeat calls are no-ops, keeping the cascade idempotent.
func (s *Service) deleteTargetRow(ctx context.Context, targetID uuid.UUID) (bool, error) {
	db := s.db.WithContext(ctx)

	for _, model := range []any{
		&models.Repository{},
		&models.Domain{},
		&models.ContractBundle{},
		&models.CloudCredential{},
	} {
		res := db.Where("id = ?", targetID).Delete(model)
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
	}
	return false, nil
}
