package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"gorm.io/gorm"
)

// Service owns scheduler lifecycle: creation with validation, selection of
// due schedulers, and post-trigger bookkeeping.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Create validates and persists a scheduler. For recurring schedulers the
// first run time is computed immediately; scan_now schedulers carry no next
// run and the returned triggerNow flag tells the caller to start the scan
// synchronously.
func (s *Service) Create(ctx context.Context, scheduler *models.Scheduler) (triggerNow bool, err error) {
	if err := Validate(scheduler); err != nil {
		return false, err
	}

	if scheduler.Recurrence == models.RecurrenceScanNow {
		scheduler.Status = models.SchedulerStatusCompleted
		scheduler.NextRunAt = 0
		if err := s.db.WithContext(ctx).Create(scheduler).Error; err != nil {
			return false, fmt.Errorf("saving scheduler: %w", err)
		}
		return true, nil
	}

	next, err := ComputeNextRun(scheduler, time.Now())
	if err != nil {
		return false, err
	}
	scheduler.Status = models.SchedulerStatusScheduled
	scheduler.NextRunAt = next.Unix()

	if err := s.db.WithContext(ctx).Create(scheduler).Error; err != nil {
		return false, fmt.Errorf("saving scheduler: %w", err)
	}

	s.logger.Info("created scheduler",
		"id", scheduler.ID,
		"recurrence", scheduler.Recurrence,
		"next_run", next.Format(time.RFC3339),
	)
	return false, nil
}

// Due returns the recurring schedulers whose next run is at or before now.
func (s *Service) Due(ctx context.Context, now time.Time) ([]models.Scheduler, error) {
	var due []models.Scheduler
	err := s.db.WithContext(ctx).
		Where("status = ? AND recurrence <> ? AND next_run_at > 0 AND next_run_at <= ?",
			models.SchedulerStatusScheduled, models.RecurrenceScanNow, now.Unix()).
		Find(&due).Error
	if err != nil {
		return nil, err
	}
	return due, nil
}

// MarkTriggered records a trigger and advances the scheduler's next run,
// so a tick that fires twice cannot produce two scans for the same slot.
func (s *Service) MarkTriggered(ctx context.Context, scheduler *models.Scheduler, now time.Time) error {
	next, err := ComputeNextRun(scheduler, now)
	if err != nil {
		return err
	}

	ts := now.Unix()
	return s.db.WithContext(ctx).Model(scheduler).Updates(map[string]interface{}{
		"last_run_at": ts,
		"next_run_at": next.Unix(),
	}).Error
}

// Get loads one scheduler by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Scheduler, error) {
	var scheduler models.Scheduler
	if err := s.db.WithContext(ctx).First(&scheduler, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &scheduler, nil
}
