package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/schedule"
	"github.com/nmorgan8/scanforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := schedule.NewService(db, testutil.DiscardLogger())
	project := testutil.CreateTestProject(t, db)
	ctx := context.Background()

	t.Run("recurring scheduler gets a next run", func(t *testing.T) {
		scheduler := &models.Scheduler{
			ProjectID:  project.ID,
			Recurrence: models.RecurrenceDaily,
			TimeOfDay:  "02:00",
		}
		triggerNow, err := svc.Create(ctx, scheduler)
		require.NoError(t, err)
		assert.False(t, triggerNow)
		assert.Equal(t, models.SchedulerStatusScheduled, scheduler.Status)
		assert.Greater(t, scheduler.NextRunAt, time.Now().Unix())
	})

	t.Run("scan_now completes immediately and asks for a trigger", func(t *testing.T) {
		scheduler := &models.Scheduler{
			ProjectID:  project.ID,
			Recurrence: models.RecurrenceScanNow,
		}
		triggerNow, err := svc.Create(ctx, scheduler)
		require.NoError(t, err)
		assert.True(t, triggerNow)
		assert.Equal(t, models.SchedulerStatusCompleted, scheduler.Status)
		assert.Zero(t, scheduler.NextRunAt)
	})

	t.Run("invalid configuration is rejected before persisting", func(t *testing.T) {
		scheduler := &models.Scheduler{
			ProjectID:  project.ID,
			Recurrence: models.RecurrenceWeekly,
			TimeOfDay:  "02:00",
		}
		_, err := svc.Create(ctx, scheduler)
		var verr *schedule.ValidationError
		require.ErrorAs(t, err, &verr)

		var count int64
		db.Model(&models.Scheduler{}).Where("recurrence = ?", models.RecurrenceWeekly).Count(&count)
		assert.Zero(t, count)
	})
}

func TestService_Due(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := schedule.NewService(db, testutil.DiscardLogger())
	project := testutil.CreateTestProject(t, db)
	ctx := context.Background()
	now := time.Now()

	past := &models.Scheduler{
		ProjectID:  project.ID,
		Recurrence: models.RecurrenceDaily,
		TimeOfDay:  "02:00",
		Status:     models.SchedulerStatusScheduled,
		NextRunAt:  now.Add(-time.Hour).Unix(),
	}
	require.NoError(t, db.Create(past).Error)

	future := &models.Scheduler{
		ProjectID:  project.ID,
		Recurrence: models.RecurrenceDaily,
		TimeOfDay:  "02:00",
		Status:     models.SchedulerStatusScheduled,
		NextRunAt:  now.Add(time.Hour).Unix(),
	}
	require.NoError(t, db.Create(future).Error)

	disabled := &models.Scheduler{
		ProjectID:  project.ID,
		Recurrence: models.RecurrenceDaily,
		TimeOfDay:  "02:00",
		Status:     models.SchedulerStatusDisabled,
		NextRunAt:  now.Add(-time.Hour).Unix(),
	}
	require.NoError(t, db.Create(disabled).Error)

	due, err := svc.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, past.ID, due[0].ID)
}

func TestService_MarkTriggered(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := schedule.NewService(db, testutil.DiscardLogger())
	project := testutil.CreateTestProject(t, db)
	ctx := context.Background()
	now := time.Now()

	scheduler := &models.Scheduler{
		ProjectID:  project.ID,
		Recurrence: models.RecurrenceDaily,
		TimeOfDay:  "02:00",
		Status:     models.SchedulerStatusScheduled,
		NextRunAt:  now.Add(-time.Minute).Unix(),
	}
	require.NoError(t, db.Create(scheduler).Error)

	require.NoError(t, svc.MarkTriggered(ctx, scheduler, now))

	reloaded, err := svc.Get(ctx, scheduler.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastRunAt)
	assert.Equal(t, now.Unix(), *reloaded.LastRunAt)
	assert.Greater(t, reloaded.NextRunAt, now.Unix())

	// The advanced scheduler is no longer due for this tick.
	due, err := svc.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}
