package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Project{},
		&models.Repository{},
		&models.Domain{},
		&models.ContractBundle{},
		&models.CloudCredential{},
		&models.Scheduler{},
		&models.Scan{},
		&models.RawOutput{},
		&models.Finding{},
		&models.FindingScanLink{},
		&models.ExtendedDetail{},
		&models.FixRecommendation{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// DiscardLogger returns a logger that swallows all output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestProject creates a test project
func CreateTestProject(t *testing.T, db *gorm.DB) *models.Project {
	t.Helper()

	project := &models.Project{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:        "Test Project " + uuid.New().String()[:8],
		Description: "created by tests",
	}

	if err := db.Create(project).Error; err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}

	return project
}

// CreateTestRepository creates a repository target for the given project
func CreateTestRepository(t *testing.T, db *gorm.DB, project *models.Project) *models.Repository {
	t.Helper()

	repo := &models.Repository{
		Base: models.Base{
			ID: uuid.New(),
		},
		ProjectID: project.ID,
		CloneURL:  "https://example.com/test/repo.git",
		Branch:    "main",
	}

	if err := db.Create(repo).Error; err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	return repo
}

// CreateTestDomain creates a domain target for the given project
func CreateTestDomain(t *testing.T, db *gorm.DB, project *models.Project, hostname string) *models.Domain {
	t.Helper()

	domain := &models.Domain{
		Base: models.Base{
			ID: uuid.New(),
		},
		ProjectID: project.ID,
		Hostname:  hostname,
	}

	if err := db.Create(domain).Error; err != nil {
		t.Fatalf("failed to create test domain: %v", err)
	}

	return domain
}

// CreateTestScheduler creates a daily scheduler for the given project
func CreateTestScheduler(t *testing.T, db *gorm.DB, project *models.Project) *models.Scheduler {
	t.Helper()

	scheduler := &models.Scheduler{
		Base: models.Base{
			ID: uuid.New(),
		},
		ProjectID:  project.ID,
		Recurrence: models.RecurrenceDaily,
		TimeOfDay:  "02:00",
		Status:     models.SchedulerStatusScheduled,
	}

	if err := db.Create(scheduler).Error; err != nil {
		t.Fatalf("failed to create test scheduler: %v", err)
	}

	return scheduler
}

// CreateTestScan creates a scan in the given status
func CreateTestScan(t *testing.T, db *gorm.DB, project *models.Project, scheduler *models.Scheduler, status models.ScanStatus) *models.Scan {
	t.Helper()

	scan := &models.Scan{
		Base: models.Base{
			ID: uuid.New(),
		},
		ProjectID:      project.ID,
		SchedulerID:    scheduler.ID,
		Status:         status,
		FailedScanners: "[]",
	}

	if err := db.Create(scan).Error; err != nil {
		t.Fatalf("failed to create test scan: %v", err)
	}

	return scan
}

// CreateTestFinding creates an open finding keyed to the given target
func CreateTestFinding(t *testing.T, db *gorm.DB, project *models.Project, targetID uuid.UUID, targetType models.TargetType, scannerType models.ScannerType, name string) *models.Finding {
	t.Helper()

	finding := &models.Finding{
		Base: models.Base{
			ID: uuid.New(),
		},
		ProjectID:   project.ID,
		TargetID:    targetID,
		TargetType:  targetType,
		ScannerType: scannerType,
		Name:        name,
		Description: "created by tests",
		Severity:    models.SeverityMedium,
		Status:      models.FindingStatusOpen,
	}

	if err := db.Create(finding).Error; err != nil {
		t.Fatalf("failed to create test finding: %v", err)
	}

	return finding
}
