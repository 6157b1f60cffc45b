package orchestrator_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/dedup"
	"github.com/nmorgan8/scanforge/internal/orchestrator"
	"github.com/nmorgan8/scanforge/internal/scanner"
	"github.com/nmorgan8/scanforge/internal/targets"
	"github.com/nmorgan8/scanforge/internal/testutil"
	"github.com/nmorgan8/scanforge/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubAdapter is a controllable scanner for exercising the engine without
// external tools.
type stubAdapter struct {
	scannerType models.ScannerType
	targetType  models.TargetType
	result      *scanner.Result
	err         error
	calls       atomic.Int32
}

func (s *stubAdapter) Type() models.ScannerType      { return s.scannerType }
func (s *stubAdapter) TargetType() models.TargetType { return s.targetType }

func (s *stubAdapter) Execute(_ context.Context, _ uuid.UUID, _ scanner.Target) (*scanner.Result, error) {
	s.calls.Add(1)
	return s.result, s.err
}

func webFinding(name string) scanner.StructuredFinding {
	return scanner.StructuredFinding{
		Name:       name,
		Severity:   models.SeverityMedium,
		DetailKind: models.DetailKindWeb,
		Detail:     models.WebDetail{URL: "https://example.com", Header: "Strict-Transport-Security"},
	}
}

func newOrchestrator(t *testing.T, db *gorm.DB, adapters map[models.ScannerType]scanner.Adapter) *orchestrator.Orchestrator {
	t.Helper()
	encryptor, err := crypto.NewEncryptor("")
	require.NoError(t, err)
	logger := testutil.DiscardLogger()
	return orchestrator.New(
		db,
		logger,
		adapters,
		targets.NewService(db, encryptor, logger),
		dedup.NewDeduplicator(db, logger),
		orchestrator.NewResourceManager(t.TempDir(), logger),
		orchestrator.Config{Concurrency: 2},
	)
}

func loadScan(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Scan {
	t.Helper()
	var scan models.Scan
	require.NoError(t, db.First(&scan, "id = ?", id).Error)
	return &scan
}

func TestStartScan_CreatesScheduledScan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)

	orch := newOrchestrator(t, db, nil)
	scanID, err := orch.StartScan(context.Background(), project.ID, sched.ID)
	require.NoError(t, err)

	scan := loadScan(t, db, scanID)
	assert.Equal(t, models.ScanStatusScheduled, scan.Status)
	assert.Equal(t, project.ID, scan.ProjectID)
	assert.Equal(t, sched.ID, scan.SchedulerID)
}

func TestRun_ZeroTargetsCompletes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)

	web := &stubAdapter{scannerType: models.ScannerWebApp, targetType: models.TargetTypeDomain}
	orch := newOrchestrator(t, db, map[models.ScannerType]scanner.Adapter{models.ScannerWebApp: web})

	ctx := context.Background()
	scanID, err := orch.StartScan(ctx, project.ID, sched.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, scanID))

	scan := loadScan(t, db, scanID)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	assert.Zero(t, scan.FindingsCount)
	assert.Zero(t, web.calls.Load(), "no targets means no adapter executions")
}

func TestRun_PersistsFindingsAndRawOutput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)
	domain := testutil.CreateTestDomain(t, db, project, "example.com")

	web := &stubAdapter{
		scannerType: models.ScannerWebApp,
		targetType:  models.TargetTypeDomain,
		result: &scanner.Result{
			Raw:      `{"probed": "example.com"}`,
			Findings: []scanner.StructuredFinding{webFinding("Missing HSTS header on example.com")},
		},
	}
	orch := newOrchestrator(t, db, map[models.ScannerType]scanner.Adapter{models.ScannerWebApp: web})

	ctx := context.Background()
	scanID, err := orch.StartScan(ctx, project.ID, sched.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, scanID))

	scan := loadScan(t, db, scanID)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	assert.Equal(t, 1, scan.FindingsCount)
	assert.Positive(t, scan.StartedAt)

	var raw models.RawOutput
	require.NoError(t, db.First(&raw, "scan_id = ?", scanID).Error)
	assert.Equal(t, models.ScannerWebApp, raw.ScannerType)
	assert.Equal(t, domain.ID, raw.TargetID)

	var finding models.Finding
	require.NoError(t, db.First(&finding).Error)
	require.NotNil(t, finding.RawOutputID)
	assert.Equal(t, raw.ID, *finding.RawOutputID, "finding references the raw output it was derived from")
}

func TestRun_PartialFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)
	testutil.CreateTestDomain(t, db, project, "example.com")

	good := &stubAdapter{
		scannerType: models.ScannerWebApp,
		targetType:  models.TargetTypeDomain,
		result: &scanner.Result{
			Raw:      "{}",
			Findings: []scanner.StructuredFinding{webFinding("Missing HSTS header on example.com")},
		},
	}
	bad := &stubAdapter{
		scannerType: models.ScannerDNSRecon,
		targetType:  models.TargetTypeDomain,
		err: &scanner.AdapterError{
			Scanner: models.ScannerDNSRecon,
			Target:  "example.com",
			Err:     scanner.ErrToolUnavailable,
		},
	}
	orch := newOrchestrator(t, db, map[models.ScannerType]scanner.Adapter{
		models.ScannerWebApp:   good,
		models.ScannerDNSRecon: bad,
	})

	ctx := context.Background()
	scanID, err := orch.StartScan(ctx, project.ID, sched.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, scanID))

	scan := loadScan(t, db, scanID)
	assert.Equal(t, models.ScanStatusError, scan.Status, "any task failure makes the scan errored")

	var failed []models.ScannerType
	require.NoError(t, json.Unmarshal([]byte(scan.FailedScanners), &failed))
	assert.Equal(t, []models.ScannerType{models.ScannerDNSRecon}, failed)

	// The succeeding adapter's findings survive the sibling failure.
	var count int64
	db.Model(&models.Finding{}).Count(&count)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, scan.FindingsCount)
}

func TestRun_RawPersistedWhenAdapterFailsAfterOutput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)
	testutil.CreateTestDomain(t, db, project, "example.com")

	// The adapter produced raw output but its parse failed; the evidence
	// must still be durable.
	failing := &stubAdapter{
		scannerType: models.ScannerWebApp,
		targetType:  models.TargetTypeDomain,
		result:      &scanner.Result{Raw: "garbled tool output"},
		err: &scanner.AdapterError{
			Scanner: models.ScannerWebApp,
			Target:  "example.com",
			Err:     scanner.ErrUnparsable,
		},
	}
	orch := newOrchestrator(t, db, map[models.ScannerType]scanner.Adapter{models.ScannerWebApp: failing})

	ctx := context.Background()
	scanID, err := orch.StartScan(ctx, project.ID, sched.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, scanID))

	scan := loadScan(t, db, scanID)
	assert.Equal(t, models.ScanStatusError, scan.Status)

	var raw models.RawOutput
	require.NoError(t, db.First(&raw, "scan_id = ?", scanID).Error)
	assert.Equal(t, "garbled tool output", raw.Payload)

	var count int64
	db.Model(&models.Finding{}).Count(&count)
	assert.Zero(t, count)
}

func TestRun_CloneFailureOnlyFailsRepositoryAdapters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)
	testutil.CreateTestDomain(t, db, project, "example.com")

	repo := &models.Repository{
		ProjectID: project.ID,
		// An unreachable clone URL so acquisition fails deterministically.
		CloneURL: "file:///nonexistent/repo.git",
	}
	require.NoError(t, db.Create(repo).Error)

	secret := &stubAdapter{scannerType: models.ScannerSecret, targetType: models.TargetTypeRepository}
	web := &stubAdapter{
		scannerType: models.ScannerWebApp,
		targetType:  models.TargetTypeDomain,
		result: &scanner.Result{
			Raw:      "{}",
			Findings: []scanner.StructuredFinding{webFinding("Missing HSTS header on example.com")},
		},
	}
	orch := newOrchestrator(t, db, map[models.ScannerType]scanner.Adapter{
		models.ScannerSecret: secret,
		models.ScannerWebApp: web,
	})

	ctx := context.Background()
	scanID, err := orch.StartScan(ctx, project.ID, sched.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, scanID))

	scan := loadScan(t, db, scanID)
	assert.Equal(t, models.ScanStatusError, scan.Status)

	var failed []models.ScannerType
	require.NoError(t, json.Unmarshal([]byte(scan.FailedScanners), &failed))
	assert.Equal(t, []models.ScannerType{models.ScannerSecret}, failed)

	assert.Zero(t, secret.calls.Load(), "clone-dependent adapter never executes without a checkout")
	assert.Equal(t, int32(1), web.calls.Load(), "unrelated adapter runs normally")
	assert.Equal(t, 1, scan.FindingsCount)
}

func TestRun_FanOutPerDomain(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)
	testutil.CreateTestDomain(t, db, project, "a.example.com")
	testutil.CreateTestDomain(t, db, project, "b.example.com")
	testutil.CreateTestDomain(t, db, project, "c.example.com")

	web := &stubAdapter{
		scannerType: models.ScannerWebApp,
		targetType:  models.TargetTypeDomain,
		result:      &scanner.Result{Raw: "{}"},
	}
	orch := newOrchestrator(t, db, map[models.ScannerType]scanner.Adapter{models.ScannerWebApp: web})

	ctx := context.Background()
	scanID, err := orch.StartScan(ctx, project.ID, sched.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, scanID))

	assert.Equal(t, int32(3), web.calls.Load(), "one task per domain")

	var rawCount int64
	db.Model(&models.RawOutput{}).Where("scan_id = ?", scanID).Count(&rawCount)
	assert.Equal(t, int64(3), rawCount)
}

func TestRun_AdapterPanicIsContained(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	project := testutil.CreateTestProject(t, db)
	sched := testutil.CreateTestScheduler(t, db, project)
	testutil.CreateTestDomain(t, db, project, "example.com")

	orch := newOrchestrator(t, db, map[models.ScannerType]scanner.Adapter{
		models.ScannerWebApp: panicAdapter{},
	})

	ctx := context.Background()
	scanID, err := orch.StartScan(ctx, project.ID, sched.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, scanID))

	scan := loadScan(t, db, scanID)
	assert.Equal(t, models.ScanStatusError, scan.Status)
}

type panicAdapter struct{}

func (panicAdapter) Type() models.ScannerType      { return models.ScannerWebApp }
func (panicAdapter) TargetType() models.TargetType { return models.TargetTypeDomain }
func (panicAdapter) Execute(context.Context, uuid.UUID, scanner.Target) (*scanner.Result, error) {
	panic("adapter bug")
}
