package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/dedup"
	"github.com/nmorgan8/scanforge/internal/scanner"
	"github.com/nmorgan8/scanforge/internal/targets"
	"gorm.io/gorm"
)

// Enqueuer hands a created scan to the asynchronous execution layer.
// Implemented by the task queue so the engine stays queue-agnostic in tests.
type Enqueuer interface {
	EnqueueScanRun(ctx context.Context, scanID, projectID, schedulerID uuid.UUID) (taskID string, err error)
}

// Config tunes the orchestrator's execution behavior.
type Config struct {
	// Concurrency bounds the adapter worker pool of one scan run.
	Concurrency int
	// ScanTimeout bounds a whole run; unfinished tasks are marked failed
	// but resources are still released. Zero disables the timeout.
	ScanTimeout time.Duration
}

// Orchestrator turns a scheduler trigger into a concrete scan run: it
// resolves targets, fans out one task per applicable (adapter, target)
// pair on a bounded worker pool, persists raw output before derived
// findings, and finalizes the scan status after all tasks join.
type Orchestrator struct {
	db        *gorm.DB
	logger    *slog.Logger
	adapters  map[models.ScannerType]scanner.Adapter
	resolver  *targets.Service
	dedup     *dedup.Deduplicator
	resources *ResourceManager
	enqueuer  Enqueuer
	cfg       Config
}

func New(db *gorm.DB, logger *slog.Logger, adapters map[models.ScannerType]scanner.Adapter, resolver *targets.Service, deduplicator *dedup.Deduplicator, resources *ResourceManager, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Orchestrator{
		db:        db,
		logger:    logger,
		adapters:  adapters,
		resolver:  resolver,
		dedup:     deduplicator,
		resources: resources,
		cfg:       cfg,
	}
}

// SetEnqueuer wires the asynchronous execution layer. Without one, StartScan
// still creates the scan row but nothing picks it up.
func (o *Orchestrator) SetEnqueuer(e Enqueuer) {
	o.enqueuer = e
}

// StartScan synchronously creates the Scan row in scheduled status, then
// hands it to the queue for asynchronous execution.
func (o *Orchestrator) StartScan(ctx context.Context, projectID, schedulerID uuid.UUID) (uuid.UUID, error) {
	scan := &models.Scan{
		ProjectID:      projectID,
		SchedulerID:    schedulerID,
		Status:         models.ScanStatusScheduled,
		FailedScanners: "[]",
	}
	if err := o.db.WithContext(ctx).Create(scan).Error; err != nil {
		return uuid.Nil, fmt.Errorf("creating scan: %w", err)
	}

	if o.enqueuer != nil {
		taskID, err := o.enqueuer.EnqueueScanRun(ctx, scan.ID, projectID, schedulerID)
		if err != nil {
			// The scan row exists but will never run; surface that instead
			// of leaving it silently stuck in scheduled.
			o.failScan(scan.ID, fmt.Sprintf("enqueue failed: %v", err), time.Time{})
			return scan.ID, fmt.Errorf("enqueueing scan run: %w", err)
		}
		o.db.WithContext(ctx).Model(scan).Update("task_id", taskID)
	}

	o.logger.Info("scan created", "scan_id", scan.ID, "project_id", projectID, "scheduler_id", schedulerID)
	return scan.ID, nil
}

// task is one independent unit of work: a single adapter against a single
// resolved target. Tasks share no mutable state and have no ordering
// guarantees between them.
type task struct {
	adapter    scanner.Adapter
	target     scanner.Target
	needsClone bool
}

// taskResult is what a worker reports back after a task joins.
type taskResult struct {
	scannerType models.ScannerType
	findings    int
	err         error
}

// Run executes a previously created scan to completion. Adapter, resource
// and structuring failures are contained at task level; only store
// unavailability is scan-fatal.
func (o *Orchestrator) Run(ctx context.Context, scanID uuid.UUID) error {
	var scan models.Scan
	if err := o.db.WithContext(ctx).First(&scan, "id = ?", scanID).Error; err != nil {
		return fmt.Errorf("loading scan: %w", err)
	}

	start := time.Now()
	if err := o.db.WithContext(ctx).Model(&scan).Updates(map[string]interface{}{
		"status":     models.ScanStatusRunning,
		"started_at": start.Unix(),
	}).Error; err != nil {
		return fmt.Errorf("marking scan running: %w", err)
	}

	if o.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ScanTimeout)
		defer cancel()
	}

	set, err := o.resolver.ResolveTargets(ctx, scan.ProjectID)
	if err != nil {
		o.failScan(scanID, fmt.Sprintf("resolving targets: %v", err), start)
		return err
	}

	tasks := o.buildTasks(set)
	if len(tasks) == 0 {
		// Nothing to scan is not an error; the scan completes empty.
		o.finalize(&scan, nil, 0, start)
		return nil
	}

	// Shared resources are acquired once and released unconditionally,
	// whatever happens between here and the join.
	res := o.resources.Acquire(ctx, set.Repository)
	defer o.resources.Release(res)

	results := o.runPool(ctx, scanID, scan.ProjectID, tasks, res)

	var failed []models.ScannerType
	var persistence error
	total := 0
	for _, r := range results {
		if r.err != nil {
			var pe *dedup.PersistenceError
			if errors.As(r.err, &pe) {
				persistence = r.err
			}
			failed = append(failed, r.scannerType)
			o.logger.Error("adapter task failed", "scan_id", scanID, "scanner", r.scannerType, "error", r.err)
			continue
		}
		total += r.findings
	}

	if persistence != nil {
		o.failScan(scanID, persistence.Error(), start)
		return persistence
	}

	o.finalize(&scan, failed, total, start)
	return nil
}

// buildTasks intersects the configured adapters with the resolved target
// set. Adapters are visited in a stable order only so logs are predictable;
// execution order is unspecified.
func (o *Orchestrator) buildTasks(set *targets.TargetSet) []task {
	types := make([]string, 0, len(o.adapters))
	for t := range o.adapters {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var tasks []task
	for _, t := range types {
		ad := o.adapters[models.ScannerType(t)]

		switch ad.TargetType() {
		case models.TargetTypeRepository:
			if set.Repository != nil {
				tasks = append(tasks, task{
					adapter:    ad,
					needsClone: true,
					target: scanner.Target{
						ID:         set.Repository.ID,
						Type:       models.TargetTypeRepository,
						Repository: set.Repository,
					},
				})
			}
		case models.TargetTypeDomain:
			for i := range set.Domains {
				tasks = append(tasks, task{
					adapter: ad,
					target: scanner.Target{
						ID:     set.Domains[i].ID,
						Type:   models.TargetTypeDomain,
						Domain: &set.Domains[i],
					},
				})
			}
		case models.TargetTypeContract:
			for i := range set.ContractBundles {
				tasks = append(tasks, task{
					adapter: ad,
					target: scanner.Target{
						ID:       set.ContractBundles[i].ID,
						Type:     models.TargetTypeContract,
						Contract: &set.ContractBundles[i],
					},
				})
			}
		case models.TargetTypeAzure:
			if set.Azure != nil {
				cred := set.Azure.Credential
				tasks = append(tasks, task{
					adapter: ad,
					target: scanner.Target{
						ID:    set.Azure.TargetID(),
						Type:  models.TargetTypeAzure,
						Azure: &cred,
					},
				})
			}
		case models.TargetTypeGoogle:
			if set.Google != nil {
				cred := set.Google.Credential
				tasks = append(tasks, task{
					adapter: ad,
					target: scanner.Target{
						ID:     set.Google.TargetID(),
						Type:   models.TargetTypeGoogle,
						Google: &cred,
					},
				})
			}
		}
	}
	return tasks
}

// runPool executes tasks on a bounded worker pool and blocks until every
// task joins. A task failure never aborts its siblings.
func (o *Orchestrator) runPool(ctx context.Context, scanID, projectID uuid.UUID, tasks []task, res *Resources) []taskResult {
	queue := make(chan task)
	results := make([]taskResult, 0, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := o.cfg.Concurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				r := o.runTask(ctx, scanID, projectID, t, res)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	for _, t := range tasks {
		queue <- t
	}
	close(queue)
	wg.Wait()

	return results
}

// runTask executes one (adapter, target) pair: raw output is made durable
// first, then candidates flow through dedup. Panics in an adapter are
// contained as task failures.
func (o *Orchestrator) runTask(ctx context.Context, scanID, projectID uuid.UUID, t task, res *Resources) (result taskResult) {
	result.scannerType = t.adapter.Type()

	defer func() {
		if r := recover(); r != nil {
			result.err = &scanner.AdapterError{
				Scanner: t.adapter.Type(),
				Target:  t.target.ID.String(),
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if t.needsClone {
		clonePath, err := res.ClonePath()
		if err != nil {
			result.err = err
			return result
		}
		t.target.ClonePath = clonePath
	}

	execResult, execErr := t.adapter.Execute(ctx, scanID, t.target)

	// Raw evidence is persisted before any derived finding, and even when
	// the adapter itself failed after producing output.
	var rawID uuid.UUID
	if execResult != nil && execResult.Raw != "" {
		raw := &models.RawOutput{
			ScanID:      scanID,
			ScannerType: t.adapter.Type(),
			TargetID:    t.target.ID,
			TargetType:  t.target.Type,
			Payload:     execResult.Raw,
		}
		if err := o.db.WithContext(ctx).Create(raw).Error; err != nil {
			result.err = &dedup.PersistenceError{Err: err}
			return result
		}
		rawID = raw.ID
	}

	if execErr != nil {
		result.err = execErr
		return result
	}

	observed, err := o.dedup.Process(ctx, scanID, projectID, t.adapter.Type(), t.target.ID, t.target.Type, rawID, execResult.Findings)
	result.findings = observed
	if err != nil {
		result.err = err
	}
	return result
}

// finalize sets the terminal status after the join: error if any task
// failed, completed otherwise.
func (o *Orchestrator) finalize(scan *models.Scan, failed []models.ScannerType, findings int, start time.Time) {
	status := models.ScanStatusCompleted
	if len(failed) > 0 {
		status = models.ScanStatusError
	}
	failedJSON, _ := json.Marshal(failed)
	if failed == nil {
		failedJSON = []byte("[]")
	}

	updates := map[string]interface{}{
		"status":          status,
		"duration_ms":     time.Since(start).Milliseconds(),
		"failed_scanners": string(failedJSON),
		"findings_count":  findings,
	}
	if err := o.db.Model(scan).Updates(updates).Error; err != nil {
		o.logger.Error("failed to finalize scan", "scan_id", scan.ID, "error", err)
		return
	}

	o.logger.Info("scan finished",
		"scan_id", scan.ID,
		"status", status,
		"findings", findings,
		"failed_scanners", len(failed),
		"duration_ms", updates["duration_ms"],
	)
}

// failScan marks a scan failed outside the normal finalize path, e.g. when
// target resolution or the store itself is unavailable.
func (o *Orchestrator) failScan(scanID uuid.UUID, msg string, start time.Time) {
	updates := map[string]interface{}{
		"status": models.ScanStatusError,
		"error":  msg,
	}
	if !start.IsZero() {
		updates["duration_ms"] = time.Since(start).Milliseconds()
	}
	if err := o.db.Model(&models.Scan{}).Where("id = ?", scanID).Updates(updates).Error; err != nil {
		o.logger.Error("failed to mark scan errored", "scan_id", scanID, "error", err)
	}
}
