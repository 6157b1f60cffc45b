package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nmorgan8/scanforge/internal/orchestrator"
	"github.com/nmorgan8/scanforge/internal/schedule"
)

// Handler owns the queue-facing side of the engine: it turns asynq tasks
// into orchestrator and scheduler calls, and implements the enqueuer the
// orchestrator uses to hand scans back to the queue.
type Handler struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	schedulers   *schedule.Service
	client       *asynq.Client
}

func NewHandler(logger *slog.Logger, orch *orchestrator.Orchestrator, schedulers *schedule.Service, client *asynq.Client) *Handler {
	h := &Handler{
		logger:       logger,
		orchestrator: orch,
		schedulers:   schedulers,
		client:       client,
	}
	if client != nil {
		orch.SetEnqueuer(h)
	}
	return h
}

// RegisterHandlers wires every task type into the mux.
func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScanRun, h.HandleScanRun)
	mux.HandleFunc(TypeSchedulerTick, h.HandleSchedulerTick)
}

// EnqueueScanRun implements orchestrator.Enqueuer.
func (h *Handler) EnqueueScanRun(ctx context.Context, scanID, projectID, schedulerID uuid.UUID) (string, error) {
	task, err := NewScanRunTask(scanID, projectID, schedulerID)
	if err != nil {
		return "", err
	}
	info, err := h.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueueing %s: %w", TypeScanRun, err)
	}
	return info.ID, nil
}

// HandleScanRun executes one scan. A malformed payload is unretryable;
// execution errors have already been recorded on the scan row, so they are
// logged rather than bounced back to the queue.
func (h *Handler) HandleScanRun(ctx context.Context, t *asynq.Task) error {
	var p ScanRunPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshaling %s payload: %v: %w", TypeScanRun, err, asynq.SkipRetry)
	}

	h.logger.Info("executing scan", "scan_id", p.ScanID, "project_id", p.ProjectID)
	if err := h.orchestrator.Run(ctx, p.ScanID); err != nil {
		h.logger.Error("scan run failed", "scan_id", p.ScanID, "error", err)
	}
	return nil
}

// HandleSchedulerTick starts a scan for every due scheduler. One bad
// scheduler never blocks the rest of the batch.
func (h *Handler) HandleSchedulerTick(ctx context.Context, _ *asynq.Task) error {
	now := time.Now().UTC()
	due, err := h.schedulers.Due(ctx, now)
	if err != nil {
		return fmt.Errorf("loading due schedulers: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	h.logger.Info("scheduler tick", "due", len(due))
	for i := range due {
		s := &due[i]
		scanID, err := h.orchestrator.StartScan(ctx, s.ProjectID, s.ID)
		if err != nil {
			h.logger.Error("failed to start scheduled scan", "scheduler_id", s.ID, "error", err)
			continue
		}
		if err := h.schedulers.MarkTriggered(ctx, s, now); err != nil {
			h.logger.Error("failed to advance scheduler", "scheduler_id", s.ID, "scan_id", scanID, "error", err)
		}
	}
	return nil
}

var _ orchestrator.Enqueuer = (*Handler)(nil)
