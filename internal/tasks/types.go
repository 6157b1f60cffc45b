package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TypeScanRun executes one previously created scan.
	TypeScanRun = "scan:run"
	// TypeSchedulerTick evaluates due schedulers and starts their scans.
	TypeSchedulerTick = "scheduler:tick"
)

// ScanRunPayload identifies the scan to execute.
type ScanRunPayload struct {
	ScanID      uuid.UUID `json:"scan_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	SchedulerID uuid.UUID `json:"scheduler_id"`
}

func NewScanRunTask(scanID, projectID, schedulerID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ScanRunPayload{
		ScanID:      scanID,
		ProjectID:   projectID,
		SchedulerID: schedulerID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling scan run payload: %w", err)
	}
	return asynq.NewTask(TypeScanRun, payload, asynq.MaxRetry(0), asynq.Queue("default")), nil
}

func NewSchedulerTickTask() *asynq.Task {
	return asynq.NewTask(TypeSchedulerTick, nil, asynq.MaxRetry(0), asynq.Queue("critical"))
}
