package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStaleTillScan flags till sessions left open or locked too long.
	TaskStaleTillScan = "till:stale_scan"
)

// StaleTillScanPayload controls the stale till scan window.
type StaleTillScanPayload struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// NewStaleTillScanTask constructs an Asynq task.
func NewStaleTillScanTask(payload StaleTillScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleTillScan, data), nil
}
