package worker

import (
	"errors"
	"time"

	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/planner"
)

// Job types carried in JobMessage.JobType.
const (
	JobTypePlanTrip    = "plan_trip"
	JobTypePlanBatch   = "plan_batch"
	JobTypeHealthCheck = "health_check"
)

// ErrInvalidJob is returned for jobs that can never succeed as sent.
var ErrInvalidJob = errors.New("invalid job")

// JobMessage is the payload of a job received from Pub/Sub.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Plan is set for plan_trip jobs.
	Plan *PlanJob `json:"plan,omitempty"`

	// Batch is set for plan_batch jobs. Each job is planned independently.
	BatchID string    `json:"batch_id,omitempty"`
	Batch   []PlanJob `json:"batch,omitempty"`
}

// PlanJob describes one trip to plan. Candidates come from exactly one of
// Places, PlaceIDs or Region.
type PlanJob struct {
	ID          string              `json:"id,omitempty"`
	Places      []place.Record      `json:"places,omitempty"`
	PlaceIDs    []string            `json:"place_ids,omitempty"`
	Region      string              `json:"region,omitempty"`
	Requirement planner.Requirement `json:"requirement"`
}

// JobStatus is the outcome of a planning job.
type JobStatus string

const (
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// JobResult is published for every planned job.
type JobResult struct {
	JobID      string          `json:"job_id"`
	Status     JobStatus       `json:"status"`
	Plan       *planner.Result `json:"plan,omitempty"`
	Error      string          `json:"error,omitempty"`
	Field      string          `json:"field,omitempty"`
	DurationMs float64         `json:"duration_ms"`

	// err is the underlying failure, used to decide redelivery.
	err error
}

// Permanent reports whether the job failed in a way redelivery cannot fix.
func (r *JobResult) Permanent() bool {
	if r.err == nil {
		return r.Status == JobStatusSucceeded
	}
	return isPermanent(r.err)
}

// BatchResult contains the results of a plan_batch job, in input order.
type BatchResult struct {
	BatchID   string        `json:"batch_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"-"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []JobResult   `json:"results"`
}
