package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/catalog"
	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/planner"
)

// TripPlanner plans a single itinerary.
type TripPlanner interface {
	PlanTrip(ctx context.Context, records []place.Record, req planner.Requirement) (*planner.Result, error)
}

// PlaceResolver loads candidate places from the catalog.
type PlaceResolver interface {
	Resolve(ctx context.Context, ids []string, region string) ([]place.Record, error)
}

// BatchPlanner plans jobs on a bounded pool of goroutines.
type BatchPlanner struct {
	config   Config
	planner  TripPlanner
	resolver PlaceResolver
	logger   zerolog.Logger
	now      func() time.Time

	metrics *BatchMetrics
}

// BatchMetrics tracks planning statistics for the worker.
type BatchMetrics struct {
	mu sync.RWMutex

	TotalBatches  int64
	TotalJobs     int64
	SucceededJobs int64
	FailedJobs    int64
	TimedOutJobs  int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// BatchPlannerConfig holds configuration for creating a BatchPlanner.
type BatchPlannerConfig struct {
	Config  Config
	Planner TripPlanner

	// Resolver is optional. Without it only jobs carrying inline places
	// can be planned.
	Resolver PlaceResolver
	Logger   zerolog.Logger
}

// NewBatchPlanner creates a new batch planner.
func NewBatchPlanner(cfg BatchPlannerConfig) *BatchPlanner {
	return &BatchPlanner{
		config:   cfg.Config.withDefaults(),
		planner:  cfg.Planner,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
		now:      time.Now,
		metrics:  &BatchMetrics{},
	}
}

// Run plans every job and returns the results in input order. A failing job
// never affects the others.
func (b *BatchPlanner) Run(ctx context.Context, batchID string, jobs []PlanJob) *BatchResult {
	if batchID == "" {
		batchID = uuid.NewString()
	}
	startTime := b.now()
	result := &BatchResult{
		BatchID:   batchID,
		StartTime: startTime,
		Total:     len(jobs),
		Results:   make([]JobResult, len(jobs)),
	}

	b.logger.Info().
		Str("batch_id", batchID).
		Int("jobs", len(jobs)).
		Int("concurrency", b.config.Concurrency).
		Msg("starting plan batch")

	indexChan := make(chan int, len(jobs))
	resultsChan := make(chan indexedResult, len(jobs))

	var wg sync.WaitGroup
	workers := min(b.config.Concurrency, len(jobs))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.planWorker(ctx, jobs, indexChan, resultsChan)
		}()
	}

	for i := range jobs {
		indexChan <- i
	}
	close(indexChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for ir := range resultsChan {
		result.Results[ir.index] = ir.result
		if ir.result.Status == JobStatusSucceeded {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	result.EndTime = b.now()
	result.Duration = result.EndTime.Sub(startTime)

	b.updateMetrics(result)

	b.logger.Info().
		Str("batch_id", batchID).
		Dur("duration", result.Duration).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("plan batch completed")

	return result
}

type indexedResult struct {
	index  int
	result JobResult
}

func (b *BatchPlanner) planWorker(ctx context.Context, jobs []PlanJob, indexes <-chan int, results chan<- indexedResult) {
	for i := range indexes {
		var res JobResult
		if err := ctx.Err(); err != nil {
			// Drain remaining jobs as failures so every index is reported.
			res = failedResult(jobs[i].ID, err, 0)
		} else {
			res = b.plan(ctx, jobs[i])
		}
		results <- indexedResult{index: i, result: res}
	}
}

// PlanOne plans a single job under the per-job timeout.
func (b *BatchPlanner) PlanOne(ctx context.Context, job PlanJob) JobResult {
	res := b.plan(ctx, job)

	b.metrics.mu.Lock()
	b.metrics.TotalJobs++
	b.countJob(res)
	b.metrics.LastRunAt = b.now()
	b.metrics.mu.Unlock()

	return res
}

func (b *BatchPlanner) plan(ctx context.Context, job PlanJob) JobResult {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	start := b.now()

	jobCtx, cancel := context.WithTimeout(ctx, b.config.JobTimeout)
	defer cancel()

	records, err := b.candidates(jobCtx, job)
	if err != nil {
		return failedResult(job.ID, err, b.now().Sub(start))
	}

	plan, err := b.planner.PlanTrip(jobCtx, records, job.Requirement)
	elapsed := b.now().Sub(start)
	if err != nil {
		b.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("planning job failed")
		return failedResult(job.ID, err, elapsed)
	}

	return JobResult{
		JobID:      job.ID,
		Status:     JobStatusSucceeded,
		Plan:       plan,
		DurationMs: float64(elapsed.Microseconds()) / 1000,
	}
}

func (b *BatchPlanner) candidates(ctx context.Context, job PlanJob) ([]place.Record, error) {
	sources := 0
	if len(job.Places) > 0 {
		sources++
	}
	if len(job.PlaceIDs) > 0 {
		sources++
	}
	if job.Region != "" {
		sources++
	}
	if sources != 1 {
		return nil, fmt.Errorf("%w: exactly one of places, place_ids or region is required", ErrInvalidJob)
	}

	if len(job.Places) > 0 {
		return job.Places, nil
	}

	if b.resolver == nil {
		return nil, fmt.Errorf("%w: place catalog is not configured", ErrInvalidJob)
	}
	records, err := b.resolver.Resolve(ctx, job.PlaceIDs, job.Region)
	if err != nil {
		return nil, fmt.Errorf("resolve places: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no places in region %q", ErrInvalidJob, job.Region)
	}
	return records, nil
}

// HealthCheck plans a one-stop trip to verify the routing provider.
func (b *BatchPlanner) HealthCheck(ctx context.Context) error {
	landmark := planner.DefaultLandmarkCoordinate
	hours := make(map[int][]place.TimeRange, 7)
	for d := 1; d <= 7; d++ {
		hours[d] = []place.TimeRange{{Start: "00:00", End: "23:59"}}
	}
	seed := int64(1)

	res := b.plan(ctx, PlanJob{
		ID: "health-check",
		Places: []place.Record{{
			Name:    "health-check",
			Lat:     landmark.Lat + 0.01,
			Lon:     landmark.Lon + 0.01,
			DayPart: "morning",
			Hours:   hours,
		}},
		Requirement: planner.Requirement{Seed: &seed},
	})
	if res.Status != JobStatusSucceeded {
		return fmt.Errorf("health check failed: %s", res.Error)
	}
	return nil
}

func failedResult(jobID string, err error, elapsed time.Duration) JobResult {
	res := JobResult{
		JobID:      jobID,
		Status:     JobStatusFailed,
		Error:      err.Error(),
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		err:        err,
	}
	if errors.Is(err, context.DeadlineExceeded) {
		res.Status = JobStatusTimedOut
	}
	var vErr *place.ValidationError
	if errors.As(err, &vErr) {
		res.Field = vErr.Field
	}
	return res
}

func isPermanent(err error) bool {
	return errors.Is(err, place.ErrValidation) ||
		errors.Is(err, catalog.ErrPlaceNotFound) ||
		errors.Is(err, ErrInvalidJob)
}

// countJob must be called with the metrics lock held.
func (b *BatchPlanner) countJob(res JobResult) {
	switch res.Status {
	case JobStatusSucceeded:
		b.metrics.SucceededJobs++
	case JobStatusTimedOut:
		b.metrics.TimedOutJobs++
		b.metrics.FailedJobs++
	default:
		b.metrics.FailedJobs++
	}
}

func (b *BatchPlanner) updateMetrics(result *BatchResult) {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()

	b.metrics.TotalBatches++
	b.metrics.TotalJobs += int64(result.Total)
	for _, r := range result.Results {
		b.countJob(r)
	}
	b.metrics.LastRunAt = result.EndTime
	b.metrics.LastRunDuration = result.Duration
	b.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (b *BatchPlanner) GetMetrics() BatchMetrics {
	b.metrics.mu.RLock()
	defer b.metrics.mu.RUnlock()

	return BatchMetrics{
		TotalBatches:    b.metrics.TotalBatches,
		TotalJobs:       b.metrics.TotalJobs,
		SucceededJobs:   b.metrics.SucceededJobs,
		FailedJobs:      b.metrics.FailedJobs,
		TimedOutJobs:    b.metrics.TimedOutJobs,
		LastRunAt:       b.metrics.LastRunAt,
		LastRunDuration: b.metrics.LastRunDuration,
		TotalDuration:   b.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (b *BatchPlanner) MetricsSnapshot() map[string]interface{} {
	m := b.GetMetrics()
	return map[string]interface{}{
		"total_batches":     m.TotalBatches,
		"total_jobs":        m.TotalJobs,
		"succeeded_jobs":    m.SucceededJobs,
		"failed_jobs":       m.FailedJobs,
		"timed_out_jobs":    m.TimedOutJobs,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
