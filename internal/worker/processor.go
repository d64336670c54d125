package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Message is a received job, independent of the transport.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time

	// DeliveryAttempt counts redeliveries when the subscription has a
	// dead-letter policy, and is zero otherwise.
	DeliveryAttempt int
}

// CorrelationAttribute is copied from a job message onto its result so
// callers can match the two.
const CorrelationAttribute = "correlation_id"

// Publisher emits job results.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// Processor decodes job messages, plans them and publishes the results.
// Handle returning nil means the message should be acknowledged.
type Processor struct {
	batch     *BatchPlanner
	publisher Publisher
	logger    zerolog.Logger
}

// NewProcessor creates a new job processor.
func NewProcessor(batch *BatchPlanner, publisher Publisher, logger zerolog.Logger) *Processor {
	return &Processor{
		batch:     batch,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle processes one message. A non-nil error asks for redelivery.
func (p *Processor) Handle(ctx context.Context, msg Message) error {
	startTime := time.Now()

	logger := p.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Int("delivery_attempt", msg.DeliveryAttempt).
		Logger()

	logger.Debug().Msg("received job message")

	var job JobMessage
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return fmt.Errorf("parse message: %w", err)
	}

	attrs := map[string]string{"job_type": job.JobType}
	if id := msg.Attributes[CorrelationAttribute]; id != "" {
		attrs[CorrelationAttribute] = id
	}

	var err error
	switch job.JobType {
	case JobTypePlanTrip:
		err = p.handlePlanTrip(ctx, job, attrs)
	case JobTypePlanBatch:
		err = p.handlePlanBatch(ctx, job, attrs)
	case JobTypeHealthCheck:
		err = p.batch.HealthCheck(ctx)
	default:
		// Unknown messages are acknowledged to prevent redelivery.
		logger.Warn().Str("job_type", job.JobType).Msg("unknown job type")
		return nil
	}

	if err != nil {
		logger.Error().Err(err).Str("job_type", job.JobType).Msg("job failed")
		return err
	}

	logger.Info().
		Str("job_type", job.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}

func (p *Processor) handlePlanTrip(ctx context.Context, job JobMessage, attrs map[string]string) error {
	if job.Plan == nil {
		// Nothing to retry and nobody to report to.
		p.logger.Warn().Msg("plan_trip message without plan")
		return nil
	}

	res := p.batch.PlanOne(ctx, *job.Plan)
	if !res.Permanent() {
		return fmt.Errorf("plan job %s: %s", res.JobID, res.Error)
	}

	attrs["job_id"] = res.JobID
	attrs["status"] = string(res.Status)
	return p.publish(ctx, res, attrs)
}

func (p *Processor) handlePlanBatch(ctx context.Context, job JobMessage, attrs map[string]string) error {
	if len(job.Batch) > p.batch.config.MaxBatchSize {
		p.logger.Warn().
			Int("jobs", len(job.Batch)).
			Int("max", p.batch.config.MaxBatchSize).
			Msg("plan batch too large, dropping")
		return nil
	}

	result := p.batch.Run(ctx, job.BatchID, job.Batch)

	// A shutdown mid-batch leaves jobs unplanned; redeliver the batch.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("plan batch %s interrupted: %w", result.BatchID, err)
	}

	attrs["batch_id"] = result.BatchID
	return p.publish(ctx, result, attrs)
}

func (p *Processor) publish(ctx context.Context, v interface{}, attrs map[string]string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := p.publisher.Publish(ctx, data, attrs); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}
