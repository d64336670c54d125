package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig names the job subscription and the result topic.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	ResultTopic      string
	Batch            *BatchPlanner
	Logger           zerolog.Logger

	// MaxOutstanding caps unacknowledged messages held at once. A single
	// message may carry a whole batch, so the default is small.
	MaxOutstanding int
}

// PubSubHandler feeds a subscription into a Processor and publishes the
// results it produces.
type PubSubHandler struct {
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	publisher  *pubsub.Publisher
	processor  *Processor
	logger     zerolog.Logger
}

// NewPubSubHandler connects to Pub/Sub. Nothing is received until Start.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 10
	}
	sub := client.Subscriber(cfg.SubscriptionName)
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	// Lease extension must outlast the slowest batch.
	sub.ReceiveSettings.MaxExtension = 10 * time.Minute

	pub := client.Publisher(cfg.ResultTopic)
	logger := cfg.Logger.With().
		Str("subscription", cfg.SubscriptionName).
		Str("result_topic", cfg.ResultTopic).
		Logger()

	return &PubSubHandler{
		client:     client,
		subscriber: sub,
		publisher:  pub,
		processor:  NewProcessor(cfg.Batch, &PubSubPublisher{publisher: pub}, cfg.Logger),
		logger:     logger,
	}, nil
}

// Start receives until ctx is cancelled. Messages the processor fails are
// nacked for redelivery; everything else is acked.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Msg("receiving planning jobs")
	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := h.processor.Handle(ctx, fromPubSub(msg)); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes outstanding results and closes the client.
func (h *PubSubHandler) Close() error {
	h.publisher.Stop()
	return h.client.Close()
}

func fromPubSub(msg *pubsub.Message) Message {
	m := Message{
		ID:          msg.ID,
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		PublishTime: msg.PublishTime,
	}
	if msg.DeliveryAttempt != nil {
		m.DeliveryAttempt = *msg.DeliveryAttempt
	}
	return m
}

// PubSubPublisher is a Publisher backed by a Pub/Sub topic.
type PubSubPublisher struct {
	publisher *pubsub.Publisher
}

// Publish blocks until the server accepts the message, so a nack after a
// failed publish really does lead to redelivery.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	_, err := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	return err
}
