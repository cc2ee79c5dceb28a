package conversation

import (
	"context"
	"fmt"

	"github.com/inkworks/booking-broker/pkg/logging"
)

// Publisher enqueues inbound-message jobs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound publishes one inbound message job.
func (p *Publisher) EnqueueInbound(ctx context.Context, job InboundJob) error {
	if ctx == nil {
		ctx = context.Background()
	}

	job, body, err := encodeJob(job)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: enqueue inbound job: %w", err)
	}

	p.logger.Debug("inbound job enqueued", "job_id", job.ID, "lead_id", job.LeadID)
	return nil
}
