package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// InboundJob is one webhook-validated client message queued for a worker.
// LeadID is resolved before enqueue so workers never race on lead creation.
type InboundJob struct {
	ID        string    `json:"id"`
	LeadID    uuid.UUID `json:"lead_id"`
	Text      string    `json:"text"`
	HasMedia  bool      `json:"has_media"`
	MediaID   string    `json:"media_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeJob(job InboundJob) (InboundJob, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return InboundJob{}, "", fmt.Errorf("conversation: encode job: %w", err)
	}
	return job, string(body), nil
}
