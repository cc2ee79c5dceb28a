package conversation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS rejects receive batches above 10 and long-poll waits above 20s.
const (
	sqsMaxBatchSize   = 10
	sqsMaxWaitSeconds = 20
)

// envelopeAttribute tags each message so queue tooling can tell inbound-job
// envelopes apart from anything else sharing the queue.
const envelopeAttribute = "inbound_job"

// SQSQueue carries InboundJob envelopes from the webhook handler to the
// worker pool over AWS/LocalStack SQS.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSQueue creates a queue wrapper around the provided SQS client.
func NewSQSQueue(client *sqs.Client, queueURL string) *SQSQueue {
	if client == nil {
		panic("conversation: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("conversation: SQS queueURL cannot be empty")
	}
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
	}
}

// Send publishes one JSON-encoded inbound job.
func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"envelope": {
				DataType:    aws.String("String"),
				StringValue: aws.String(envelopeAttribute),
			},
			"content_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("application/json"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("conversation: send inbound job: %w", err)
	}
	return nil
}

// Receive long-polls for up to maxMessages inbound jobs.
func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages > sqsMaxBatchSize {
		maxMessages = sqsMaxBatchSize
	}
	if waitSeconds > sqsMaxWaitSeconds {
		waitSeconds = sqsMaxWaitSeconds
	}

	output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(waitSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: receive inbound jobs: %w", err)
	}

	messages := make([]queueMessage, 0, len(output.Messages))
	for _, msg := range output.Messages {
		messages = append(messages, queueMessage{
			ID:            aws.ToString(msg.MessageId),
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}

	return messages, nil
}

// Delete acknowledges one processed inbound job.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}

	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("conversation: delete inbound job: %w", err)
	}
	return nil
}
