package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/yashrajoria/settlement-service/models"
	"go.uber.org/zap"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// RetryQueue carries RetryJob messages for failed payment events. It is both
// the producer used by the dispatcher and the consumer used by the worker.
type RetryQueue struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

func NewRetryQueue(cfg sdkaws.Config, queueURL string, logger *zap.Logger) *RetryQueue {
	return NewRetryQueueWithClient(sqs.NewFromConfig(cfg), queueURL, logger)
}

func NewRetryQueueWithClient(client SQSAPI, queueURL string, logger *zap.Logger) *RetryQueue {
	return &RetryQueue{client: client, queueURL: queueURL, logger: logger}
}

// maxDelaySeconds is the SQS per-message delay limit.
const maxDelaySeconds = 900

// Enqueue sends job with a per-message delay.
func (q *RetryQueue) Enqueue(ctx context.Context, job models.RetryJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal retry job: %w", err)
	}
	secs := int32(delay / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs > maxDelaySeconds {
		secs = maxDelaySeconds
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     sdkaws.String(q.queueURL),
		MessageBody:  sdkaws.String(string(body)),
		DelaySeconds: secs,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue retry for %s/%s: %w", job.Provider, job.ProviderEventID, err)
	}
	return nil
}

// JobHandler processes one retry job. A nil error deletes the message.
type JobHandler func(ctx context.Context, job models.RetryJob) error

// StartPolling long-polls the queue until ctx is cancelled.
func (q *RetryQueue) StartPolling(ctx context.Context, handler JobHandler) error {
	q.logger.Info("Starting retry queue polling", zap.String("queue_url", q.queueURL))
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Retry queue polling stopped")
			return ctx.Err()
		default:
			if err := q.PollOnce(ctx, handler); err != nil && ctx.Err() == nil {
				q.logger.Warn("Error polling retry queue", zap.Error(err))
				time.Sleep(time.Second)
			}
		}
	}
}

// PollOnce receives one batch and runs handler on each message.
func (q *RetryQueue) PollOnce(ctx context.Context, handler JobHandler) error {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            sdkaws.String(q.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range out.Messages {
		if msg.Body == nil {
			continue
		}
		var job models.RetryJob
		if err := json.Unmarshal([]byte(*msg.Body), &job); err != nil {
			// poison message, drop it
			q.logger.Error("Discarding malformed retry job", zap.String("body", *msg.Body), zap.Error(err))
			q.delete(ctx, msg.ReceiptHandle)
			continue
		}
		if err := handler(ctx, job); err != nil {
			q.logger.Warn("Retry job failed, leaving message for redelivery",
				zap.String("provider", job.Provider),
				zap.String("provider_event_id", job.ProviderEventID),
				zap.Error(err),
			)
			continue
		}
		q.delete(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (q *RetryQueue) delete(ctx context.Context, receipt *string) {
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      sdkaws.String(q.queueURL),
		ReceiptHandle: receipt,
	}); err != nil {
		q.logger.Warn("Failed to delete retry message", zap.Error(err))
	}
}
