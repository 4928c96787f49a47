package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"valdrix/internal/types"
)

// SQSReceiver abstracts the SQS operations the consumer loop uses.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler processes one dispatch message. A returned error leaves the message
// on the queue for visibility-timeout redelivery; nil deletes it.
type Handler func(ctx context.Context, msg types.DispatchMessage) error

// Consumer is the sweep worker's long-poll receive loop.
type Consumer struct {
	client   SQSReceiver
	queueURL string
	handler  Handler
	logger   *slog.Logger
}

// NewConsumer creates a Consumer for the given queue URL and handler.
func NewConsumer(client SQSReceiver, queueURL string, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		logger:   logger,
	}
}

// Run long-polls the dispatch queue until the context is canceled. Messages
// are processed one at a time: enqueue passes hold row locks, so parallelism
// within one worker buys nothing that concurrent worker processes don't
// already provide.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "failed to receive dispatch messages",
				"error", err,
			)
			// Brief pause so a broken broker connection does not spin hot.
			time.Sleep(time.Second)
			continue
		}

		for _, raw := range out.Messages {
			c.processOne(ctx, raw.Body, raw.ReceiptHandle, raw.MessageId)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// processOne parses and handles a single message. Parse failures are
// permanent: the message is deleted rather than redelivered forever.
func (c *Consumer) processOne(ctx context.Context, body, receiptHandle, messageID *string) {
	var msg types.DispatchMessage
	if body == nil || json.Unmarshal([]byte(*body), &msg) != nil {
		c.logger.ErrorContext(ctx, "failed to unmarshal dispatch message, dropping",
			"message_id", aws.ToString(messageID),
		)
		c.delete(ctx, receiptHandle, messageID)
		return
	}

	logger := c.logger.With(
		"task", string(msg.Task),
		"cohort", string(msg.Cohort),
		"trace_id", msg.TraceID,
	)

	if err := c.handler(ctx, msg); err != nil {
		// Leave the message for redelivery unless the message itself is
		// unprocessable, which would poison the queue.
		if types.IsValidation(err) {
			logger.ErrorContext(ctx, "unprocessable dispatch message, dropping",
				"error", err,
			)
			c.delete(ctx, receiptHandle, messageID)
			return
		}
		logger.ErrorContext(ctx, "dispatch task failed, leaving for redelivery",
			"error", err,
		)
		return
	}

	c.delete(ctx, receiptHandle, messageID)
}

func (c *Consumer) delete(ctx context.Context, receiptHandle, messageID *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to delete dispatch message",
			"message_id", aws.ToString(messageID),
			"error", err,
		)
	}
}
