// Package queue provides the SQS producer and consumer for the dispatch
// queue: the scheduler publishes DispatchMessages, the sweep worker consumes
// them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"valdrix/internal/types"
)

// sendTimeout bounds a single broker handoff so a degraded broker can never
// stall the cron thread.
const sendTimeout = 5 * time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DispatchTrigger serializes DispatchMessages and sends them to the dispatch
// queue. The scheduler treats Send as fire-and-forget: failures are returned
// so the caller can count and log them, but the next cron tick is the retry
// mechanism, not this trigger.
type DispatchTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewDispatchTrigger creates a DispatchTrigger for the given queue URL.
func NewDispatchTrigger(client SQSSender, queueURL string, logger *slog.Logger) *DispatchTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchTrigger{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Send publishes one DispatchMessage with a bounded timeout. A missing trace
// ID is filled in so worker logs correlate back to the dispatching tick.
func (t *DispatchTrigger) Send(ctx context.Context, msg types.DispatchMessage) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal DispatchMessage: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"task": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Task)),
			},
		},
	}

	if _, err := t.client.SendMessage(sendCtx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamBroker,
			fmt.Sprintf("failed to send dispatch message for task %s", msg.Task), err)
	}

	t.logger.InfoContext(ctx, "dispatch message sent",
		"task", string(msg.Task),
		"cohort", string(msg.Cohort),
		"trace_id", msg.TraceID,
	)

	return nil
}
