package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ignite/construction-crm/internal/pkg/logger"
)

// SQSAPI is the subset of the SQS client used by SQSSink.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes audit events to an SQS queue in the background.
type SQSSink struct {
	client   SQSAPI
	queueURL string
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewSQSSink creates a sink publishing to queueURL.
func NewSQSSink(client SQSAPI, queueURL string) *SQSSink {
	return &SQSSink{client: client, queueURL: queueURL, timeout: 5 * time.Second}
}

// Record marshals the event and sends it asynchronously. Failures are logged
// and dropped.
func (s *SQSSink) Record(_ context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		logger.Warn("audit: marshal event", "action", e.Action, "error", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request context: the caller may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(s.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			logger.Warn("audit: publish to SQS", "action", e.Action, "error", err)
		}
	}()
}

// Close waits for in-flight publishes.
func (s *SQSSink) Close() {
	s.wg.Wait()
}
