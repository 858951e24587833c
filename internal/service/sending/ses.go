package sending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ignite/construction-crm/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends emails via AWS SES using the SDK v2.
type SESSender struct {
	client    SESAPI
	fromName  string
	fromEmail string
	replyTo   string
	timeout   time.Duration
}

// NewSESSender wraps an SES client. fromEmail is required.
func NewSESSender(client SESAPI, fromName, fromEmail, replyTo string) *SESSender {
	return &SESSender{client: client, fromName: fromName, fromEmail: fromEmail, replyTo: replyTo}
}

// WithTimeout bounds each SendEmail call. Zero means no bound.
func (s *SESSender) WithTimeout(d time.Duration) *SESSender {
	s.timeout = d
	return s
}

// NewSESClient builds an SES v2 client. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewSESClient(ctx context.Context, region, accessKey, secretKey string) (*sesv2.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

// Send delivers a single email through AWS SES.
func (s *SESSender) Send(ctx context.Context, msg *Message) error {
	if s.client == nil {
		return errors.New("SES client not initialized")
	}

	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.CampaignID != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
		}
	}
	if s.replyTo != "" {
		input.ReplyToAddresses = []string{s.replyTo}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	logger.Debug("ses: sent", "recipient", msg.To, "message_id", aws.ToString(result.MessageId))
	return nil
}

// LogSender logs messages instead of delivering them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg *Message) error {
	logger.Info("sending: dry-run delivery", "recipient", msg.To, "subject", msg.Subject,
		"campaign_id", msg.CampaignID)
	return nil
}
