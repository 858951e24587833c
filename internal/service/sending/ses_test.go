package sending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	mock.Mock
}

func (m *mockSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, in)
	if out, ok := args.Get(0).(*sesv2.SendEmailOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSESSender_Send(t *testing.T) {
	client := &mockSES{}
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return aws.ToString(in.FromEmailAddress) == "Acme Builders <hello@acme.test>" &&
			in.Destination.ToAddresses[0] == "jane@example.com" &&
			aws.ToString(in.Content.Simple.Subject.Data) == "Hi Jane" &&
			aws.ToString(in.EmailTags[0].Value) == "camp-1"
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil).Once()

	s := NewSESSender(client, "Acme Builders", "hello@acme.test", "")
	err := s.Send(context.Background(), &Message{
		To: "jane@example.com", Subject: "Hi Jane", Body: "<p>hello</p>", CampaignID: "camp-1",
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSESSender_SendError(t *testing.T) {
	client := &mockSES{}
	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("MessageRejected")).Once()

	s := NewSESSender(client, "", "hello@acme.test", "")
	err := s.Send(context.Background(), &Message{To: "x@example.com", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestSESSender_NilClient(t *testing.T) {
	s := &SESSender{fromEmail: "hello@acme.test"}
	assert.Error(t, s.Send(context.Background(), &Message{To: "x@example.com"}))
}

func TestSESSender_Timeout(t *testing.T) {
	client := &mockSES{}
	client.On("SendEmail", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(&sesv2.SendEmailOutput{MessageId: aws.String("m-2")}, nil).Once()

	s := NewSESSender(client, "", "hello@acme.test", "").WithTimeout(5 * time.Second)
	require.NoError(t, s.Send(context.Background(), &Message{To: "x@example.com", Subject: "s", Body: "b"}))
	client.AssertExpectations(t)
}
