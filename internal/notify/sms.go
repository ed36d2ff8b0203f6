// README: SMS delivery through AWS SNS direct publish.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"giftwave/internal/modules/validation"
)

type snsPublisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSSender struct {
	client   snsPublisher
	senderID string
}

func NewSNSSender(client *sns.Client, senderID string) *SNSSender {
	return &SNSSender{client: client, senderID: senderID}
}

// SendSMS publishes a transactional SMS. to may be in any format the phone
// validator accepts; it is sent as +92XXXXXXXXXX.
func (s *SNSSender) SendSMS(ctx context.Context, to, body string) error {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(E164(to)),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func E164(phone string) string {
	return "+92" + validation.NormalizePhone(phone)
}
