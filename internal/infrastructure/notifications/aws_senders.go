package notifications

import (
	"context"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

// SESAPI is the subset of the SES client used here
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESSender delivers email through Amazon SES
type SESSender struct {
	client SESAPI
	source string
}

// NewSESSender creates an SES email sender
func NewSESSender(client SESAPI, from, fromName string) *SESSender {
	source := (&mail.Address{Name: fromName, Address: from}).String()
	return &SESSender{client: client, source: source}
}

// Send delivers a plain-text email
func (s *SESSender) Send(ctx context.Context, msg *entities.Message) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.source),
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.Recipient},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return apperrors.NewExternalError("ses send failed", err)
	}
	return nil
}

// SNSSender delivers SMS through Amazon SNS direct publish
type SNSSender struct {
	client   SNSAPI
	senderID string
}

// NewSNSSender creates an SNS SMS sender
func NewSNSSender(client SNSAPI, senderID string) *SNSSender {
	return &SNSSender{client: client, senderID: senderID}
}

// Send publishes msg.Body to the recipient phone number as a transactional SMS
func (s *SNSSender) Send(ctx context.Context, msg *entities.Message) error {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.Recipient),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return apperrors.NewExternalError("sns publish failed", err)
	}
	return nil
}
