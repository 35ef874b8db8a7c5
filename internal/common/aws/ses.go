// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier mails alerts to a fixed recipient.
type SESNotifier struct {
	client SESAPI
	from   string
	to     string
}

func NewSESNotifier(client SESAPI, from, to string) *SESNotifier {
	return &SESNotifier{client: client, from: from, to: to}
}

func (n *SESNotifier) Name() string { return "ses" }

func (n *SESNotifier) Notify(ctx context.Context, subject, body string) error {
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.from),
		Destination: &types.Destination{ToAddresses: []string{n.to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
