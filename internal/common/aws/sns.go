// internal/common/aws/sns.go
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes alerts to one topic.
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
}

func NewSNSNotifier(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Name() string { return "sns" }

func (n *SNSNotifier) Notify(ctx context.Context, subject, body string) error {
	// SNS rejects subjects over 100 characters
	if len(subject) > 100 {
		subject = subject[:100]
	}
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
