package aws

import (
	"context"
	"encoding/json"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/yashrajoria/settlement-service/models"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PaymentEventPublisher publishes committed settlements to an SNS topic with
// an event_type message attribute for subscription filtering.
type PaymentEventPublisher struct {
	client   SNSAPI
	topicArn string
}

func NewPaymentEventPublisher(cfg sdkaws.Config, topicArn string) *PaymentEventPublisher {
	return NewPaymentEventPublisherWithClient(sns.NewFromConfig(cfg), topicArn)
}

func NewPaymentEventPublisherWithClient(client SNSAPI, topicArn string) *PaymentEventPublisher {
	return &PaymentEventPublisher{client: client, topicArn: topicArn}
}

func (p *PaymentEventPublisher) Publish(ctx context.Context, evt models.PaymentEvent) error {
	if p.topicArn == "" {
		return fmt.Errorf("empty topicArn")
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: sdkaws.String(p.topicArn),
		Message:  sdkaws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: sdkaws.String("String"), StringValue: sdkaws.String(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", p.topicArn, err)
	}
	return nil
}
