package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// StockChangedEvent is the payload sent to the stock-status queue whenever a
// committed transaction changed stock quantities.
type StockChangedEvent struct {
	StoreID string   `json:"store_id"`
	ItemIDs []string `json:"item_ids"`
	Reason  string   `json:"reason,omitempty"` // order_created | order_cancelled
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// PublishStockChanged enqueues a stock-changed event for the status deriver.
func (p *Publisher) PublishStockChanged(ctx context.Context, event StockChangedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	bodyStr := string(body)

	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &bodyStr,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"store_id": {
				DataType:    awsString("String"),
				StringValue: &event.StoreID,
			},
		},
	}
	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
