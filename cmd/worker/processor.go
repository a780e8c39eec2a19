package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/aws"
	"github.com/imrishuroy/resto-orderflow/internal/inventory"
)

// Processor consumes stock-changed events and refreshes the derived
// stock-status labels. The refresh is a no-op when the label is already
// current, so duplicate deliveries settle without extra writes.
type Processor struct {
	deriver *inventory.StatusDeriver
	logger  *zap.Logger
}

// NewProcessor creates a worker processor with its deriver injected.
func NewProcessor(deriver *inventory.StatusDeriver, logger *zap.Logger) *Processor {
	return &Processor{deriver: deriver, logger: logger}
}

// Handle receives an SQS batch event and processes each message.
// Returning an error lets the Lambda runtime retry the batch; poisoned
// messages end up in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var event aws.StockChangedEvent
	if err := json.Unmarshal([]byte(rec.Body), &event); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	p.logger.Info("stock-changed event received",
		zap.String("store_id", event.StoreID),
		zap.String("reason", event.Reason),
		zap.Int("item_count", len(event.ItemIDs)))

	for _, itemID := range event.ItemIDs {
		changed, err := p.deriver.Refresh(ctx, itemID)
		if err != nil {
			return fmt.Errorf("refresh stock status for %s: %w", itemID, err)
		}
		if changed {
			p.logger.Info("stock status updated", zap.String("item_id", itemID))
		}
	}
	return nil
}
