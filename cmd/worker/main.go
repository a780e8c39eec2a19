package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/aws"
	"github.com/imrishuroy/resto-orderflow/internal/config"
	"github.com/imrishuroy/resto-orderflow/internal/inventory"
	"github.com/imrishuroy/resto-orderflow/internal/logging"
	"github.com/imrishuroy/resto-orderflow/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var db store.Adapter
	if cfg.RunLocal {
		db = store.NewMemory()
	} else {
		clients, err := aws.NewAWSClients(context.Background())
		if err != nil {
			logger.Fatal("failed to init aws clients", zap.Error(err))
		}
		db = store.NewDynamo(clients.DynamoDB)
	}

	deriver := inventory.NewStatusDeriver(db, cfg.StockTable, cfg.LowStockThreshold, logger)
	processor := NewProcessor(deriver, logger)

	if cfg.RunLocal {
		// Local testing helper: run one simulated event and exit.
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			event := aws.StockChangedEvent{StoreID: "local-store", ItemIDs: []string{"local-item-1"}}
			raw, _ := json.Marshal(event)
			body = string(raw)
		}
		err := processor.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{Body: body}},
		})
		if err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		return
	}

	lambda.Start(processor.Handle)
}
