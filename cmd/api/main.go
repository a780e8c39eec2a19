package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/aws"
	"github.com/imrishuroy/resto-orderflow/internal/config"
	"github.com/imrishuroy/resto-orderflow/internal/handlers"
	"github.com/imrishuroy/resto-orderflow/internal/idempotency"
	"github.com/imrishuroy/resto-orderflow/internal/inventory"
	"github.com/imrishuroy/resto-orderflow/internal/logging"
	"github.com/imrishuroy/resto-orderflow/internal/orderflow"
	"github.com/imrishuroy/resto-orderflow/internal/roles"
	"github.com/imrishuroy/resto-orderflow/internal/store"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var (
		db        store.Adapter
		publisher orderflow.StockEventPublisher
		metrics   orderflow.MetricsEmitter
	)
	if cfg.RunLocal {
		// Everything in memory: no AWS credentials, no queue, no metrics.
		db = store.NewMemory()
	} else {
		clients, err := aws.NewAWSClients(context.Background())
		if err != nil {
			logger.Fatal("failed to init aws clients", zap.Error(err))
		}
		db = store.NewDynamo(clients.DynamoDB)
		if cfg.StockEventsQueueURL != "" {
			publisher = aws.NewPublisher(clients.SQS, cfg.StockEventsQueueURL)
		}
		metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger)
	}

	orders := orderflow.NewService(orderflow.Config{
		DB:          db,
		Inventory:   inventory.NewService(cfg.StockTable, logger),
		Idempotency: idempotency.NewCoordinator(db, cfg.IdempotencyTable, cfg.IdempotencyTTL, logger),
		Roles:       roles.NewClaimsEvaluator(),
		Publisher:   publisher,
		Metrics:     metrics,
		OrdersTable: cfg.OrdersTable,
		Logger:      logger,
	})

	r := setupRouter(handlers.HandlerConfig{Orders: orders, Logger: logger})

	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
