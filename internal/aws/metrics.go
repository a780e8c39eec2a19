package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metric names emitted by the engine.
const (
	MetricOrdersCreated     = "OrdersCreated"
	MetricOrdersCancelled   = "OrdersCancelled"
	MetricIdempotentReplays = "IdempotentReplays"
	MetricInsufficientStock = "InsufficientStockRejections"
)

// Metrics emits engine counters to CloudWatch. Emission is best effort:
// failures are logged and never surfaced to the request path.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

// NewMetrics returns a Metrics emitter under the given namespace.
func NewMetrics(client CloudWatchAPI, namespace string, logger *zap.Logger) *Metrics {
	return &Metrics{client: client, namespace: namespace, logger: logger}
}

// Count adds one to the named counter, dimensioned by store.
func (m *Metrics) Count(ctx context.Context, name, storeID string) {
	if m == nil || m.client == nil {
		return
	}
	one := 1.0
	datum := cwtypes.MetricDatum{
		MetricName: &name,
		Value:      &one,
		Unit:       cwtypes.StandardUnitCount,
	}
	if storeID != "" {
		dim := "StoreId"
		datum.Dimensions = []cwtypes.Dimension{{Name: &dim, Value: &storeID}}
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.namespace,
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}
