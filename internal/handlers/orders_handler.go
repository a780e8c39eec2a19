package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/orderflow"
	"github.com/imrishuroy/resto-orderflow/internal/validation"
)

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Orders *orderflow.Service
	Logger *zap.Logger
}

// RegisterOrdersRoutes registers the order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		items := make([]orderflow.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, orderflow.OrderItem{
				ItemID:    it.ItemID,
				Quantity:  it.Quantity,
				UnitPrice: it.Price,
			})
		}

		order, err := cfg.Orders.CreateOrder(ctx, orderflow.CreateOrderInput{
			CustomerID:  req.CustomerID,
			StoreID:     req.StoreID,
			Items:       items,
			ClientTotal: req.TotalAmount,
		}, actor)
		if err != nil {
			writeError(c, cfg.Logger, err)
			return
		}

		c.Header("Location", "/orders/"+order.OrderID)
		c.JSON(http.StatusCreated, order)
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		order, err := cfg.Orders.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, cfg.Logger, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})

	r.PATCH("/orders/:id/status", func(c *gin.Context) {
		var req validation.UpdateStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		view, err := cfg.Orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actor)
		if err != nil {
			writeError(c, cfg.Logger, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})
}

// actorFrom builds the acting identity from the gateway-verified headers.
// Authentication itself happens upstream; these headers arrive already
// trusted.
func actorFrom(c *gin.Context) (orderflow.Actor, bool) {
	id := c.GetHeader("X-Actor-Id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_actor"})
		return orderflow.Actor{}, false
	}
	var roleList []string
	if raw := c.GetHeader("X-Actor-Roles"); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roleList = append(roleList, role)
			}
		}
	}
	return orderflow.Actor{ID: id, Roles: roleList}, true
}

// writeError renders a lifecycle error as {error, message, details} with the
// HTTP status its code maps to. Anything uncoded is an internal error.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	oe, ok := orderflow.AsError(err)
	if !ok {
		logger.Error("unclassified handler error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	body := gin.H{"error": string(oe.Code), "message": oe.Message}
	if len(oe.Details) > 0 {
		body["details"] = oe.Details
	}
	c.JSON(httpStatusFor(oe.Code), body)
}

func httpStatusFor(code orderflow.ErrorCode) int {
	switch code {
	case orderflow.CodeInvalidItemData, orderflow.CodeInvalidTotalAmount:
		return http.StatusBadRequest
	case orderflow.CodePermissionDenied:
		return http.StatusForbidden
	case orderflow.CodeNotFound:
		return http.StatusNotFound
	case orderflow.CodeInventoryError, orderflow.CodeInvalidStateTransition:
		return http.StatusConflict
	case orderflow.CodeConcurrentRequest:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
