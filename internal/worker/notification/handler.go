package notification

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/internal/event"
	"github.com/farmgate-io/farmgate/internal/messaging"
	notifysvc "github.com/farmgate-io/farmgate/internal/service/notification"
	ordersvc "github.com/farmgate-io/farmgate/internal/service/order"
	"github.com/farmgate-io/farmgate/internal/worker"
)

var workerTracer = otel.Tracer("github.com/farmgate-io/farmgate/worker/notification")

// Module registers the notification worker handler.
var Module = fx.Module("worker_notification",
	fx.Provide(
		fx.Annotate(
			NewHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewHandler consumes status-changed events and dispatches customer
// notifications. Contact details come from the order metadata; an order
// without them is skipped, not retried.
func NewHandler(orders *ordersvc.Service, notifier *notifysvc.Service, cfg config.Config, logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.notification.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var evt event.OrderStatusChanged
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("failed to decode status changed event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		logger.Info("order status changed",
			zap.String("order_id", evt.OrderID),
			zap.String("new_status", string(evt.NewStatus)),
		)

		order, err := orders.Get(ctx, evt.OrderID)
		if err != nil {
			logger.Warn("order lookup for notification failed", zap.String("order_id", evt.OrderID), zap.Error(err))

			// Nothing to notify about; dropping beats an endless retry.
			return nil
		}

		dispatch := notifysvc.Dispatch{
			Email:   metadataString(order.Metadata, "email"),
			Phone:   metadataString(order.Metadata, "phone"),
			OrderID: evt.OrderID,
			Status:  string(evt.NewStatus),
		}
		if dispatch.Email == "" && dispatch.Phone == "" {
			logger.Debug("order has no contact details; skipping notification", zap.String("order_id", evt.OrderID))

			return nil
		}

		if err := notifier.SendStatusUpdate(ctx, dispatch); err != nil {
			logger.Warn("notification dispatch failed", zap.String("order_id", evt.OrderID), zap.Error(err))

		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.StatusTopic,
		Handler: handler,
	}
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
