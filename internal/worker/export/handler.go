package export

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/internal/entity"
	"github.com/farmgate-io/farmgate/internal/event"
	exportpipe "github.com/farmgate-io/farmgate/internal/export"
	"github.com/farmgate-io/farmgate/internal/messaging"
	orderrepo "github.com/farmgate-io/farmgate/internal/repository/order"
	"github.com/farmgate-io/farmgate/internal/worker"
)

var workerTracer = otel.Tracer("github.com/farmgate-io/farmgate/worker/export")

var csvHeader = []string{
	"order_id", "user_id", "status", "total_amount",
	"item_count", "transaction_ref", "payment_deadline", "created_at",
}

// Module registers the export worker handler.
var Module = fx.Module("worker_export",
	fx.Provide(
		fx.Annotate(
			NewHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewHandler consumes export job events and streams the order book to CSV.
// Orders are paged out of the store batch by batch so an arbitrarily large
// order book never sits in memory.
func NewHandler(repo *orderrepo.Repository, pipeline *exportpipe.Pipeline, cfg config.Config, logger *zap.Logger) worker.HandlerRegistration {
	batchSize := cfg.Export.BatchSize

	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.export.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var job event.ExportRequested
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			logger.Error("failed to decode export request", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		source := newOrderSource(repo, batchSize)
		path, err := pipeline.StreamToCSV(ctx, source, job.Filename)
		if err != nil {
			logger.Error("export job failed", zap.String("filename", job.Filename), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "export failed")
			return err
		}

		logger.Info("export job completed",
			zap.String("filename", job.Filename),
			zap.String("path", path),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.ExportTopic,
		Handler: handler,
	}
}

// newOrderSource pages active orders out of the repository in id order.
func newOrderSource(repo *orderrepo.Repository, batchSize int) exportpipe.Source {
	var afterID string
	done := false

	return exportpipe.NewFuncSource(csvHeader, func(ctx context.Context) ([][]string, error) {
		if done {
			return nil, io.EOF
		}
		orders, err := repo.ListPage(ctx, afterID, batchSize)
		if err != nil {
			return nil, err
		}
		if len(orders) == 0 {
			return nil, io.EOF
		}
		afterID = orders[len(orders)-1].ID
		if len(orders) < batchSize {
			done = true
		}

		rows := make([][]string, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, orderRow(o))
		}
		return rows, nil
	})
}

func orderRow(o *entity.Order) []string {
	return []string{
		o.ID,
		strconv.FormatInt(o.UserID, 10),
		string(o.Status),
		o.TotalAmount.StringFixed(2),
		strconv.Itoa(len(o.Items)),
		o.TransactionRef,
		o.PaymentDeadline.UTC().Format("2006-01-02T15:04:05Z"),
		o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
