package payment

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/refund"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/internal/entity"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/farmgate-io/farmgate/service/payment")

const trackingCodeLength = 6

// StatusEngine is the slice of the status service the webhook needs to
// complete paid orders.
type StatusEngine interface {
	UpdateOrderStatus(ctx context.Context, orderID string, newStatus entity.OrderStatus) (*entity.Order, error)
}

// ProcessInput describes a charge to collect for an order.
type ProcessInput struct {
	UserID   int64
	OrderID  string
	Amount   decimal.Decimal
	Currency string
}

// Result reports a processed charge.
type Result struct {
	TransactionID string `json:"transaction_id"`
	TrackingID    string `json:"tracking_id"`
}

// Service wraps the payment provider. Provider failures surface as upstream
// errors; the retry budget here is the only retry the core performs.
type Service struct {
	cfg    config.Payment
	status StatusEngine
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Config config.Config
	Status StatusEngine
	Logger *zap.Logger
}

// NewService wires a new Service instance and configures the provider key.
func NewService(p Params) *Service {
	stripe.Key = p.Config.Payment.StripeKey
	return &Service{
		cfg:    p.Config.Payment,
		status: p.Status,
		logger: p.Logger,
	}
}

// Process creates a payment intent for the order amount, retrying transient
// provider failures up to the configured budget.
func (s *Service) Process(ctx context.Context, in ProcessInput) (*Result, error) {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.Process", trace.WithAttributes(
		attribute.String("payment.order_id", in.OrderID),
		attribute.String("payment.currency", in.Currency),
	))
	defer span.End()

	if in.OrderID == "" {
		return nil, errorbank.BadRequest("order id is required")
	}
	if !in.Amount.IsPositive() {
		return nil, errorbank.BadRequest("payment amount must be positive")
	}

	currency := in.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount.Mul(decimal.NewFromInt(100)).IntPart()),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.AddMetadata("user_id", fmt.Sprintf("%d", in.UserID))
	params.AddMetadata("order_id", in.OrderID)

	var intent *stripe.PaymentIntent
	var err error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		intent, err = paymentintent.New(params)
		if err == nil {
			break
		}
		s.logger.Warn("payment attempt failed",
			zap.Int("attempt", attempt),
			zap.String("order_id", in.OrderID),
			zap.Error(err),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider error")
		return nil, errorbank.Upstream("payment processing failed", errorbank.WithCause(err))
	}

	return &Result{
		TransactionID: intent.ID,
		TrackingID:    trackingCode(trackingCodeLength),
	}, nil
}

// Refund reverses a processed charge by its payment intent id.
func (s *Service) Refund(ctx context.Context, transactionID string) error {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.Refund", trace.WithAttributes(attribute.String("payment.transaction_id", transactionID)))
	defer span.End()

	if transactionID == "" {
		return errorbank.BadRequest("transaction id is required")
	}

	params := &stripe.RefundParams{PaymentIntent: stripe.String(transactionID)}
	params.Context = ctx
	if _, err := refund.New(params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider error")
		return errorbank.Upstream("refund processing failed", errorbank.WithCause(err))
	}
	return nil
}

// HandleWebhook reacts to provider callbacks. A succeeded payment intent
// completes the referenced order through the status engine.
func (s *Service) HandleWebhook(ctx context.Context, evt stripe.Event) error {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.HandleWebhook", trace.WithAttributes(attribute.String("payment.event_type", string(evt.Type))))
	defer span.End()

	if evt.Type != "payment_intent.succeeded" {
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		span.RecordError(err)
		return errorbank.BadRequest("malformed webhook payload", errorbank.WithCause(err))
	}

	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		s.logger.Warn("webhook payment intent without order id", zap.String("intent_id", intent.ID))
		return nil
	}

	if _, err := s.status.UpdateOrderStatus(ctx, orderID, entity.StatusCompleted); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status update failed")
		return err
	}

	s.logger.Info("order completed from payment webhook",
		zap.String("order_id", orderID),
		zap.String("intent_id", intent.ID),
	)
	return nil
}

func trackingCode(length int) string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			out[i] = chars[0]
			continue
		}
		out[i] = chars[n.Int64()]
	}
	return string(out)
}
