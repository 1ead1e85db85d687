package notification

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/farmgate-io/farmgate/service/notification")

// EmailSender delivers a single email through a provider.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// SMSSender delivers a single text message through a provider.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) error
}

// Dispatch identifies the recipient of a status-change notification.
type Dispatch struct {
	Email   string
	Phone   string
	OrderID string
	Status  string
}

// Service renders templates and hands messages to the configured providers.
// Delivery is best effort per channel; provider failures come back as
// upstream errors for the caller to log.
type Service struct {
	cfg    config.Notification
	email  EmailSender
	sms    SMSSender
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Config config.Config
	Email  EmailSender
	SMS    SMSSender
	Logger *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		cfg:    p.Config.Notification,
		email:  p.Email,
		sms:    p.SMS,
		logger: p.Logger,
	}
}

// SendStatusUpdate notifies the customer on both channels. Each channel is
// attempted independently; the first failure is returned after both ran.
func (s *Service) SendStatusUpdate(ctx context.Context, d Dispatch) error {
	ctx, span := serviceTracer.Start(ctx, "NotificationService.SendStatusUpdate", trace.WithAttributes(
		attribute.String("notification.order_id", d.OrderID),
		attribute.String("notification.status", d.Status),
	))
	defer span.End()

	if !s.cfg.Enabled {
		return nil
	}

	var firstErr error

	if d.Email != "" {
		msg := StatusEmail(d.Email, d.OrderID, d.Status)
		msg.From = s.cfg.EmailSender
		if err := s.email.SendEmail(ctx, msg); err != nil {
			s.logger.Error("email dispatch failed", zap.String("order_id", d.OrderID), zap.Error(err))
			firstErr = errorbank.Upstream("failed to send email", errorbank.WithCause(err))
		}
	}

	if d.Phone != "" {
		msg := StatusSMS(d.Phone, d.OrderID, d.Status)
		msg.From = s.cfg.SMSSender
		if err := s.sms.SendSMS(ctx, msg); err != nil {
			s.logger.Error("sms dispatch failed", zap.String("order_id", d.OrderID), zap.Error(err))
			if firstErr == nil {
				firstErr = errorbank.Upstream("failed to send sms", errorbank.WithCause(err))
			}
		}
	}

	if firstErr != nil {
		span.SetStatus(codes.Error, "dispatch failed")
	}
	return firstErr
}

// logSenders write deliveries to the log instead of a provider. They stand in
// until real provider credentials are wired through configuration.
type logEmailSender struct {
	logger *zap.Logger
}

func (l logEmailSender) SendEmail(_ context.Context, msg EmailMessage) error {
	l.logger.Info("email dispatched",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

type logSMSSender struct {
	logger *zap.Logger
}

func (l logSMSSender) SendSMS(_ context.Context, msg SMSMessage) error {
	l.logger.Info("sms dispatched",
		zap.String("to", msg.To),
		zap.String("body", msg.Body),
	)
	return nil
}
