package notification

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the notification dispatcher to Fx with log-backed senders.
var Module = fx.Options(
	fx.Provide(func(logger *zap.Logger) EmailSender { return logEmailSender{logger: logger} }),
	fx.Provide(func(logger *zap.Logger) SMSSender { return logSMSSender{logger: logger} }),
	fx.Provide(NewService),
)
