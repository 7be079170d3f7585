package webapi

import (
	"context"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"go.uber.org/zap"
)

// operationLogger forwards domain operation callbacks to zap.
type operationLogger struct {
	logger *zap.Logger
}

func newOperationLogger(logger *zap.Logger) donate.OperationLogger {
	return operationLogger{logger: logger}
}

func (opLogger operationLogger) LogOperation(ctx context.Context, entry donate.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("nick", entry.Nick.String()),
		zap.String("amount", entry.Amount.String()),
		zap.String("status", entry.Status),
	}
	if entry.Provider != "" {
		fields = append(fields, zap.String("provider", entry.Provider))
	}
	if entry.EventID != "" {
		fields = append(fields, zap.String("event_id", entry.EventID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		opLogger.logger.Error("board operation failed", fields...)
		return
	}
	opLogger.logger.Info("board operation", fields...)
}
