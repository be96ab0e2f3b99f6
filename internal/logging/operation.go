package logging

import (
	"context"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"go.uber.org/zap"
)

const operationMessage = "points operation"

// OperationLogger forwards engine operation events to zap.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps logger. A nil logger discards events.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger.Named("engine")}
}

// LogOperation writes ok events at info, domain rejections at warn and internal failures at error.
func (operationLogger *OperationLogger) LogOperation(_ context.Context, entry points.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.ActorID.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.ActorID.String()))
	}
	if !entry.MemberID.IsZero() {
		fields = append(fields, zap.String("member_id", entry.MemberID.String()))
	}
	if entry.Subject != "" {
		fields = append(fields, zap.String("subject", entry.Subject))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if entry.Reference != "" {
		fields = append(fields, zap.String("reference", entry.Reference))
	}
	if entry.Error == nil {
		operationLogger.logger.Info(operationMessage, fields...)
		return
	}
	fields = append(fields, zap.String("kind", points.KindOf(entry.Error).String()), zap.Error(entry.Error))
	if points.KindOf(entry.Error) == points.KindInternal {
		operationLogger.logger.Error(operationMessage, fields...)
		return
	}
	operationLogger.logger.Warn(operationMessage, fields...)
}
