package points

import (
	"context"
	"time"
)

// EngineOption configures an Engine instance.
type EngineOption func(*Engine)

// OperationLogger records domain-level events emitted by Engine operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing engine operation.
type OperationLog struct {
	Operation string
	ActorID   MemberID
	MemberID  MemberID
	Subject   string
	Amount    int64
	Reference string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithLocation sets the time zone that defines calendar days and allowance weeks.
func WithLocation(location *time.Location) EngineOption {
	return func(engine *Engine) {
		engine.location = location
	}
}

// WithDefaultCapacity sets the seat count of days without an override.
func WithDefaultCapacity(capacity int) EngineOption {
	return func(engine *Engine) {
		engine.defaultCapacity = capacity
	}
}

// WithCoworkingCost sets the point price of one coworking day.
func WithCoworkingCost(cost int64) EngineOption {
	return func(engine *Engine) {
		engine.coworkingCost = cost
	}
}

// WithWeeklyAllowance sets the default admin award cap per week.
func WithWeeklyAllowance(allowance int64) EngineOption {
	return func(engine *Engine) {
		engine.weeklyAllowance = allowance
	}
}

// WithRetryPolicy bounds the attempts made when a transaction hits a transient conflict.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) EngineOption {
	return func(engine *Engine) {
		engine.maxAttempts = maxAttempts
		engine.retryBaseDelay = baseDelay
	}
}
