package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Engine is the single entry point through which points, seats, tasks and rewards change.
type Engine struct {
	store           Store
	clock           func() time.Time
	logger          OperationLogger
	location        *time.Location
	defaultCapacity int
	coworkingCost   int64
	weeklyAllowance int64
	maxAttempts     int
	retryBaseDelay  time.Duration
}

// NewEngine wires an Engine.
func NewEngine(store Store, clock func() time.Time, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidEngineConfig)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidEngineConfig)
	}
	engine := &Engine{
		store:           store,
		clock:           clock,
		location:        time.UTC,
		defaultCapacity: DefaultCoworkingCapacity,
		coworkingCost:   DefaultCoworkingCost,
		weeklyAllowance: DefaultWeeklyAllowance,
		maxAttempts:     DefaultMaxAttempts,
		retryBaseDelay:  DefaultRetryBaseDelay,
	}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	if engine.location == nil {
		return nil, fmt.Errorf("%w: location is nil", ErrInvalidEngineConfig)
	}
	if engine.defaultCapacity < 0 {
		return nil, fmt.Errorf("%w: default capacity must not be negative", ErrInvalidEngineConfig)
	}
	if engine.coworkingCost <= 0 || engine.coworkingCost > MaxPoints {
		return nil, fmt.Errorf("%w: coworking cost must be between 1 and %d", ErrInvalidEngineConfig, MaxPoints)
	}
	if engine.weeklyAllowance < 0 || engine.weeklyAllowance > MaxPoints {
		return nil, fmt.Errorf("%w: weekly allowance must be between 0 and %d", ErrInvalidEngineConfig, MaxPoints)
	}
	if engine.maxAttempts < 1 {
		return nil, fmt.Errorf("%w: max attempts must be at least one", ErrInvalidEngineConfig)
	}
	if engine.retryBaseDelay <= 0 {
		return nil, fmt.Errorf("%w: retry delay must be greater than zero", ErrInvalidEngineConfig)
	}
	return engine, nil
}

// Location returns the time zone that defines calendar days.
func (engine *Engine) Location() *time.Location {
	return engine.location
}

// Today returns the current calendar day.
func (engine *Engine) Today() Date {
	return DateOf(engine.now(), engine.location)
}

func (engine *Engine) now() time.Time {
	return engine.clock().UTC()
}

// runTx executes fn in a store transaction, retrying transient conflicts with exponential backoff.
func (engine *Engine) runTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	backoff := retry.WithMaxRetries(uint64(engine.maxAttempts-1), retry.NewExponential(engine.retryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := engine.store.WithTx(ctx, fn)
		if errors.Is(err, ErrTransientConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (engine *Engine) logOperation(ctx context.Context, entry OperationLog) {
	if engine.logger == nil {
		return
	}
	if entry.Status == "" {
		switch {
		case entry.Error == nil:
			entry.Status = operationStatusOK
		case KindOf(entry.Error) == KindInternal:
			entry.Status = operationStatusError
		default:
			entry.Status = operationStatusRejected
		}
	}
	engine.logger.LogOperation(ctx, entry)
}

func requireCaller(caller Caller) error {
	if caller.MemberID.IsZero() {
		return fmt.Errorf("%w: caller is not identified", ErrInvalidMemberID)
	}
	return nil
}

func requireAdmin(caller Caller) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.Admin {
		return fmt.Errorf("%w: admin capability required", ErrPermissionDenied)
	}
	return nil
}

func newRecordID() (string, error) {
	identifier, err := uuid.NewV7()
	if err != nil {
		return "", WrapError("engine", "id", "generate", err)
	}
	return identifier.String(), nil
}

func deriveIdempotencyKey(prefix string, subject string) (IdempotencyKey, error) {
	return NewIdempotencyKey(prefix + idempotencyKeyDelimiter + subject)
}
