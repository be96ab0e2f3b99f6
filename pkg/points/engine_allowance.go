package points

import (
	"context"
	"errors"
	"fmt"
)

// AllowanceStatus is an admin's award budget for the current week.
type AllowanceStatus struct {
	AdminID   MemberID
	Week      WeekKey
	Cap       int64
	Used      int64
	Remaining int64
}

// AllowanceUsage is what an admin awarded during one ISO week.
type AllowanceUsage struct {
	Week WeekKey
	Used int64
}

// GetAllowanceRemaining reports the caller's award budget for the current week.
func (engine *Engine) GetAllowanceRemaining(ctx context.Context, caller Caller) (AllowanceStatus, error) {
	if err := requireAdmin(caller); err != nil {
		return AllowanceStatus{}, err
	}
	return engine.allowanceStatus(ctx, engine.store, caller.MemberID)
}

// SetAllowanceCap overrides another admin's weekly cap. Admins cannot change their own.
func (engine *Engine) SetAllowanceCap(ctx context.Context, caller Caller, adminID MemberID, capValue int64) (AllowanceStatus, error) {
	var status AllowanceStatus
	operationError := engine.setAllowanceCap(ctx, caller, adminID, capValue, &status)
	engine.logOperation(ctx, OperationLog{
		Operation: operationSetAllowanceCap,
		ActorID:   caller.MemberID,
		MemberID:  adminID,
		Amount:    capValue,
		Error:     operationError,
	})
	if operationError != nil {
		return AllowanceStatus{}, operationError
	}
	return status, nil
}

func (engine *Engine) setAllowanceCap(ctx context.Context, caller Caller, adminID MemberID, capValue int64, status *AllowanceStatus) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if adminID.IsZero() {
		return fmt.Errorf("%w: admin is required", ErrInvalidMemberID)
	}
	if adminID == caller.MemberID {
		return fmt.Errorf("%w: admins cannot change their own allowance", ErrPermissionDenied)
	}
	if capValue < 0 || capValue > MaxPoints {
		return fmt.Errorf("%w: cap must be between 0 and %d", ErrInvalidPoints, MaxPoints)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		if err := txStore.SetAllowanceCap(ctx, adminID, capValue, caller.MemberID, engine.now()); err != nil {
			return err
		}
		current, err := engine.allowanceStatus(ctx, txStore, adminID)
		if err != nil {
			return err
		}
		*status = current
		return nil
	})
}

// ListAllowanceUsage returns an admin's weekly award usage, newest week first. A zero adminID
// means the caller.
func (engine *Engine) ListAllowanceUsage(ctx context.Context, caller Caller, adminID MemberID, limit int) ([]AllowanceUsage, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if adminID.IsZero() {
		adminID = caller.MemberID
	}
	if limit == 0 {
		limit = defaultAllowanceWeeks
	}
	if limit < 0 || limit > maxAllowanceWeeks {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, maxAllowanceWeeks)
	}
	return engine.store.ListAllowanceUsage(ctx, adminID, limit)
}

// reserveAllowance records amount against the admin's current week and returns what is left.
// The reservation lives in the award's transaction, so a failed award releases it on rollback.
func (engine *Engine) reserveAllowance(ctx context.Context, txStore Store, adminID MemberID, amount PositivePoints) (int64, error) {
	capValue, err := engine.allowanceCap(ctx, txStore, adminID)
	if err != nil {
		return 0, err
	}
	week := WeekOf(engine.now(), engine.location)
	used, err := txStore.ReserveAllowance(ctx, adminID, week, amount, capValue, engine.now())
	if errors.Is(err, ErrAllowanceExceeded) {
		current, readErr := txStore.GetAllowanceUsed(ctx, adminID, week)
		if readErr != nil {
			return 0, readErr
		}
		return 0, &AllowanceExceededError{Week: week, Cap: capValue, Remaining: remainingAllowance(capValue, current)}
	}
	if err != nil {
		return 0, err
	}
	return remainingAllowance(capValue, used), nil
}

func (engine *Engine) allowanceStatus(ctx context.Context, store Store, adminID MemberID) (AllowanceStatus, error) {
	capValue, err := engine.allowanceCap(ctx, store, adminID)
	if err != nil {
		return AllowanceStatus{}, err
	}
	week := WeekOf(engine.now(), engine.location)
	used, err := store.GetAllowanceUsed(ctx, adminID, week)
	if err != nil {
		return AllowanceStatus{}, err
	}
	return AllowanceStatus{
		AdminID:   adminID,
		Week:      week,
		Cap:       capValue,
		Used:      used,
		Remaining: remainingAllowance(capValue, used),
	}, nil
}

func (engine *Engine) allowanceCap(ctx context.Context, store Store, adminID MemberID) (int64, error) {
	override, found, err := store.GetAllowanceCap(ctx, adminID)
	if err != nil {
		return 0, err
	}
	if found {
		return override, nil
	}
	return engine.weeklyAllowance, nil
}

func remainingAllowance(capValue int64, used int64) int64 {
	if used >= capValue {
		return 0
	}
	return capValue - used
}
