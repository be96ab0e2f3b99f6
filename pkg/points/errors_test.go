package points

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassifiesWrappedErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		err  error
		want ErrorKind
		code string
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "member", err: fmt.Errorf("lookup: %w", ErrMemberNotFound), want: KindNotFound, code: "member_not_found"},
		{name: "reward", err: ErrUnknownRewardCode, want: KindNotFound, code: "unknown_code"},
		{name: "task not open", err: &TaskNotOpenError{TaskID: 3, Status: TaskStatusClaimed}, want: KindInvalidState, code: "task_not_open"},
		{name: "already booked", err: ErrAlreadyBooked, want: KindDuplicateRequest, code: "already_booked"},
		{name: "insufficient", err: &InsufficientBalanceError{Balance: 1, Shortfall: 2}, want: KindInsufficientBalance, code: "insufficient_balance"},
		{name: "capacity", err: &NoCapacityError{Capacity: 2}, want: KindNoCapacity, code: "no_capacity"},
		{name: "allowance", err: &AllowanceExceededError{Cap: 100, Remaining: 10}, want: KindAllowanceExceeded, code: "allowance_exceeded"},
		{name: "permission", err: ErrPermissionDenied, want: KindPermissionDenied, code: "permission_denied"},
		{name: "transient", err: WrapError("store", "task", "update", ErrTransientConflict), want: KindTransientConflict, code: "transient_conflict"},
		{name: "duplicate", err: ErrDuplicateRequest, want: KindDuplicateRequest, code: "duplicate_request"},
		{name: "argument", err: ErrInvalidCursor, want: KindInvalidArgument, code: "invalid_cursor"},
		{name: "unknown", err: errors.New("disk on fire"), want: KindInternal, code: "internal"},
	}
	for _, testCase := range testCases {
		if got := KindOf(testCase.err); got != testCase.want {
			test.Fatalf("%s: expected kind %q, got %q", testCase.name, testCase.want, got)
		}
		if got := Describe(testCase.err).Code; got != testCase.code {
			test.Fatalf("%s: expected code %q, got %q", testCase.name, testCase.code, got)
		}
	}
}

func TestDescribeCarriesDetails(test *testing.T) {
	test.Parallel()
	insufficient := Describe(fmt.Errorf("award: %w", &InsufficientBalanceError{Balance: 3, Shortfall: 2}))
	if insufficient.Details["shortfall"] != 2 || insufficient.Details["balance"] != 3 {
		test.Fatalf("unexpected details: %+v", insufficient)
	}
	capacity := Describe(&NoCapacityError{Capacity: 10, Available: 0})
	if capacity.Details["available"] != 0 || capacity.Details["capacity"] != 10 {
		test.Fatalf("unexpected details: %+v", capacity)
	}
	allowance := Describe(&AllowanceExceededError{Cap: 100, Remaining: 10})
	if allowance.Details["remaining"] != 10 || allowance.Details["cap"] != 100 {
		test.Fatalf("unexpected details: %+v", allowance)
	}
	notOpen := Describe(&TaskNotOpenError{TaskID: 4, Status: TaskStatusSubmitted})
	if notOpen.Status != "submitted" || notOpen.Details != nil {
		test.Fatalf("unexpected detail: %+v", notOpen)
	}
}

func TestWrapErrorFormatsOperationCode(test *testing.T) {
	test.Parallel()
	base := errors.New("boom")
	wrapped := WrapError("gormstore", "ledger_entries", "insert", base)
	if wrapped.Error() != "gormstore.ledger_entries.insert: boom" {
		test.Fatalf("unexpected message %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		test.Fatalf("expected wrapped error to unwrap to base")
	}
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError")
	}
	if operationError.Operation() != "gormstore" || operationError.Subject() != "ledger_entries" || operationError.Code() != "insert" {
		test.Fatalf("unexpected segments: %+v", operationError)
	}
	if WrapError("a", "b", "c", nil) != nil {
		test.Fatalf("expected nil for nil error")
	}
}
