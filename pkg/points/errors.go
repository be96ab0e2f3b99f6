package points

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the engine.
var (
	ErrMemberNotFound          = errors.New("member not found")
	ErrTaskNotFound            = errors.New("task not found")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrRedemptionNotFound      = errors.New("redemption not found")
	ErrUnknownRewardCode       = errors.New("unknown reward code")
	ErrUnknownRateCardAlias    = errors.New("unknown rate card alias")
	ErrNoActiveBooking         = errors.New("no active booking")
	ErrInvalidState            = errors.New("invalid state")
	ErrTaskNotOpen             = errors.New("task not open")
	ErrNotClaimant             = errors.New("not the claimant")
	ErrNotAssigned             = errors.New("task assigned to another member")
	ErrRewardUnavailable       = errors.New("reward unavailable")
	ErrAlreadyBooked           = errors.New("already booked")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrNoCapacity              = errors.New("no capacity")
	ErrAllowanceExceeded       = errors.New("allowance exceeded")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrTransientConflict       = errors.New("transient conflict")
	ErrDuplicateRequest        = errors.New("duplicate request")
	ErrInvalidMemberID         = errors.New("invalid member id")
	ErrInvalidEntryID          = errors.New("invalid entry id")
	ErrInvalidPoints           = errors.New("invalid points")
	ErrInvalidReason           = errors.New("invalid reason")
	ErrInvalidCategory         = errors.New("invalid category")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidDate             = errors.New("invalid date")
	ErrInvalidWeekKey          = errors.New("invalid week key")
	ErrInvalidTaskID           = errors.New("invalid task id")
	ErrInvalidTaskStatus       = errors.New("invalid task status")
	ErrInvalidTaskTitle        = errors.New("invalid task title")
	ErrInvalidSubmission       = errors.New("invalid submission")
	ErrInvalidRewardCode       = errors.New("invalid reward code")
	ErrInvalidRateCardAlias    = errors.New("invalid rate card alias")
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrInvalidCapacity         = errors.New("invalid capacity")
	ErrInvalidCursor           = errors.New("invalid cursor")
	ErrInvalidLimit            = errors.New("invalid limit")
	ErrInvalidRedemptionID     = errors.New("invalid redemption id")
	ErrInvalidBookingID        = errors.New("invalid booking id")
	ErrInvalidBookingStatus    = errors.New("invalid booking status")
	ErrInvalidRedemptionStatus = errors.New("invalid redemption status")
	ErrInvalidEngineConfig     = errors.New("invalid engine config")
)

// ErrorKind is the machine-readable failure class reported to callers.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindNotFound            ErrorKind = "not_found"
	KindInvalidState        ErrorKind = "invalid_state"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindNoCapacity          ErrorKind = "no_capacity"
	KindAllowanceExceeded   ErrorKind = "allowance_exceeded"
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindTransientConflict   ErrorKind = "transient_conflict"
	KindDuplicateRequest    ErrorKind = "duplicate_request"
	KindInvalidArgument     ErrorKind = "invalid_argument"
	KindInternal            ErrorKind = "internal"
)

// String returns the kind label.
func (kind ErrorKind) String() string {
	return string(kind)
}

type errorClass struct {
	target error
	kind   ErrorKind
	code   string
}

// errorClasses is ordered: specific sentinels precede the generic ones they also match.
var errorClasses = []errorClass{
	{target: ErrMemberNotFound, kind: KindNotFound, code: "member_not_found"},
	{target: ErrTaskNotFound, kind: KindNotFound, code: "task_not_found"},
	{target: ErrBookingNotFound, kind: KindNotFound, code: "booking_not_found"},
	{target: ErrRedemptionNotFound, kind: KindNotFound, code: "redemption_not_found"},
	{target: ErrUnknownRewardCode, kind: KindNotFound, code: "unknown_code"},
	{target: ErrUnknownRateCardAlias, kind: KindNotFound, code: "unknown_rate_card_alias"},
	{target: ErrNoActiveBooking, kind: KindNotFound, code: "no_active_booking"},
	{target: ErrTaskNotOpen, kind: KindInvalidState, code: "task_not_open"},
	{target: ErrNotClaimant, kind: KindInvalidState, code: "not_claimant"},
	{target: ErrNotAssigned, kind: KindInvalidState, code: "not_assigned"},
	{target: ErrRewardUnavailable, kind: KindInvalidState, code: "reward_unavailable"},
	{target: ErrAlreadyBooked, kind: KindDuplicateRequest, code: "already_booked"},
	{target: ErrInvalidState, kind: KindInvalidState, code: "invalid_state"},
	{target: ErrInsufficientBalance, kind: KindInsufficientBalance, code: "insufficient_balance"},
	{target: ErrNoCapacity, kind: KindNoCapacity, code: "no_capacity"},
	{target: ErrAllowanceExceeded, kind: KindAllowanceExceeded, code: "allowance_exceeded"},
	{target: ErrPermissionDenied, kind: KindPermissionDenied, code: "permission_denied"},
	{target: ErrTransientConflict, kind: KindTransientConflict, code: "transient_conflict"},
	{target: ErrDuplicateRequest, kind: KindDuplicateRequest, code: "duplicate_request"},
	{target: ErrInvalidMemberID, kind: KindInvalidArgument, code: "invalid_member_id"},
	{target: ErrInvalidEntryID, kind: KindInvalidArgument, code: "invalid_entry_id"},
	{target: ErrInvalidPoints, kind: KindInvalidArgument, code: "invalid_points"},
	{target: ErrInvalidReason, kind: KindInvalidArgument, code: "invalid_reason"},
	{target: ErrInvalidCategory, kind: KindInvalidArgument, code: "invalid_category"},
	{target: ErrInvalidIdempotencyKey, kind: KindInvalidArgument, code: "invalid_idempotency_key"},
	{target: ErrInvalidMetadataJSON, kind: KindInvalidArgument, code: "invalid_metadata_json"},
	{target: ErrInvalidDate, kind: KindInvalidArgument, code: "invalid_date"},
	{target: ErrInvalidWeekKey, kind: KindInvalidArgument, code: "invalid_week_key"},
	{target: ErrInvalidTaskID, kind: KindInvalidArgument, code: "invalid_task_id"},
	{target: ErrInvalidTaskStatus, kind: KindInvalidArgument, code: "invalid_task_status"},
	{target: ErrInvalidTaskTitle, kind: KindInvalidArgument, code: "invalid_task_title"},
	{target: ErrInvalidSubmission, kind: KindInvalidArgument, code: "invalid_submission"},
	{target: ErrInvalidRewardCode, kind: KindInvalidArgument, code: "invalid_reward_code"},
	{target: ErrInvalidRateCardAlias, kind: KindInvalidArgument, code: "invalid_rate_card_alias"},
	{target: ErrInvalidQuantity, kind: KindInvalidArgument, code: "invalid_quantity"},
	{target: ErrInvalidCapacity, kind: KindInvalidArgument, code: "invalid_capacity"},
	{target: ErrInvalidCursor, kind: KindInvalidArgument, code: "invalid_cursor"},
	{target: ErrInvalidLimit, kind: KindInvalidArgument, code: "invalid_limit"},
	{target: ErrInvalidRedemptionID, kind: KindInvalidArgument, code: "invalid_redemption_id"},
	{target: ErrInvalidBookingID, kind: KindInvalidArgument, code: "invalid_booking_id"},
	{target: ErrInvalidBookingStatus, kind: KindInvalidArgument, code: "invalid_booking_status"},
	{target: ErrInvalidRedemptionStatus, kind: KindInvalidArgument, code: "invalid_redemption_status"},
}

func classify(err error) (ErrorKind, string) {
	if err == nil {
		return KindNone, ""
	}
	for _, class := range errorClasses {
		if errors.Is(err, class.target) {
			return class.kind, class.code
		}
	}
	return KindInternal, "internal"
}

// KindOf reports the failure class of err, KindInternal for anything unrecognised.
func KindOf(err error) ErrorKind {
	kind, _ := classify(err)
	return kind
}

// ErrorDetail is the structured rendering of an engine failure.
type ErrorDetail struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]int64
	Status  string
}

// Describe renders err for transports. Internal errors keep their message for logging only.
func Describe(err error) ErrorDetail {
	kind, code := classify(err)
	detail := ErrorDetail{Kind: kind, Code: code}
	if err == nil {
		return detail
	}
	detail.Message = err.Error()

	var insufficient *InsufficientBalanceError
	var noCapacity *NoCapacityError
	var allowance *AllowanceExceededError
	var notOpen *TaskNotOpenError
	switch {
	case errors.As(err, &insufficient):
		detail.Details = map[string]int64{"shortfall": insufficient.Shortfall, "balance": insufficient.Balance}
	case errors.As(err, &noCapacity):
		detail.Details = map[string]int64{"available": int64(noCapacity.Available), "capacity": int64(noCapacity.Capacity)}
	case errors.As(err, &allowance):
		detail.Details = map[string]int64{"remaining": allowance.Remaining, "cap": allowance.Cap}
	case errors.As(err, &notOpen):
		detail.Status = notOpen.Status.String()
	}
	return detail
}

// InsufficientBalanceError reports how many points the member is short.
type InsufficientBalanceError struct {
	Balance   int64
	Shortfall int64
}

func (insufficientError *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%v: balance %d, short by %d", ErrInsufficientBalance, insufficientError.Balance, insufficientError.Shortfall)
}

func (insufficientError *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// NoCapacityError reports the seats still open on the requested day.
type NoCapacityError struct {
	Date      Date
	Capacity  int
	Available int
}

func (capacityError *NoCapacityError) Error() string {
	return fmt.Sprintf("%v: %s has %d of %d seats available", ErrNoCapacity, capacityError.Date, capacityError.Available, capacityError.Capacity)
}

func (capacityError *NoCapacityError) Unwrap() error {
	return ErrNoCapacity
}

// AllowanceExceededError reports the admin's remaining weekly allowance.
type AllowanceExceededError struct {
	Week      WeekKey
	Cap       int64
	Remaining int64
}

func (allowanceError *AllowanceExceededError) Error() string {
	return fmt.Sprintf("%v: %d of %d remaining for %s", ErrAllowanceExceeded, allowanceError.Remaining, allowanceError.Cap, allowanceError.Week)
}

func (allowanceError *AllowanceExceededError) Unwrap() error {
	return ErrAllowanceExceeded
}

// TaskNotOpenError carries the status observed by a failed claim.
type TaskNotOpenError struct {
	TaskID TaskID
	Status TaskStatus
}

func (taskError *TaskNotOpenError) Error() string {
	return fmt.Sprintf("%v: task %s is %s", ErrTaskNotOpen, taskError.TaskID, taskError.Status)
}

func (taskError *TaskNotOpenError) Unwrap() error {
	return ErrTaskNotOpen
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
