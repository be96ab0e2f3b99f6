package points

import "time"

const (
	operationRegisterMember      = "register_member"
	operationAwardPoints         = "award_points"
	operationDeductPoints        = "deduct_points"
	operationSetAllowanceCap     = "set_allowance_cap"
	operationBookCoworking       = "book_coworking"
	operationCancelCoworking     = "cancel_coworking"
	operationSetCapacityOverride = "set_capacity_override"
	operationCreateTask          = "create_task"
	operationClaimTask           = "claim_task"
	operationSubmitTask          = "submit_task"
	operationApproveTask         = "approve_task"
	operationRejectTask          = "reject_task"
	operationAwardTask           = "award_task"
	operationUpsertReward        = "upsert_reward"
	operationUpsertRateCard      = "upsert_rate_card"
	operationRequestReward       = "request_reward"
	operationFulfillRedemption   = "fulfill_redemption"
	operationCancelRedemption    = "cancel_redemption"
	operationReconcileBalances   = "reconcile_balances"

	operationStatusOK       = "ok"
	operationStatusRejected = "rejected"
	operationStatusError    = "error"

	idempotencyKeyDelimiter      = ":"
	idempotencyPrefixTaskPayout  = "task-payout"
	idempotencyPrefixBooking     = "coworking-booking"
	idempotencyPrefixBookingBack = "coworking-cancel"
	idempotencyPrefixRedemption  = "reward-redemption"
	idempotencyPrefixRefund      = "reward-refund"

	// DefaultWeeklyAllowance is the admin award cap per ISO week.
	DefaultWeeklyAllowance int64 = 100
	// DefaultCoworkingCapacity is the number of seats per day without an override.
	DefaultCoworkingCapacity = 10
	// DefaultCoworkingCost is the point price of one coworking day.
	DefaultCoworkingCost int64 = 1
	// DefaultMaxAttempts bounds how often a transaction is retried on transient conflicts.
	DefaultMaxAttempts = 4
	// DefaultRetryBaseDelay is the first backoff delay between attempts.
	DefaultRetryBaseDelay = 10 * time.Millisecond
	// MaxPoints caps any single amount, price or weekly cap.
	MaxPoints int64 = 1_000_000_000

	defaultHistoryLimit       = 20
	maxHistoryLimit           = 200
	defaultAvailabilityDays   = 7
	maxAvailabilityDays       = 31
	defaultAllowanceWeeks     = 12
	maxAllowanceWeeks         = 106
	maxReasonLength           = 500
	maxTaskTitleLength        = 200
	maxRedemptionQuantity     = 100
	rateCardReasonFormat      = "%s (%s)"
	historyCursorSeparator    = "|"
	bookingActiveKeySeparator = "|"
)
