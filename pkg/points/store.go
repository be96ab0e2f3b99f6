package points

import (
	"context"
	"time"
)

// Store is the persistence contract of the engine. Every mutating engine call runs inside WithTx;
// conditional updates report lost races with the sentinel named on each method.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	LedgerStore
	AllowanceStore
	CoworkingStore
	TaskStore
	RewardStore
}

// LedgerStore persists members, their cached balances and the append-only entry log.
type LedgerStore interface {
	UpsertMember(ctx context.Context, memberID MemberID, displayName string, at time.Time) (Member, error)
	// GetMember returns ErrMemberNotFound for unknown ids.
	GetMember(ctx context.Context, memberID MemberID) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	// ApplyBalanceDelta updates the cached aggregate only when balance+delta stays non-negative.
	// It returns ErrInsufficientBalance when that condition fails and ErrMemberNotFound for unknown ids.
	ApplyBalanceDelta(ctx context.Context, memberID MemberID, delta int64, earnedDelta int64, spentDelta int64, at time.Time) (Member, error)
	// OverwriteTotals replaces the cached aggregate with replayed totals.
	OverwriteTotals(ctx context.Context, memberID MemberID, totals LedgerTotals, at time.Time) error
	// InsertEntry returns ErrDuplicateRequest when the member already has an entry with the same idempotency key.
	InsertEntry(ctx context.Context, entry Entry) error
	// ListEntries returns entries newest first, strictly older than before when before is set.
	ListEntries(ctx context.Context, memberID MemberID, before *HistoryCursor, limit int) ([]Entry, error)
	SumEntriesByCategory(ctx context.Context, memberID MemberID) ([]CategoryTotals, error)
}

// AllowanceStore persists per-admin weekly award usage.
type AllowanceStore interface {
	// GetAllowanceUsed returns zero for weeks without usage.
	GetAllowanceUsed(ctx context.Context, adminID MemberID, week WeekKey) (int64, error)
	// ReserveAllowance adds amount to the week's usage only while used+amount <= cap.
	// It returns ErrAllowanceExceeded when that condition fails.
	ReserveAllowance(ctx context.Context, adminID MemberID, week WeekKey, amount PositivePoints, cap int64, at time.Time) (int64, error)
	// ListAllowanceUsage returns up to limit weeks with recorded usage, newest first.
	ListAllowanceUsage(ctx context.Context, adminID MemberID, limit int) ([]AllowanceUsage, error)
	// GetAllowanceCap reports the per-admin cap override, if any.
	GetAllowanceCap(ctx context.Context, adminID MemberID) (int64, bool, error)
	SetAllowanceCap(ctx context.Context, adminID MemberID, cap int64, setBy MemberID, at time.Time) error
}

// CoworkingStore persists daily seat pools, overrides and bookings.
type CoworkingStore interface {
	// GetCoworkingDay returns a zero-booked day without override for unseen dates.
	GetCoworkingDay(ctx context.Context, date Date) (CoworkingDay, error)
	ListCoworkingDays(ctx context.Context, from Date, to Date) ([]CoworkingDay, error)
	// TakeSeat increments the booked count only while it is below the effective capacity.
	// It returns ErrNoCapacity when the pool is full.
	TakeSeat(ctx context.Context, date Date, defaultCapacity int) error
	ReleaseSeat(ctx context.Context, date Date) error
	SetCapacityOverride(ctx context.Context, override CapacityOverride) error
	ListCapacityOverrides(ctx context.Context, date Date) ([]CapacityOverride, error)
	// CreateBooking returns ErrAlreadyBooked when the member holds an active booking that day.
	CreateBooking(ctx context.Context, booking Booking) error
	// GetBooking returns ErrBookingNotFound for unknown ids.
	GetBooking(ctx context.Context, bookingID string) (Booking, error)
	// GetActiveBooking returns ErrNoActiveBooking when nothing is held.
	GetActiveBooking(ctx context.Context, memberID MemberID, date Date) (Booking, error)
	// CancelBooking flips an active booking to cancelled. It returns ErrNoActiveBooking when
	// the booking is no longer active.
	CancelBooking(ctx context.Context, bookingID string, at time.Time) error
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
}

// TaskStore persists tasks and their decision log.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) (Task, error)
	// GetTask returns ErrTaskNotFound for unknown ids.
	GetTask(ctx context.Context, taskID TaskID) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	// UpdateTask writes task when the stored version still equals expectedVersion and bumps it.
	// It returns ErrTransientConflict when another writer got there first.
	UpdateTask(ctx context.Context, task Task, expectedVersion int64) (Task, error)
	InsertTaskDecision(ctx context.Context, decision TaskDecision) error
	ListTaskDecisions(ctx context.Context, taskID TaskID) ([]TaskDecision, error)
}

// RewardStore persists the catalog, the rate card and redemption requests.
type RewardStore interface {
	UpsertReward(ctx context.Context, reward Reward) error
	// GetReward returns ErrUnknownRewardCode for unknown codes.
	GetReward(ctx context.Context, code RewardCode) (Reward, error)
	ListRewards(ctx context.Context, includeUnavailable bool) ([]Reward, error)
	UpsertRateCardEntry(ctx context.Context, entry RateCardEntry) error
	// GetRateCardEntry returns ErrUnknownRateCardAlias for unknown aliases.
	GetRateCardEntry(ctx context.Context, alias RateCardAlias) (RateCardEntry, error)
	ListRateCard(ctx context.Context) ([]RateCardEntry, error)
	CreateRedemption(ctx context.Context, redemption Redemption) error
	// GetRedemption returns ErrRedemptionNotFound for unknown ids.
	GetRedemption(ctx context.Context, redemptionID string) (Redemption, error)
	// UpdateRedemptionStatus moves a redemption from one status to another. It returns
	// ErrTransientConflict when the stored status no longer equals from.
	UpdateRedemptionStatus(ctx context.Context, redemptionID string, from RedemptionStatus, to RedemptionStatus, decidedBy MemberID, at time.Time) error
	ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]Redemption, error)
}
