package points

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var slackMentionPattern = regexp.MustCompile(`^<@([A-Za-z0-9._-]+)(?:\|[^>]*)?>$`)

// MemberID identifies a community member as verified by the transport.
type MemberID struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// IdempotencyKey scopes duplicate detection per member.
type IdempotencyKey struct {
	value string
}

// MetadataJSON stores arbitrary request metadata such as the originating channel.
type MetadataJSON struct {
	value string
}

// Reason is the human-readable explanation attached to a ledger entry.
type Reason struct {
	value string
}

// PositivePoints is a strictly positive point amount.
type PositivePoints int64

// NewMemberID validates and normalizes a member id. Slack mention syntax is reduced to the bare id.
func NewMemberID(raw string) (MemberID, error) {
	trimmed := strings.TrimSpace(raw)
	if matches := slackMentionPattern.FindStringSubmatch(trimmed); matches != nil {
		trimmed = matches[1]
	}
	trimmed = strings.TrimPrefix(trimmed, "@")
	if trimmed == "" {
		return MemberID{}, fmt.Errorf("%w: empty value", ErrInvalidMemberID)
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return MemberID{}, fmt.Errorf("%w: contains whitespace", ErrInvalidMemberID)
	}
	return MemberID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id MemberID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id MemberID) IsZero() bool {
	return id.value == ""
}

// NewEntryID validates an entry id.
func NewEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: trimmed}, nil
}

// String returns the identifier.
func (id EntryID) String() string {
	return id.value
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// IsZero reports whether no key was supplied.
func (key IdempotencyKey) IsZero() bool {
	return key.value == ""
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// NewReason trims and validates a reason.
func NewReason(raw string) (Reason, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reason{}, fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	if utf8.RuneCountInString(trimmed) > maxReasonLength {
		return Reason{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidReason, maxReasonLength)
	}
	return Reason{value: trimmed}, nil
}

// String returns the reason text.
func (reason Reason) String() string {
	return reason.value
}

// NewPositivePoints validates an amount and ensures it lies in 1..MaxPoints.
func NewPositivePoints(raw int64) (PositivePoints, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPoints)
	}
	if raw > MaxPoints {
		return 0, fmt.Errorf("%w: must not exceed %d", ErrInvalidPoints, MaxPoints)
	}
	return PositivePoints(raw), nil
}

// Int64 exposes the raw amount.
func (amount PositivePoints) Int64() int64 {
	return int64(amount)
}

// Category classifies a ledger entry.
type Category string

const (
	CategoryAward            Category = "award"
	CategoryTaskPayout       Category = "task-payout"
	CategoryCoworkingSpend   Category = "coworking-spend"
	CategoryCoworkingRefund  Category = "coworking-refund"
	CategoryRewardSpend      Category = "reward-spend"
	CategoryRewardRefund     Category = "reward-refund"
	CategoryManualAdjustment Category = "manual-adjustment"
)

// ParseCategory validates a category label.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.TrimSpace(raw)) {
	case CategoryAward:
		return CategoryAward, nil
	case CategoryTaskPayout:
		return CategoryTaskPayout, nil
	case CategoryCoworkingSpend:
		return CategoryCoworkingSpend, nil
	case CategoryCoworkingRefund:
		return CategoryCoworkingRefund, nil
	case CategoryRewardSpend:
		return CategoryRewardSpend, nil
	case CategoryRewardRefund:
		return CategoryRewardRefund, nil
	case CategoryManualAdjustment:
		return CategoryManualAdjustment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
	}
}

// String returns the category label.
func (category Category) String() string {
	return string(category)
}

// IsRefund reports whether positive deltas of this category give back earlier spending.
func (category Category) IsRefund() bool {
	return category == CategoryCoworkingRefund || category == CategoryRewardRefund
}

// lifetimeDeltas splits a balance delta into the changes of lifetime earned and lifetime spent.
func (category Category) lifetimeDeltas(delta int64) (earned int64, spent int64) {
	switch {
	case delta < 0:
		return 0, -delta
	case category.IsRefund():
		return 0, -delta
	default:
		return delta, 0
	}
}

// Caller is the verified identity on whose behalf an operation runs.
type Caller struct {
	MemberID    MemberID
	DisplayName string
	Admin       bool
}

// NewCaller builds a caller from a transport-verified id.
func NewCaller(rawID string, displayName string, admin bool) (Caller, error) {
	memberID, err := NewMemberID(rawID)
	if err != nil {
		return Caller{}, err
	}
	return Caller{MemberID: memberID, DisplayName: strings.TrimSpace(displayName), Admin: admin}, nil
}

// Member is the cached balance projection of a member's ledger.
type Member struct {
	ID             MemberID
	DisplayName    string
	Balance        int64
	LifetimeEarned int64
	LifetimeSpent  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Balance is the read model returned by getBalance.
type Balance struct {
	MemberID       MemberID
	Balance        int64
	LifetimeEarned int64
	LifetimeSpent  int64
}

// Entry is an immutable ledger record.
type Entry struct {
	ID             EntryID
	MemberID       MemberID
	Delta          int64
	Reason         string
	Category       Category
	ActorID        MemberID
	Reference      string
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
	CreatedAt      time.Time
}

// EntryInput describes a ledger mutation before it is applied.
type EntryInput struct {
	MemberID       MemberID
	Delta          int64
	Reason         Reason
	Category       Category
	ActorID        MemberID
	Reference      string
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
}

// LedgerTotals aggregates a member's entries for replay.
type LedgerTotals struct {
	Balance        int64
	LifetimeEarned int64
	LifetimeSpent  int64
}

// CategoryTotals holds the positive and negative sums of one category.
type CategoryTotals struct {
	Category Category
	Credits  int64
	Debits   int64
}

// foldCategoryTotals replays per-category sums into lifetime totals.
func foldCategoryTotals(totals []CategoryTotals) LedgerTotals {
	var result LedgerTotals
	for _, total := range totals {
		creditEarned, creditSpent := total.Category.lifetimeDeltas(total.Credits)
		debitEarned, debitSpent := total.Category.lifetimeDeltas(-total.Debits)
		result.LifetimeEarned += creditEarned + debitEarned
		result.LifetimeSpent += creditSpent + debitSpent
		result.Balance += total.Credits - total.Debits
	}
	return result
}
