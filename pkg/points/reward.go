package points

import (
	"fmt"
	"strings"
	"time"
)

// RewardCode identifies a catalog entry. Codes are upper-cased.
type RewardCode struct {
	value string
}

// NewRewardCode validates and normalizes a reward code.
func NewRewardCode(raw string) (RewardCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return RewardCode{}, fmt.Errorf("%w: empty value", ErrInvalidRewardCode)
	}
	if strings.ContainsAny(normalized, " \t\r\n") {
		return RewardCode{}, fmt.Errorf("%w: contains whitespace", ErrInvalidRewardCode)
	}
	return RewardCode{value: normalized}, nil
}

// String returns the normalized code.
func (code RewardCode) String() string {
	return code.value
}

// Reward is a catalog entry members may redeem points for.
type Reward struct {
	Code      RewardCode
	Label     string
	Cost      PositivePoints
	Available bool
	UpdatedAt time.Time
}

// RateCardAlias names a standard award amount. Aliases are lower-cased.
type RateCardAlias struct {
	value string
}

// NewRateCardAlias validates and normalizes an alias.
func NewRateCardAlias(raw string) (RateCardAlias, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return RateCardAlias{}, fmt.Errorf("%w: empty value", ErrInvalidRateCardAlias)
	}
	return RateCardAlias{value: normalized}, nil
}

// String returns the normalized alias.
func (alias RateCardAlias) String() string {
	return alias.value
}

// IsZero reports whether no alias was given.
func (alias RateCardAlias) IsZero() bool {
	return alias.value == ""
}

// RateCardEntry maps an alias to a named point amount.
type RateCardEntry struct {
	Alias     RateCardAlias
	Name      string
	Points    PositivePoints
	UpdatedAt time.Time
}

// RedemptionStatus is the lifecycle state of a redemption request.
type RedemptionStatus string

const (
	RedemptionStatusPending   RedemptionStatus = "pending"
	RedemptionStatusFulfilled RedemptionStatus = "fulfilled"
	RedemptionStatusCancelled RedemptionStatus = "cancelled"
)

// ParseRedemptionStatus validates a redemption status label.
func ParseRedemptionStatus(raw string) (RedemptionStatus, error) {
	switch RedemptionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case RedemptionStatusPending:
		return RedemptionStatusPending, nil
	case RedemptionStatusFulfilled:
		return RedemptionStatusFulfilled, nil
	case RedemptionStatusCancelled:
		return RedemptionStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRedemptionStatus, raw)
	}
}

// String returns the status label.
func (status RedemptionStatus) String() string {
	return string(status)
}

// Redemption is a member's request to exchange points for a reward.
type Redemption struct {
	ID         string
	MemberID   MemberID
	RewardCode RewardCode
	Quantity   int
	Notes      string
	PointsCost int64
	Status     RedemptionStatus
	CreatedAt  time.Time
	DecidedBy  MemberID
	DecidedAt  *time.Time
}

// RedemptionRequest is the input of requestReward.
type RedemptionRequest struct {
	Code     RewardCode
	Quantity int
	Notes    string
}

// RedemptionFilter narrows redemption listings. Zero values match everything.
type RedemptionFilter struct {
	MemberID MemberID
	Status   RedemptionStatus
	Limit    int
}
