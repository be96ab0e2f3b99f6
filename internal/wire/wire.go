// Package wire holds the JSON shapes shared by the HTTP and gRPC transports.
package wire

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
)

type Balance struct {
	MemberID       string `json:"member_id"`
	Balance        int64  `json:"balance"`
	LifetimeEarned int64  `json:"lifetime_earned"`
	LifetimeSpent  int64  `json:"lifetime_spent"`
}

type Entry struct {
	EntryID        string          `json:"entry_id"`
	MemberID       string          `json:"member_id"`
	Delta          int64           `json:"delta"`
	Reason         string          `json:"reason"`
	Category       string          `json:"category"`
	ActorID        string          `json:"actor_id,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
}

type HistoryPage struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type LedgerResult struct {
	Entry              Entry   `json:"entry"`
	Balance            Balance `json:"balance"`
	AllowanceRemaining *int64  `json:"allowance_remaining,omitempty"`
}

type Allowance struct {
	AdminID   string `json:"admin_id"`
	Week      string `json:"week"`
	Cap       int64  `json:"cap"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
}

type AllowanceWeek struct {
	Week string `json:"week"`
	Used int64  `json:"used"`
}

type Drift struct {
	MemberID        string `json:"member_id"`
	CachedBalance   int64  `json:"cached_balance"`
	ReplayedBalance int64  `json:"replayed_balance"`
	CachedEarned    int64  `json:"cached_lifetime_earned"`
	ReplayedEarned  int64  `json:"replayed_lifetime_earned"`
	CachedSpent     int64  `json:"cached_lifetime_spent"`
	ReplayedSpent   int64  `json:"replayed_lifetime_spent"`
	Repaired        bool   `json:"repaired"`
}

type Availability struct {
	Date      string `json:"date"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked"`
	Available int    `json:"available"`
}

type Booking struct {
	BookingID     string     `json:"booking_id"`
	Date          string     `json:"date"`
	MemberID      string     `json:"member_id"`
	Status        string     `json:"status"`
	PointsCharged int64      `json:"points_charged"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

type BookingResult struct {
	Booking Booking `json:"booking"`
	Entry   Entry   `json:"entry"`
	Balance Balance `json:"balance"`
}

type CapacityOverride struct {
	Date     string    `json:"date"`
	Capacity int       `json:"capacity"`
	SetBy    string    `json:"set_by"`
	SetAt    time.Time `json:"set_at"`
}

type Task struct {
	TaskID              int64      `json:"task_id"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Portfolio           string     `json:"portfolio,omitempty"`
	Points              int64      `json:"points"`
	Status              string     `json:"status"`
	ClaimantID          string     `json:"claimant_id,omitempty"`
	AssigneeID          string     `json:"assignee_id,omitempty"`
	SubmissionText      string     `json:"submission_text,omitempty"`
	SubmissionURL       string     `json:"submission_url,omitempty"`
	DueDate             string     `json:"due_date,omitempty"`
	CreatedBy           string     `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	ClaimedAt           *time.Time `json:"claimed_at,omitempty"`
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	DecidedBy           string     `json:"decided_by,omitempty"`
	DecidedAt           *time.Time `json:"decided_at,omitempty"`
	LastRejectionReason string     `json:"last_rejection_reason,omitempty"`
}

type TaskDecision struct {
	TaskID     int64     `json:"task_id"`
	Outcome    string    `json:"outcome"`
	ClaimantID string    `json:"claimant_id"`
	DecidedBy  string    `json:"decided_by"`
	Reason     string    `json:"reason,omitempty"`
	Points     int64     `json:"points"`
	DecidedAt  time.Time `json:"decided_at"`
}

type TaskPayout struct {
	Task    Task    `json:"task"`
	Entry   Entry   `json:"entry"`
	Balance Balance `json:"balance"`
}

type Reward struct {
	Code      string `json:"code"`
	Label     string `json:"label"`
	Cost      int64  `json:"cost"`
	Available bool   `json:"available"`
}

type RateCardEntry struct {
	Alias  string `json:"alias"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
}

type Redemption struct {
	RedemptionID string     `json:"redemption_id"`
	MemberID     string     `json:"member_id"`
	RewardCode   string     `json:"reward_code"`
	Quantity     int        `json:"quantity"`
	Notes        string     `json:"notes,omitempty"`
	PointsCost   int64      `json:"points_cost"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	DecidedBy    string     `json:"decided_by,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

type RedemptionResult struct {
	Redemption Redemption `json:"redemption"`
	Entry      *Entry     `json:"entry,omitempty"`
	Balance    Balance    `json:"balance"`
}

func FromBalance(balance points.Balance) Balance {
	return Balance{
		MemberID:       balance.MemberID.String(),
		Balance:        balance.Balance,
		LifetimeEarned: balance.LifetimeEarned,
		LifetimeSpent:  balance.LifetimeSpent,
	}
}

func FromEntry(entry points.Entry) Entry {
	return Entry{
		EntryID:        entry.ID.String(),
		MemberID:       entry.MemberID.String(),
		Delta:          entry.Delta,
		Reason:         entry.Reason,
		Category:       entry.Category.String(),
		ActorID:        entry.ActorID.String(),
		Reference:      entry.Reference,
		IdempotencyKey: entry.IdempotencyKey.String(),
		Metadata:       json.RawMessage(entry.Metadata.String()),
		CreatedAt:      entry.CreatedAt,
	}
}

func FromEntries(entries []points.Entry) []Entry {
	payloads := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, FromEntry(entry))
	}
	return payloads
}

func FromAllowance(status points.AllowanceStatus) Allowance {
	return Allowance{
		AdminID:   status.AdminID.String(),
		Week:      status.Week.String(),
		Cap:       status.Cap,
		Used:      status.Used,
		Remaining: status.Remaining,
	}
}

func FromAllowanceUsage(usage []points.AllowanceUsage) []AllowanceWeek {
	payloads := make([]AllowanceWeek, 0, len(usage))
	for _, week := range usage {
		payloads = append(payloads, AllowanceWeek{Week: week.Week.String(), Used: week.Used})
	}
	return payloads
}

func FromDrifts(drifts []points.BalanceDrift) []Drift {
	payloads := make([]Drift, 0, len(drifts))
	for _, drift := range drifts {
		payloads = append(payloads, Drift{
			MemberID:        drift.MemberID.String(),
			CachedBalance:   drift.Cached.Balance,
			ReplayedBalance: drift.Replayed.Balance,
			CachedEarned:    drift.Cached.LifetimeEarned,
			ReplayedEarned:  drift.Replayed.LifetimeEarned,
			CachedSpent:     drift.Cached.LifetimeSpent,
			ReplayedSpent:   drift.Replayed.LifetimeSpent,
			Repaired:        drift.Repaired,
		})
	}
	return payloads
}

func FromAvailability(availability points.Availability) Availability {
	return Availability{
		Date:      availability.Date.String(),
		Capacity:  availability.Capacity,
		Booked:    availability.Booked,
		Available: availability.Available,
	}
}

func FromBooking(booking points.Booking) Booking {
	return Booking{
		BookingID:     booking.ID,
		Date:          booking.Date.String(),
		MemberID:      booking.MemberID.String(),
		Status:        booking.Status.String(),
		PointsCharged: booking.PointsCharged,
		CreatedAt:     booking.CreatedAt,
		CancelledAt:   booking.CancelledAt,
	}
}

func FromBookingResult(result points.BookingResult) BookingResult {
	return BookingResult{
		Booking: FromBooking(result.Booking),
		Entry:   FromEntry(result.Entry),
		Balance: FromBalance(result.Balance),
	}
}

func FromTask(task points.Task) Task {
	return Task{
		TaskID:              task.ID.Int64(),
		Title:               task.Title,
		Description:         task.Description,
		Portfolio:           task.Portfolio,
		Points:              task.Points.Int64(),
		Status:              task.Status.String(),
		ClaimantID:          task.ClaimantID.String(),
		AssigneeID:          task.AssigneeID.String(),
		SubmissionText:      task.SubmissionText,
		SubmissionURL:       task.SubmissionURL,
		DueDate:             task.DueDate.String(),
		CreatedBy:           task.CreatedBy.String(),
		CreatedAt:           task.CreatedAt,
		ClaimedAt:           task.ClaimedAt,
		SubmittedAt:         task.SubmittedAt,
		DecidedBy:           task.DecidedBy.String(),
		DecidedAt:           task.DecidedAt,
		LastRejectionReason: task.LastRejectionReason,
	}
}

func FromTasks(tasks []points.Task) []Task {
	payloads := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		payloads = append(payloads, FromTask(task))
	}
	return payloads
}

func FromTaskPayout(payout points.TaskPayout) TaskPayout {
	return TaskPayout{
		Task:    FromTask(payout.Task),
		Entry:   FromEntry(payout.Entry),
		Balance: FromBalance(payout.Balance),
	}
}

func FromReward(reward points.Reward) Reward {
	return Reward{
		Code:      reward.Code.String(),
		Label:     reward.Label,
		Cost:      reward.Cost.Int64(),
		Available: reward.Available,
	}
}

func FromRateCardEntry(entry points.RateCardEntry) RateCardEntry {
	return RateCardEntry{Alias: entry.Alias.String(), Name: entry.Name, Points: entry.Points.Int64()}
}

func FromRedemption(redemption points.Redemption) Redemption {
	return Redemption{
		RedemptionID: redemption.ID,
		MemberID:     redemption.MemberID.String(),
		RewardCode:   redemption.RewardCode.String(),
		Quantity:     redemption.Quantity,
		Notes:        redemption.Notes,
		PointsCost:   redemption.PointsCost,
		Status:       redemption.Status.String(),
		CreatedAt:    redemption.CreatedAt,
		DecidedBy:    redemption.DecidedBy.String(),
		DecidedAt:    redemption.DecidedAt,
	}
}

// FromRedemptionResult omits the entry when the transition wrote none (fulfilment).
func FromRedemptionResult(result points.RedemptionResult) RedemptionResult {
	payload := RedemptionResult{
		Redemption: FromRedemption(result.Redemption),
		Balance:    FromBalance(result.Balance),
	}
	if result.Entry.ID.String() != "" {
		entry := FromEntry(result.Entry)
		payload.Entry = &entry
	}
	return payload
}

func FromAvailabilities(window []points.Availability) []Availability {
	payloads := make([]Availability, 0, len(window))
	for _, availability := range window {
		payloads = append(payloads, FromAvailability(availability))
	}
	return payloads
}

func FromBookings(bookings []points.Booking) []Booking {
	payloads := make([]Booking, 0, len(bookings))
	for _, booking := range bookings {
		payloads = append(payloads, FromBooking(booking))
	}
	return payloads
}

func FromCapacityOverrides(overrides []points.CapacityOverride) []CapacityOverride {
	payloads := make([]CapacityOverride, 0, len(overrides))
	for _, override := range overrides {
		payloads = append(payloads, CapacityOverride{
			Date:     override.Date.String(),
			Capacity: override.Capacity,
			SetBy:    override.SetBy.String(),
			SetAt:    override.SetAt,
		})
	}
	return payloads
}

func FromTaskDecisions(decisions []points.TaskDecision) []TaskDecision {
	payloads := make([]TaskDecision, 0, len(decisions))
	for _, decision := range decisions {
		payloads = append(payloads, TaskDecision{
			TaskID:     decision.TaskID.Int64(),
			Outcome:    decision.Outcome.String(),
			ClaimantID: decision.ClaimantID.String(),
			DecidedBy:  decision.DecidedBy.String(),
			Reason:     decision.Reason,
			Points:     decision.Points,
			DecidedAt:  decision.DecidedAt,
		})
	}
	return payloads
}

func FromRewards(rewards []points.Reward) []Reward {
	payloads := make([]Reward, 0, len(rewards))
	for _, reward := range rewards {
		payloads = append(payloads, FromReward(reward))
	}
	return payloads
}

func FromRateCard(entries []points.RateCardEntry) []RateCardEntry {
	payloads := make([]RateCardEntry, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, FromRateCardEntry(entry))
	}
	return payloads
}

func FromRedemptions(redemptions []points.Redemption) []Redemption {
	payloads := make([]Redemption, 0, len(redemptions))
	for _, redemption := range redemptions {
		payloads = append(payloads, FromRedemption(redemption))
	}
	return payloads
}

// AwardInput is the transport form of an admin award. Points may be left zero when a rate card
// alias is given.
type AwardInput struct {
	MemberID       string          `json:"member_id"`
	Points         int64           `json:"points"`
	RateCardAlias  string          `json:"rate_card_alias,omitempty"`
	Reason         string          `json:"reason"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Request validates the input into an engine request.
func (input AwardInput) Request() (points.AwardRequest, error) {
	memberID, err := points.NewMemberID(input.MemberID)
	if err != nil {
		return points.AwardRequest{}, err
	}
	award := points.AwardRequest{MemberID: memberID, Points: input.Points, Reason: input.Reason}
	if strings.TrimSpace(input.RateCardAlias) != "" {
		if award.RateCardAlias, err = points.NewRateCardAlias(input.RateCardAlias); err != nil {
			return points.AwardRequest{}, err
		}
	}
	if award.IdempotencyKey, err = optionalIdempotencyKey(input.IdempotencyKey); err != nil {
		return points.AwardRequest{}, err
	}
	if award.Metadata, err = points.NewMetadataJSON(string(input.Metadata)); err != nil {
		return points.AwardRequest{}, err
	}
	return award, nil
}

// DeductInput is the transport form of an admin deduction.
type DeductInput struct {
	MemberID       string          `json:"member_id"`
	Points         int64           `json:"points"`
	Reason         string          `json:"reason"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Request validates the input into an engine request.
func (input DeductInput) Request() (points.DeductRequest, error) {
	memberID, err := points.NewMemberID(input.MemberID)
	if err != nil {
		return points.DeductRequest{}, err
	}
	deduction := points.DeductRequest{MemberID: memberID, Points: input.Points, Reason: input.Reason}
	if deduction.IdempotencyKey, err = optionalIdempotencyKey(input.IdempotencyKey); err != nil {
		return points.DeductRequest{}, err
	}
	if deduction.Metadata, err = points.NewMetadataJSON(string(input.Metadata)); err != nil {
		return points.DeductRequest{}, err
	}
	return deduction, nil
}

// TaskInput is the transport form of a new task. DueDate is parsed in location.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Portfolio   string `json:"portfolio,omitempty"`
	Points      int64  `json:"points"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// Request validates the input into an engine request.
func (input TaskInput) Request(location *time.Location) (points.NewTask, error) {
	amount, err := points.NewPositivePoints(input.Points)
	if err != nil {
		return points.NewTask{}, err
	}
	newTask := points.NewTask{
		Title:       input.Title,
		Description: input.Description,
		Portfolio:   input.Portfolio,
		Points:      amount,
	}
	if strings.TrimSpace(input.AssigneeID) != "" {
		if newTask.AssigneeID, err = points.NewMemberID(input.AssigneeID); err != nil {
			return points.NewTask{}, err
		}
	}
	if strings.TrimSpace(input.DueDate) != "" {
		if newTask.DueDate, err = points.ParseDate(input.DueDate, location); err != nil {
			return points.NewTask{}, err
		}
	}
	return newTask, nil
}

func optionalIdempotencyKey(raw string) (points.IdempotencyKey, error) {
	if strings.TrimSpace(raw) == "" {
		return points.IdempotencyKey{}, nil
	}
	return points.NewIdempotencyKey(raw)
}
