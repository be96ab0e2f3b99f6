package grpcserver

import "github.com/MarkoPoloResearchLab/communitypoints/internal/wire"

// Empty is the request of methods that take no arguments.
type Empty struct{}

type BalanceRequest struct {
	MemberID string `json:"member_id,omitempty"`
}

type BalanceResponse struct {
	Balance wire.Balance `json:"balance"`
}

type HistoryRequest struct {
	MemberID string `json:"member_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

type AllowanceResponse struct {
	Allowance wire.Allowance `json:"allowance"`
}

type CoworkingRequest struct {
	Date string `json:"date,omitempty"`
	Days int    `json:"days,omitempty"`
}

type CoworkingResponse struct {
	Days []wire.Availability `json:"days"`
}

type BookingRequest struct {
	Date string `json:"date"`
}

type BookingIDRequest struct {
	BookingID string `json:"booking_id"`
}

type BookingsResponse struct {
	Bookings []wire.Booking `json:"bookings"`
}

type CapacityRequest struct {
	Date     string `json:"date"`
	Capacity int    `json:"capacity"`
}

type AvailabilityResponse struct {
	Availability wire.Availability `json:"availability"`
}

type OpenTasksRequest struct {
	Portfolio string `json:"portfolio,omitempty"`
}

type TasksResponse struct {
	Tasks []wire.Task `json:"tasks"`
}

type TaskRequest struct {
	TaskID int64 `json:"task_id"`
}

type SubmitTaskRequest struct {
	TaskID int64  `json:"task_id"`
	Text   string `json:"text,omitempty"`
	URL    string `json:"url,omitempty"`
}

type RejectTaskRequest struct {
	TaskID int64  `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

type AwardTaskRequest struct {
	TaskID   int64  `json:"task_id"`
	MemberID string `json:"member_id"`
}

type TaskResponse struct {
	Task wire.Task `json:"task"`
}

type RewardsRequest struct {
	IncludeUnavailable bool `json:"include_unavailable,omitempty"`
}

type RewardsResponse struct {
	Rewards []wire.Reward `json:"rewards"`
}

type RedeemRequest struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type RedemptionIDRequest struct {
	RedemptionID string `json:"redemption_id"`
}
