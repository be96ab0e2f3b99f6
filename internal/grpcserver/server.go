// Package grpcserver exposes the points engine as points.v1.PointsService over gRPC with a JSON
// codec and bearer-token callers.
package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/wire"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"go.uber.org/zap"
)

// PointsServiceServer binds PointsService calls to engine operations.
type PointsServiceServer struct {
	engine *points.Engine
	logger *zap.Logger
}

// NewPointsServiceServer constructs a gRPC server for the engine. A nil logger discards output.
func NewPointsServiceServer(engine *points.Engine, logger *zap.Logger) *PointsServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointsServiceServer{engine: engine, logger: logger.Named("grpc")}
}

func (service *PointsServiceServer) GetBalance(ctx context.Context, request *BalanceRequest) (*BalanceResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var balance points.Balance
	if request.MemberID == "" {
		balance, err = service.engine.GetBalance(ctx, caller)
	} else {
		memberID, parseErr := points.NewMemberID(request.MemberID)
		if parseErr != nil {
			return nil, service.fail(ctx, parseErr)
		}
		balance, err = service.engine.GetMemberBalance(ctx, caller, memberID)
	}
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &BalanceResponse{Balance: wire.FromBalance(balance)}, nil
}

func (service *PointsServiceServer) GetHistory(ctx context.Context, request *HistoryRequest) (*wire.HistoryPage, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	query := points.HistoryQuery{Limit: request.Limit, Cursor: request.Cursor}
	if request.MemberID != "" {
		if query.MemberID, err = points.NewMemberID(request.MemberID); err != nil {
			return nil, service.fail(ctx, err)
		}
	}
	page, err := service.engine.GetHistory(ctx, caller, query)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &wire.HistoryPage{Entries: wire.FromEntries(page.Entries), NextCursor: page.NextCursor}, nil
}

func (service *PointsServiceServer) AwardPoints(ctx context.Context, request *wire.AwardInput) (*wire.LedgerResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	award, err := request.Request()
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	result, err := service.engine.AwardPoints(ctx, caller, award)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	remaining := result.AllowanceRemaining
	return &wire.LedgerResult{
		Entry:              wire.FromEntry(result.Entry),
		Balance:            wire.FromBalance(result.Balance),
		AllowanceRemaining: &remaining,
	}, nil
}

func (service *PointsServiceServer) DeductPoints(ctx context.Context, request *wire.DeductInput) (*wire.LedgerResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	deduction, err := request.Request()
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	result, err := service.engine.DeductPoints(ctx, caller, deduction)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &wire.LedgerResult{Entry: wire.FromEntry(result.Entry), Balance: wire.FromBalance(result.Balance)}, nil
}

func (service *PointsServiceServer) GetAllowanceRemaining(ctx context.Context, _ *Empty) (*AllowanceResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	allowance, err := service.engine.GetAllowanceRemaining(ctx, caller)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &AllowanceResponse{Allowance: wire.FromAllowance(allowance)}, nil
}

// CheckCoworking answers for one day, or for Days consecutive days when set. An empty date
// means today.
func (service *PointsServiceServer) CheckCoworking(ctx context.Context, request *CoworkingRequest) (*CoworkingResponse, error) {
	if _, err := callerFromContext(ctx); err != nil {
		return nil, err
	}
	date := service.engine.Today()
	if request.Date != "" {
		parsed, err := points.ParseDate(request.Date, service.engine.Location())
		if err != nil {
			return nil, service.fail(ctx, err)
		}
		date = parsed
	}
	if request.Days == 0 {
		availability, err := service.engine.CheckCoworking(ctx, date)
		if err != nil {
			return nil, service.fail(ctx, err)
		}
		return &CoworkingResponse{Days: []wire.Availability{wire.FromAvailability(availability)}}, nil
	}
	window, err := service.engine.CheckCoworkingRange(ctx, date, request.Days)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &CoworkingResponse{Days: wire.FromAvailabilities(window)}, nil
}

func (service *PointsServiceServer) BookCoworking(ctx context.Context, request *BookingRequest) (*wire.BookingResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	date, err := points.ParseDate(request.Date, service.engine.Location())
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	result, err := service.engine.BookCoworking(ctx, caller, date)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	booked := wire.FromBookingResult(result)
	return &booked, nil
}

func (service *PointsServiceServer) CancelCoworking(ctx context.Context, request *BookingRequest) (*wire.BookingResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	date, err := points.ParseDate(request.Date, service.engine.Location())
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	result, err := service.engine.CancelCoworking(ctx, caller, date)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	cancelled := wire.FromBookingResult(result)
	return &cancelled, nil
}

// CancelBooking cancels a booking by id. Admins may cancel bookings held by other members.
func (service *PointsServiceServer) CancelBooking(ctx context.Context, request *BookingIDRequest) (*wire.BookingResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err := service.engine.CancelBookingByID(ctx, caller, request.BookingID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	cancelled := wire.FromBookingResult(result)
	return &cancelled, nil
}

func (service *PointsServiceServer) ListMyBookings(ctx context.Context, _ *Empty) (*BookingsResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := service.engine.ListMyBookings(ctx, caller)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &BookingsResponse{Bookings: wire.FromBookings(bookings)}, nil
}

func (service *PointsServiceServer) SetCapacityOverride(ctx context.Context, request *CapacityRequest) (*AvailabilityResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	date, err := points.ParseDate(request.Date, service.engine.Location())
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	availability, err := service.engine.SetCapacityOverride(ctx, caller, date, request.Capacity)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &AvailabilityResponse{Availability: wire.FromAvailability(availability)}, nil
}

func (service *PointsServiceServer) ListOpenTasks(ctx context.Context, request *OpenTasksRequest) (*TasksResponse, error) {
	if _, err := callerFromContext(ctx); err != nil {
		return nil, err
	}
	tasks, err := service.engine.ListOpenTasks(ctx, request.Portfolio)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &TasksResponse{Tasks: wire.FromTasks(tasks)}, nil
}

func (service *PointsServiceServer) CreateTask(ctx context.Context, request *wire.TaskInput) (*TaskResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	newTask, err := request.Request(service.engine.Location())
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	task, err := service.engine.CreateTask(ctx, caller, newTask)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &TaskResponse{Task: wire.FromTask(task)}, nil
}

func (service *PointsServiceServer) ClaimTask(ctx context.Context, request *TaskRequest) (*TaskResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	taskID, err := points.NewTaskID(request.TaskID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	task, err := service.engine.ClaimTask(ctx, caller, taskID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &TaskResponse{Task: wire.FromTask(task)}, nil
}

func (service *PointsServiceServer) SubmitTask(ctx context.Context, request *SubmitTaskRequest) (*TaskResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	taskID, err := points.NewTaskID(request.TaskID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	task, err := service.engine.SubmitTask(ctx, caller, taskID, points.TaskSubmission{Text: request.Text, URL: request.URL})
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &TaskResponse{Task: wire.FromTask(task)}, nil
}

func (service *PointsServiceServer) ApproveTask(ctx context.Context, request *TaskRequest) (*wire.TaskPayout, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	taskID, err := points.NewTaskID(request.TaskID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	payout, err := service.engine.ApproveTask(ctx, caller, taskID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	approved := wire.FromTaskPayout(payout)
	return &approved, nil
}

func (service *PointsServiceServer) RejectTask(ctx context.Context, request *RejectTaskRequest) (*TaskResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	taskID, err := points.NewTaskID(request.TaskID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	task, err := service.engine.RejectTask(ctx, caller, taskID, request.Reason)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &TaskResponse{Task: wire.FromTask(task)}, nil
}

func (service *PointsServiceServer) AwardTask(ctx context.Context, request *AwardTaskRequest) (*wire.TaskPayout, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	taskID, err := points.NewTaskID(request.TaskID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	memberID, err := points.NewMemberID(request.MemberID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	payout, err := service.engine.AwardTask(ctx, caller, taskID, memberID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	awarded := wire.FromTaskPayout(payout)
	return &awarded, nil
}

func (service *PointsServiceServer) ListRewards(ctx context.Context, request *RewardsRequest) (*RewardsResponse, error) {
	if _, err := callerFromContext(ctx); err != nil {
		return nil, err
	}
	rewards, err := service.engine.ListRewards(ctx, request.IncludeUnavailable)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	return &RewardsResponse{Rewards: wire.FromRewards(rewards)}, nil
}

func (service *PointsServiceServer) RequestReward(ctx context.Context, request *RedeemRequest) (*wire.RedemptionResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	code, err := points.NewRewardCode(request.Code)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	result, err := service.engine.RequestReward(ctx, caller, points.RedemptionRequest{
		Code:     code,
		Quantity: request.Quantity,
		Notes:    request.Notes,
	})
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	redeemed := wire.FromRedemptionResult(result)
	return &redeemed, nil
}

func (service *PointsServiceServer) FulfillRedemption(ctx context.Context, request *RedemptionIDRequest) (*wire.RedemptionResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err := service.engine.FulfillRedemption(ctx, caller, request.RedemptionID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	fulfilled := wire.FromRedemptionResult(result)
	return &fulfilled, nil
}

func (service *PointsServiceServer) CancelRedemption(ctx context.Context, request *RedemptionIDRequest) (*wire.RedemptionResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err := service.engine.CancelRedemption(ctx, caller, request.RedemptionID)
	if err != nil {
		return nil, service.fail(ctx, err)
	}
	cancelled := wire.FromRedemptionResult(result)
	return &cancelled, nil
}

func (service *PointsServiceServer) fail(ctx context.Context, err error) error {
	if isStatusError(err) {
		return err
	}
	if points.KindOf(err) == points.KindInternal {
		service.logger.Error("call failed", zap.Error(err), zap.NamedError("context", ctx.Err()))
	}
	return mapToGRPCError(err)
}
