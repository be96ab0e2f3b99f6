package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/wire"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "points.v1.PointsService"

// PointsService is the server side of points.v1.PointsService.
type PointsService interface {
	GetBalance(context.Context, *BalanceRequest) (*BalanceResponse, error)
	GetHistory(context.Context, *HistoryRequest) (*wire.HistoryPage, error)
	AwardPoints(context.Context, *wire.AwardInput) (*wire.LedgerResult, error)
	DeductPoints(context.Context, *wire.DeductInput) (*wire.LedgerResult, error)
	GetAllowanceRemaining(context.Context, *Empty) (*AllowanceResponse, error)
	CheckCoworking(context.Context, *CoworkingRequest) (*CoworkingResponse, error)
	BookCoworking(context.Context, *BookingRequest) (*wire.BookingResult, error)
	CancelCoworking(context.Context, *BookingRequest) (*wire.BookingResult, error)
	CancelBooking(context.Context, *BookingIDRequest) (*wire.BookingResult, error)
	ListMyBookings(context.Context, *Empty) (*BookingsResponse, error)
	SetCapacityOverride(context.Context, *CapacityRequest) (*AvailabilityResponse, error)
	ListOpenTasks(context.Context, *OpenTasksRequest) (*TasksResponse, error)
	CreateTask(context.Context, *wire.TaskInput) (*TaskResponse, error)
	ClaimTask(context.Context, *TaskRequest) (*TaskResponse, error)
	SubmitTask(context.Context, *SubmitTaskRequest) (*TaskResponse, error)
	ApproveTask(context.Context, *TaskRequest) (*wire.TaskPayout, error)
	RejectTask(context.Context, *RejectTaskRequest) (*TaskResponse, error)
	AwardTask(context.Context, *AwardTaskRequest) (*wire.TaskPayout, error)
	ListRewards(context.Context, *RewardsRequest) (*RewardsResponse, error)
	RequestReward(context.Context, *RedeemRequest) (*wire.RedemptionResult, error)
	FulfillRedemption(context.Context, *RedemptionIDRequest) (*wire.RedemptionResult, error)
	CancelRedemption(context.Context, *RedemptionIDRequest) (*wire.RedemptionResult, error)
}

// ServiceDesc describes points.v1.PointsService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PointsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBalance", Handler: unaryHandler("GetBalance", PointsService.GetBalance)},
		{MethodName: "GetHistory", Handler: unaryHandler("GetHistory", PointsService.GetHistory)},
		{MethodName: "AwardPoints", Handler: unaryHandler("AwardPoints", PointsService.AwardPoints)},
		{MethodName: "DeductPoints", Handler: unaryHandler("DeductPoints", PointsService.DeductPoints)},
		{MethodName: "GetAllowanceRemaining", Handler: unaryHandler("GetAllowanceRemaining", PointsService.GetAllowanceRemaining)},
		{MethodName: "CheckCoworking", Handler: unaryHandler("CheckCoworking", PointsService.CheckCoworking)},
		{MethodName: "BookCoworking", Handler: unaryHandler("BookCoworking", PointsService.BookCoworking)},
		{MethodName: "CancelCoworking", Handler: unaryHandler("CancelCoworking", PointsService.CancelCoworking)},
		{MethodName: "CancelBooking", Handler: unaryHandler("CancelBooking", PointsService.CancelBooking)},
		{MethodName: "ListMyBookings", Handler: unaryHandler("ListMyBookings", PointsService.ListMyBookings)},
		{MethodName: "SetCapacityOverride", Handler: unaryHandler("SetCapacityOverride", PointsService.SetCapacityOverride)},
		{MethodName: "ListOpenTasks", Handler: unaryHandler("ListOpenTasks", PointsService.ListOpenTasks)},
		{MethodName: "CreateTask", Handler: unaryHandler("CreateTask", PointsService.CreateTask)},
		{MethodName: "ClaimTask", Handler: unaryHandler("ClaimTask", PointsService.ClaimTask)},
		{MethodName: "SubmitTask", Handler: unaryHandler("SubmitTask", PointsService.SubmitTask)},
		{MethodName: "ApproveTask", Handler: unaryHandler("ApproveTask", PointsService.ApproveTask)},
		{MethodName: "RejectTask", Handler: unaryHandler("RejectTask", PointsService.RejectTask)},
		{MethodName: "AwardTask", Handler: unaryHandler("AwardTask", PointsService.AwardTask)},
		{MethodName: "ListRewards", Handler: unaryHandler("ListRewards", PointsService.ListRewards)},
		{MethodName: "RequestReward", Handler: unaryHandler("RequestReward", PointsService.RequestReward)},
		{MethodName: "FulfillRedemption", Handler: unaryHandler("FulfillRedemption", PointsService.FulfillRedemption)},
		{MethodName: "CancelRedemption", Handler: unaryHandler("CancelRedemption", PointsService.CancelRedemption)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "points/v1/points.json",
}

// RegisterPointsService attaches service to registrar.
func RegisterPointsService(registrar grpc.ServiceRegistrar, service PointsService) {
	registrar.RegisterService(&ServiceDesc, service)
}

func unaryHandler[Request any, Response any](method string, call func(PointsService, context.Context, *Request) (*Response, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(Request)
		if err := decode(request); err != nil {
			return nil, err
		}
		service := server.(PointsService)
		if interceptor == nil {
			return call(service, ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod}
		handler := func(ctx context.Context, request any) (any, error) {
			return call(service, ctx, request.(*Request))
		}
		return interceptor(ctx, request, info, handler)
	}
}
