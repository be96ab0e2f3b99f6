package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client calls points.v1.PointsService over an established connection using the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// WithBearerToken attaches token to outgoing calls made with ctx.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authorizationHeader, "Bearer "+token)
}

func (client *Client) GetBalance(ctx context.Context, request *BalanceRequest, options ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, client.conn, "GetBalance", request, options)
}

func (client *Client) GetHistory(ctx context.Context, request *HistoryRequest, options ...grpc.CallOption) (*wire.HistoryPage, error) {
	return invoke[wire.HistoryPage](ctx, client.conn, "GetHistory", request, options)
}

func (client *Client) AwardPoints(ctx context.Context, request *wire.AwardInput, options ...grpc.CallOption) (*wire.LedgerResult, error) {
	return invoke[wire.LedgerResult](ctx, client.conn, "AwardPoints", request, options)
}

func (client *Client) DeductPoints(ctx context.Context, request *wire.DeductInput, options ...grpc.CallOption) (*wire.LedgerResult, error) {
	return invoke[wire.LedgerResult](ctx, client.conn, "DeductPoints", request, options)
}

func (client *Client) GetAllowanceRemaining(ctx context.Context, request *Empty, options ...grpc.CallOption) (*AllowanceResponse, error) {
	return invoke[AllowanceResponse](ctx, client.conn, "GetAllowanceRemaining", request, options)
}

func (client *Client) CheckCoworking(ctx context.Context, request *CoworkingRequest, options ...grpc.CallOption) (*CoworkingResponse, error) {
	return invoke[CoworkingResponse](ctx, client.conn, "CheckCoworking", request, options)
}

func (client *Client) BookCoworking(ctx context.Context, request *BookingRequest, options ...grpc.CallOption) (*wire.BookingResult, error) {
	return invoke[wire.BookingResult](ctx, client.conn, "BookCoworking", request, options)
}

func (client *Client) CancelCoworking(ctx context.Context, request *BookingRequest, options ...grpc.CallOption) (*wire.BookingResult, error) {
	return invoke[wire.BookingResult](ctx, client.conn, "CancelCoworking", request, options)
}

func (client *Client) CancelBooking(ctx context.Context, request *BookingIDRequest, options ...grpc.CallOption) (*wire.BookingResult, error) {
	return invoke[wire.BookingResult](ctx, client.conn, "CancelBooking", request, options)
}

func (client *Client) ListMyBookings(ctx context.Context, request *Empty, options ...grpc.CallOption) (*BookingsResponse, error) {
	return invoke[BookingsResponse](ctx, client.conn, "ListMyBookings", request, options)
}

func (client *Client) SetCapacityOverride(ctx context.Context, request *CapacityRequest, options ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityResponse](ctx, client.conn, "SetCapacityOverride", request, options)
}

func (client *Client) ListOpenTasks(ctx context.Context, request *OpenTasksRequest, options ...grpc.CallOption) (*TasksResponse, error) {
	return invoke[TasksResponse](ctx, client.conn, "ListOpenTasks", request, options)
}

func (client *Client) CreateTask(ctx context.Context, request *wire.TaskInput, options ...grpc.CallOption) (*TaskResponse, error) {
	return invoke[TaskResponse](ctx, client.conn, "CreateTask", request, options)
}

func (client *Client) ClaimTask(ctx context.Context, request *TaskRequest, options ...grpc.CallOption) (*TaskResponse, error) {
	return invoke[TaskResponse](ctx, client.conn, "ClaimTask", request, options)
}

func (client *Client) SubmitTask(ctx context.Context, request *SubmitTaskRequest, options ...grpc.CallOption) (*TaskResponse, error) {
	return invoke[TaskResponse](ctx, client.conn, "SubmitTask", request, options)
}

func (client *Client) ApproveTask(ctx context.Context, request *TaskRequest, options ...grpc.CallOption) (*wire.TaskPayout, error) {
	return invoke[wire.TaskPayout](ctx, client.conn, "ApproveTask", request, options)
}

func (client *Client) RejectTask(ctx context.Context, request *RejectTaskRequest, options ...grpc.CallOption) (*TaskResponse, error) {
	return invoke[TaskResponse](ctx, client.conn, "RejectTask", request, options)
}

func (client *Client) AwardTask(ctx context.Context, request *AwardTaskRequest, options ...grpc.CallOption) (*wire.TaskPayout, error) {
	return invoke[wire.TaskPayout](ctx, client.conn, "AwardTask", request, options)
}

func (client *Client) ListRewards(ctx context.Context, request *RewardsRequest, options ...grpc.CallOption) (*RewardsResponse, error) {
	return invoke[RewardsResponse](ctx, client.conn, "ListRewards", request, options)
}

func (client *Client) RequestReward(ctx context.Context, request *RedeemRequest, options ...grpc.CallOption) (*wire.RedemptionResult, error) {
	return invoke[wire.RedemptionResult](ctx, client.conn, "RequestReward", request, options)
}

func (client *Client) FulfillRedemption(ctx context.Context, request *RedemptionIDRequest, options ...grpc.CallOption) (*wire.RedemptionResult, error) {
	return invoke[wire.RedemptionResult](ctx, client.conn, "FulfillRedemption", request, options)
}

func (client *Client) CancelRedemption(ctx context.Context, request *RedemptionIDRequest, options ...grpc.CallOption) (*wire.RedemptionResult, error) {
	return invoke[wire.RedemptionResult](ctx, client.conn, "CancelRedemption", request, options)
}

func invoke[Response any](ctx context.Context, conn grpc.ClientConnInterface, method string, request any, options []grpc.CallOption) (*Response, error) {
	response := new(Response)
	callOptions := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, options...)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/"+method, request, response, callOptions...); err != nil {
		return nil, err
	}
	return response, nil
}
