package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/wire"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/gin-gonic/gin"
)

type allowanceCapRequest struct {
	Cap int64 `json:"cap"`
}

func (handler *Handler) handleBalance(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.engine.GetBalance(requestCtx, callerFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": wire.FromBalance(balance)})
}

func (handler *Handler) handleMemberBalance(ctx *gin.Context) {
	memberID, err := points.NewMemberID(ctx.Param("memberID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.engine.GetMemberBalance(requestCtx, callerFrom(ctx), memberID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": wire.FromBalance(balance)})
}

func (handler *Handler) handleHistory(ctx *gin.Context) {
	query := points.HistoryQuery{Cursor: ctx.Query("cursor")}
	if rawMember := ctx.Query("member_id"); rawMember != "" {
		memberID, err := points.NewMemberID(rawMember)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		query.MemberID = memberID
	}
	limit, ok := queryInt(ctx, "limit")
	if !ok {
		return
	}
	query.Limit = limit
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	page, err := handler.engine.GetHistory(requestCtx, callerFrom(ctx), query)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.HistoryPage{Entries: wire.FromEntries(page.Entries), NextCursor: page.NextCursor})
}

func (handler *Handler) handleAward(ctx *gin.Context) {
	var request wire.AwardInput
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	award, err := request.Request()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.AwardPoints(requestCtx, callerFrom(ctx), award)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	remaining := result.AllowanceRemaining
	ctx.JSON(http.StatusOK, wire.LedgerResult{
		Entry:              wire.FromEntry(result.Entry),
		Balance:            wire.FromBalance(result.Balance),
		AllowanceRemaining: &remaining,
	})
}

func (handler *Handler) handleDeduct(ctx *gin.Context) {
	var request wire.DeductInput
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	deduction, err := request.Request()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.DeductPoints(requestCtx, callerFrom(ctx), deduction)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.LedgerResult{Entry: wire.FromEntry(result.Entry), Balance: wire.FromBalance(result.Balance)})
}

func (handler *Handler) handleReconcile(ctx *gin.Context) {
	repair, err := strconv.ParseBool(defaultString(ctx.Query("repair"), "false"))
	if err != nil {
		invalidPayload(ctx, "repair must be a boolean")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	drifts, err := handler.engine.ReconcileBalances(requestCtx, callerFrom(ctx), repair)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"drifts": wire.FromDrifts(drifts)})
}

func (handler *Handler) handleAllowance(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	status, err := handler.engine.GetAllowanceRemaining(requestCtx, callerFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"allowance": wire.FromAllowance(status)})
}

func (handler *Handler) handleSetAllowanceCap(ctx *gin.Context) {
	adminID, err := points.NewMemberID(ctx.Param("adminID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request allowanceCapRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	status, err := handler.engine.SetAllowanceCap(requestCtx, callerFrom(ctx), adminID, request.Cap)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"allowance": wire.FromAllowance(status)})
}

func (handler *Handler) handleAllowanceUsage(ctx *gin.Context) {
	adminID, err := points.NewMemberID(ctx.Param("adminID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	limit, ok := queryInt(ctx, "limit")
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	usage, err := handler.engine.ListAllowanceUsage(requestCtx, callerFrom(ctx), adminID, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"weeks": wire.FromAllowanceUsage(usage)})
}

// queryInt reads an optional integer query parameter, answering 400 itself on malformed input.
func queryInt(ctx *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		invalidPayload(ctx, name+" must be an integer")
		return 0, false
	}
	return value, true
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
