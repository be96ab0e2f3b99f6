package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/wire"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/gin-gonic/gin"
)

type upsertRewardRequest struct {
	Label     string `json:"label"`
	Cost      int64  `json:"cost"`
	Available *bool  `json:"available"`
}

type upsertRateCardRequest struct {
	Name   string `json:"name"`
	Points int64  `json:"points"`
}

type redemptionRequest struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

func (handler *Handler) handleListRewards(ctx *gin.Context) {
	includeUnavailable, err := strconv.ParseBool(defaultString(ctx.Query("include_unavailable"), "false"))
	if err != nil {
		invalidPayload(ctx, "include_unavailable must be a boolean")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	rewards, err := handler.engine.ListRewards(requestCtx, includeUnavailable)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rewards": wire.FromRewards(rewards)})
}

func (handler *Handler) handleUpsertReward(ctx *gin.Context) {
	code, err := points.NewRewardCode(ctx.Param("code"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request upsertRewardRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	cost, err := points.NewPositivePoints(request.Cost)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	available := true
	if request.Available != nil {
		available = *request.Available
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reward, err := handler.engine.UpsertReward(requestCtx, callerFrom(ctx), points.Reward{
		Code:      code,
		Label:     request.Label,
		Cost:      cost,
		Available: available,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reward": wire.FromReward(reward)})
}

func (handler *Handler) handleListRateCard(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.engine.ListRateCard(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rate_card": wire.FromRateCard(entries)})
}

func (handler *Handler) handleUpsertRateCard(ctx *gin.Context) {
	alias, err := points.NewRateCardAlias(ctx.Param("alias"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request upsertRateCardRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	amount, err := points.NewPositivePoints(request.Points)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entry, err := handler.engine.UpsertRateCardEntry(requestCtx, callerFrom(ctx), points.RateCardEntry{
		Alias:  alias,
		Name:   request.Name,
		Points: amount,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": wire.FromRateCardEntry(entry)})
}

func (handler *Handler) handleListRedemptions(ctx *gin.Context) {
	var filter points.RedemptionFilter
	if rawMember := ctx.Query("member_id"); rawMember != "" {
		memberID, err := points.NewMemberID(rawMember)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.MemberID = memberID
	}
	if rawStatus := strings.TrimSpace(ctx.Query("status")); rawStatus != "" {
		status, err := points.ParseRedemptionStatus(rawStatus)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = status
	}
	limit, ok := queryInt(ctx, "limit")
	if !ok {
		return
	}
	filter.Limit = limit
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	redemptions, err := handler.engine.ListRedemptions(requestCtx, callerFrom(ctx), filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"redemptions": wire.FromRedemptions(redemptions)})
}

func (handler *Handler) handleRequestReward(ctx *gin.Context) {
	var request redemptionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	code, err := points.NewRewardCode(request.Code)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.RequestReward(requestCtx, callerFrom(ctx), points.RedemptionRequest{
		Code:     code,
		Quantity: request.Quantity,
		Notes:    request.Notes,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, wire.FromRedemptionResult(result))
}

func (handler *Handler) handleFulfillRedemption(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.FulfillRedemption(requestCtx, callerFrom(ctx), ctx.Param("redemptionID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.FromRedemptionResult(result))
}

func (handler *Handler) handleCancelRedemption(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.CancelRedemption(requestCtx, callerFrom(ctx), ctx.Param("redemptionID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.FromRedemptionResult(result))
}
