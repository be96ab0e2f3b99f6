package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/wire"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/gin-gonic/gin"
)

type bookingRequest struct {
	Date string `json:"date"`
}

type capacityRequest struct {
	Capacity int `json:"capacity"`
}

// handleCheckCoworking answers for one day, or for a window when days is given.
func (handler *Handler) handleCheckCoworking(ctx *gin.Context) {
	date := handler.engine.Today()
	if rawDate := ctx.Query("date"); rawDate != "" {
		parsed, err := points.ParseDate(rawDate, handler.engine.Location())
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		date = parsed
	}
	days, ok := queryInt(ctx, "days")
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if days == 0 {
		availability, err := handler.engine.CheckCoworking(requestCtx, date)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"availability": wire.FromAvailability(availability)})
		return
	}
	window, err := handler.engine.CheckCoworkingRange(requestCtx, date, days)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"days": wire.FromAvailabilities(window)})
}

func (handler *Handler) handleListBookings(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	bookings, err := handler.engine.ListMyBookings(requestCtx, callerFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": wire.FromBookings(bookings)})
}

func (handler *Handler) handleBookCoworking(ctx *gin.Context) {
	var request bookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	date, err := points.ParseDate(request.Date, handler.engine.Location())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.BookCoworking(requestCtx, callerFrom(ctx), date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, wire.FromBookingResult(result))
}

func (handler *Handler) handleCancelCoworking(ctx *gin.Context) {
	date, err := points.ParseDate(ctx.Param("date"), handler.engine.Location())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.CancelCoworking(requestCtx, callerFrom(ctx), date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.FromBookingResult(result))
}

func (handler *Handler) handleCancelBooking(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.engine.CancelBookingByID(requestCtx, callerFrom(ctx), ctx.Param("bookingID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.FromBookingResult(result))
}

func (handler *Handler) handleListCapacityOverrides(ctx *gin.Context) {
	date, err := points.ParseDate(ctx.Param("date"), handler.engine.Location())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	overrides, err := handler.engine.ListCapacityOverrides(requestCtx, callerFrom(ctx), date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"overrides": wire.FromCapacityOverrides(overrides)})
}

func (handler *Handler) handleSetCapacityOverride(ctx *gin.Context) {
	date, err := points.ParseDate(ctx.Param("date"), handler.engine.Location())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request capacityRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	availability, err := handler.engine.SetCapacityOverride(requestCtx, callerFrom(ctx), date, request.Capacity)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"availability": wire.FromAvailability(availability)})
}
