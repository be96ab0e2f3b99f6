// Package httpapi exposes the points engine over HTTP behind tauth session cookies.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey      = "auth_claims"
	callerContextKey      = "points_caller"
	defaultRequestTimeout = 5 * time.Second
)

// Config controls routing concerns that live outside the engine.
type Config struct {
	AllowedOrigins []string
	AdminIDs       []string
	AdminRole      string
	RequestTimeout time.Duration
}

// Handler binds HTTP requests to engine operations.
type Handler struct {
	logger     *zap.Logger
	engine     *points.Engine
	cfg        Config
	adminIDs   map[string]struct{}
	registered sync.Map
}

// NewHandler builds a handler. A nil logger discards output.
func NewHandler(cfg Config, engine *points.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	adminIDs := make(map[string]struct{}, len(cfg.AdminIDs))
	for _, rawID := range cfg.AdminIDs {
		if memberID, err := points.NewMemberID(rawID); err == nil {
			adminIDs[memberID.String()] = struct{}{}
		}
	}
	return &Handler{
		logger:   logger.Named("http"),
		engine:   engine,
		cfg:      cfg,
		adminIDs: adminIDs,
	}
}

// NewRouter wires the health check and the authenticated /api/v1 routes.
func NewRouter(handler *Handler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(handler.cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     handler.cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(validator.GinMiddleware(claimsContextKey))
	api.Use(handler.resolveCaller)

	api.GET("/session", handler.handleSession)

	api.GET("/balance", handler.handleBalance)
	api.GET("/members/:memberID/balance", handler.handleMemberBalance)
	api.GET("/history", handler.handleHistory)
	api.POST("/awards", handler.handleAward)
	api.POST("/deductions", handler.handleDeduct)
	api.POST("/reconcile", handler.handleReconcile)

	api.GET("/allowance", handler.handleAllowance)
	api.PUT("/allowances/:adminID", handler.handleSetAllowanceCap)
	api.GET("/allowances/:adminID/weeks", handler.handleAllowanceUsage)

	api.GET("/coworking", handler.handleCheckCoworking)
	api.GET("/coworking/bookings", handler.handleListBookings)
	api.POST("/coworking/bookings", handler.handleBookCoworking)
	api.DELETE("/coworking/bookings/:date", handler.handleCancelCoworking)
	api.DELETE("/bookings/:bookingID", handler.handleCancelBooking)
	api.GET("/coworking/capacity/:date", handler.handleListCapacityOverrides)
	api.PUT("/coworking/capacity/:date", handler.handleSetCapacityOverride)

	api.GET("/tasks", handler.handleListTasks)
	api.POST("/tasks", handler.handleCreateTask)
	api.GET("/tasks/:taskID", handler.handleGetTask)
	api.GET("/tasks/:taskID/decisions", handler.handleTaskDecisions)
	api.POST("/tasks/:taskID/claim", handler.handleClaimTask)
	api.POST("/tasks/:taskID/submit", handler.handleSubmitTask)
	api.POST("/tasks/:taskID/approve", handler.handleApproveTask)
	api.POST("/tasks/:taskID/reject", handler.handleRejectTask)
	api.POST("/tasks/:taskID/award", handler.handleAwardTask)

	api.GET("/rewards", handler.handleListRewards)
	api.PUT("/rewards/:code", handler.handleUpsertReward)
	api.GET("/rate-card", handler.handleListRateCard)
	api.PUT("/rate-card/:alias", handler.handleUpsertRateCard)
	api.GET("/redemptions", handler.handleListRedemptions)
	api.POST("/redemptions", handler.handleRequestReward)
	api.POST("/redemptions/:redemptionID/fulfill", handler.handleFulfillRedemption)
	api.POST("/redemptions/:redemptionID/cancel", handler.handleCancelRedemption)

	return router
}

// resolveCaller turns session claims into a registered caller.
func (handler *Handler) resolveCaller(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "unauthorized", "missing session", nil))
		return
	}
	caller, err := points.NewCaller(claims.GetUserID(), claims.GetUserDisplayName(), handler.isAdmin(claims))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid_session", "session has no usable user id", nil))
		return
	}
	if err := handler.ensureRegistered(ctx.Request.Context(), caller); err != nil {
		handler.abortWithError(ctx, err)
		return
	}
	ctx.Set(callerContextKey, caller)
	ctx.Next()
}

// ensureRegistered upserts the member once per process, and again when the display name changes.
func (handler *Handler) ensureRegistered(ctx context.Context, caller points.Caller) error {
	if known, ok := handler.registered.Load(caller.MemberID.String()); ok && known.(string) == caller.DisplayName {
		return nil
	}
	requestCtx, cancel := context.WithTimeout(ctx, handler.cfg.RequestTimeout)
	defer cancel()
	if _, err := handler.engine.RegisterMember(requestCtx, caller); err != nil {
		return err
	}
	handler.registered.Store(caller.MemberID.String(), caller.DisplayName)
	return nil
}

func (handler *Handler) isAdmin(claims *sessionvalidator.Claims) bool {
	if memberID, err := points.NewMemberID(claims.GetUserID()); err == nil {
		if _, listed := handler.adminIDs[memberID.String()]; listed {
			return true
		}
	}
	role := strings.TrimSpace(handler.cfg.AdminRole)
	if role == "" {
		return false
	}
	for _, claimedRole := range claims.GetUserRoles() {
		if strings.EqualFold(strings.TrimSpace(claimedRole), role) {
			return true
		}
	}
	return false
}

func (handler *Handler) handleSession(ctx *gin.Context) {
	caller := callerFrom(ctx)
	ctx.JSON(http.StatusOK, gin.H{
		"member_id":    caller.MemberID.String(),
		"display_name": caller.DisplayName,
		"admin":        caller.Admin,
	})
}

func (handler *Handler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func callerFrom(ctx *gin.Context) points.Caller {
	callerValue, _ := ctx.Get(callerContextKey)
	caller, _ := callerValue.(points.Caller)
	return caller
}
