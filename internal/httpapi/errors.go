package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal error"

var statusByKind = map[points.ErrorKind]int{
	points.KindInvalidArgument:     http.StatusBadRequest,
	points.KindNotFound:            http.StatusNotFound,
	points.KindInvalidState:        http.StatusConflict,
	points.KindInsufficientBalance: http.StatusUnprocessableEntity,
	points.KindNoCapacity:          http.StatusConflict,
	points.KindAllowanceExceeded:   http.StatusUnprocessableEntity,
	points.KindPermissionDenied:    http.StatusForbidden,
	points.KindTransientConflict:   http.StatusServiceUnavailable,
	points.KindDuplicateRequest:    http.StatusConflict,
	points.KindInternal:            http.StatusInternalServerError,
}

// StatusFor returns the HTTP status of an engine error kind.
func StatusFor(kind points.ErrorKind) int {
	if statusCode, ok := statusByKind[kind]; ok {
		return statusCode
	}
	return http.StatusInternalServerError
}

func (handler *Handler) respondError(ctx *gin.Context, err error) {
	statusCode, body := handler.renderError(ctx, err)
	ctx.JSON(statusCode, body)
}

func (handler *Handler) abortWithError(ctx *gin.Context, err error) {
	statusCode, body := handler.renderError(ctx, err)
	ctx.AbortWithStatusJSON(statusCode, body)
}

func (handler *Handler) renderError(ctx *gin.Context, err error) (int, gin.H) {
	detail := points.Describe(err)
	if detail.Kind == points.KindInternal {
		handler.logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
		return http.StatusInternalServerError, errorResponse(string(detail.Kind), detail.Code, internalErrorMessage, nil)
	}
	body := errorResponse(string(detail.Kind), detail.Code, detail.Message, detail.Details)
	if detail.Status != "" {
		body["error"].(gin.H)["status"] = detail.Status
	}
	return StatusFor(detail.Kind), body
}

func errorResponse(kind string, code string, message string, details map[string]int64) gin.H {
	payload := gin.H{
		"kind":    kind,
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		payload["details"] = details
	}
	return gin.H{"error": payload}
}

func invalidPayload(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, errorResponse(string(points.KindInvalidArgument), "invalid_payload", message, nil))
}
