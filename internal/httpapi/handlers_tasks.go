package httpapi

import (
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/wire"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/gin-gonic/gin"
)

const taskStatusAll = "all"

type submitTaskRequest struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type rejectTaskRequest struct {
	Reason string `json:"reason"`
}

type awardTaskRequest struct {
	MemberID string `json:"member_id"`
}

// handleListTasks lists open tasks unless status names another state or "all".
func (handler *Handler) handleListTasks(ctx *gin.Context) {
	filter := points.TaskFilter{Portfolio: strings.TrimSpace(ctx.Query("portfolio"))}
	rawStatus := strings.TrimSpace(ctx.Query("status"))
	switch strings.ToLower(rawStatus) {
	case "":
		filter.Status = points.TaskStatusOpen
	case taskStatusAll:
	default:
		status, err := points.ParseTaskStatus(rawStatus)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = status
	}
	if rawClaimant := ctx.Query("claimant_id"); rawClaimant != "" {
		claimantID, err := points.NewMemberID(rawClaimant)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.ClaimantID = claimantID
	}
	limit, ok := queryInt(ctx, "limit")
	if !ok {
		return
	}
	filter.Limit = limit

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	var (
		tasks []points.Task
		err   error
	)
	if filter.Status == points.TaskStatusOpen && filter.ClaimantID.IsZero() && filter.Limit == 0 {
		tasks, err = handler.engine.ListOpenTasks(requestCtx, filter.Portfolio)
	} else {
		tasks, err = handler.engine.ListTasks(requestCtx, filter)
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"tasks": wire.FromTasks(tasks)})
}

func (handler *Handler) handleCreateTask(ctx *gin.Context) {
	var request wire.TaskInput
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	newTask, err := request.Request(handler.engine.Location())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	task, err := handler.engine.CreateTask(requestCtx, callerFrom(ctx), newTask)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"task": wire.FromTask(task)})
}

func (handler *Handler) handleGetTask(ctx *gin.Context) {
	taskID, err := points.ParseTaskID(ctx.Param("taskID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	task, err := handler.engine.GetTask(requestCtx, taskID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": wire.FromTask(task)})
}

func (handler *Handler) handleTaskDecisions(ctx *gin.Context) {
	taskID, err := points.ParseTaskID(ctx.Param("taskID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	decisions, err := handler.engine.ListTaskDecisions(requestCtx, taskID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"decisions": wire.FromTaskDecisions(decisions)})
}

func (handler *Handler) handleClaimTask(ctx *gin.Context) {
	taskID, err := points.ParseTaskID(ctx.Param("taskID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	task, err := handler.engine.ClaimTask(requestCtx, callerFrom(ctx), taskID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": wire.FromTask(task)})
}

func (handler *Handler) handleSubmitTask(ctx *gin.Context) {
	taskID, err := points.ParseTaskID(ctx.Param("taskID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request submitTaskRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	task, err := handler.engine.SubmitTask(requestCtx, callerFrom(ctx), taskID, points.TaskSubmission{Text: request.Text, URL: request.URL})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": wire.FromTask(task)})
}

func (handler *Handler) handleApproveTask(ctx *gin.Context) {
	taskID, err := points.ParseTaskID(ctx.Param("taskID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payout, err := handler.engine.ApproveTask(requestCtx, callerFrom(ctx), taskID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.FromTaskPayout(payout))
}

func (handler *Handler) handleRejectTask(ctx *gin.Context) {
	taskID, err := points.ParseTaskID(ctx.Param("taskID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request rejectTaskRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	task, err := handler.engine.RejectTask(requestCtx, callerFrom(ctx), taskID, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": wire.FromTask(task)})
}

func (handler *Handler) handleAwardTask(ctx *gin.Context) {
	taskID, err := points.ParseTaskID(ctx.Param("taskID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request awardTaskRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	memberID, err := points.NewMemberID(request.MemberID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payout, err := handler.engine.AwardTask(requestCtx, callerFrom(ctx), taskID, memberID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.FromTaskPayout(payout))
}
