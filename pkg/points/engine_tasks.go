package points

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TaskPayout is the outcome of approving or directly awarding a task.
type TaskPayout struct {
	Task    Task
	Entry   Entry
	Balance Balance
}

// CreateTask opens a new task.
func (engine *Engine) CreateTask(ctx context.Context, caller Caller, request NewTask) (Task, error) {
	var created Task
	operationError := engine.createTask(ctx, caller, request, &created)
	engine.logOperation(ctx, OperationLog{
		Operation: operationCreateTask,
		ActorID:   caller.MemberID,
		MemberID:  request.AssigneeID,
		Subject:   created.ID.String(),
		Amount:    request.Points.Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return Task{}, operationError
	}
	return created, nil
}

func (engine *Engine) createTask(ctx context.Context, caller Caller, request NewTask, created *Task) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	title := strings.TrimSpace(request.Title)
	if title == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidTaskTitle)
	}
	if utf8.RuneCountInString(title) > maxTaskTitleLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidTaskTitle, maxTaskTitleLength)
	}
	if _, err := NewPositivePoints(request.Points.Int64()); err != nil {
		return err
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		if !request.AssigneeID.IsZero() {
			if _, err := txStore.GetMember(ctx, request.AssigneeID); err != nil {
				return err
			}
		}
		task, err := txStore.CreateTask(ctx, Task{
			Title:       title,
			Description: strings.TrimSpace(request.Description),
			Portfolio:   strings.TrimSpace(request.Portfolio),
			Points:      request.Points,
			Status:      TaskStatusOpen,
			AssigneeID:  request.AssigneeID,
			DueDate:     request.DueDate,
			CreatedBy:   caller.MemberID,
			CreatedAt:   engine.now(),
			Version:     1,
		})
		if err != nil {
			return err
		}
		*created = task
		return nil
	})
}

// GetTask returns one task.
func (engine *Engine) GetTask(ctx context.Context, taskID TaskID) (Task, error) {
	return engine.store.GetTask(ctx, taskID)
}

// ListTasks returns tasks matching filter, oldest first.
func (engine *Engine) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	filter.Portfolio = strings.TrimSpace(filter.Portfolio)
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: must not be negative", ErrInvalidLimit)
	}
	return engine.store.ListTasks(ctx, filter)
}

// ListOpenTasks returns the tasks that can be claimed, optionally within one portfolio.
func (engine *Engine) ListOpenTasks(ctx context.Context, portfolio string) ([]Task, error) {
	return engine.ListTasks(ctx, TaskFilter{Status: TaskStatusOpen, Portfolio: portfolio})
}

// ListTaskDecisions returns the approval and rejection history of a task.
func (engine *Engine) ListTaskDecisions(ctx context.Context, taskID TaskID) ([]TaskDecision, error) {
	if _, err := engine.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return engine.store.ListTaskDecisions(ctx, taskID)
}

// ClaimTask assigns an open task to the caller. Of concurrent claimants exactly one wins;
// the others observe the task's new status.
func (engine *Engine) ClaimTask(ctx context.Context, caller Caller, taskID TaskID) (Task, error) {
	var claimed Task
	operationError := engine.claimTask(ctx, caller, taskID, &claimed)
	engine.logOperation(ctx, OperationLog{
		Operation: operationClaimTask,
		ActorID:   caller.MemberID,
		MemberID:  caller.MemberID,
		Subject:   taskID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return Task{}, operationError
	}
	return claimed, nil
}

func (engine *Engine) claimTask(ctx context.Context, caller Caller, taskID TaskID, claimed *Task) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		if _, err := txStore.GetMember(ctx, caller.MemberID); err != nil {
			return err
		}
		task, err := txStore.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != TaskStatusOpen {
			return &TaskNotOpenError{TaskID: task.ID, Status: task.Status}
		}
		if !task.AssigneeID.IsZero() && task.AssigneeID != caller.MemberID {
			return fmt.Errorf("%w: task %s is reserved for %s", ErrNotAssigned, task.ID, task.AssigneeID)
		}
		next, err := nextTaskStatus(TaskActionClaim, task.Status)
		if err != nil {
			return err
		}
		now := engine.now()
		expectedVersion := task.Version
		task.Status = next
		task.ClaimantID = caller.MemberID
		task.ClaimedAt = &now
		updated, err := txStore.UpdateTask(ctx, task, expectedVersion)
		if err != nil {
			return err
		}
		*claimed = updated
		return nil
	})
}

// SubmitTask records the claimant's completion evidence.
func (engine *Engine) SubmitTask(ctx context.Context, caller Caller, taskID TaskID, submission TaskSubmission) (Task, error) {
	var submitted Task
	operationError := engine.submitTask(ctx, caller, taskID, submission, &submitted)
	engine.logOperation(ctx, OperationLog{
		Operation: operationSubmitTask,
		ActorID:   caller.MemberID,
		MemberID:  caller.MemberID,
		Subject:   taskID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return Task{}, operationError
	}
	return submitted, nil
}

func (engine *Engine) submitTask(ctx context.Context, caller Caller, taskID TaskID, submission TaskSubmission, submitted *Task) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if strings.TrimSpace(submission.Text) == "" && strings.TrimSpace(submission.URL) == "" {
		return fmt.Errorf("%w: text or url is required", ErrInvalidSubmission)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		task, err := txStore.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status == TaskStatusClaimed && task.ClaimantID != caller.MemberID {
			return fmt.Errorf("%w: task %s", ErrNotClaimant, task.ID)
		}
		next, err := nextTaskStatus(TaskActionSubmit, task.Status)
		if err != nil {
			return err
		}
		now := engine.now()
		expectedVersion := task.Version
		task.Status = next
		task.SubmissionText = strings.TrimSpace(submission.Text)
		task.SubmissionURL = strings.TrimSpace(submission.URL)
		task.SubmittedAt = &now
		updated, err := txStore.UpdateTask(ctx, task, expectedVersion)
		if err != nil {
			return err
		}
		*submitted = updated
		return nil
	})
}

// ApproveTask closes a submitted task and pays its points to the claimant.
func (engine *Engine) ApproveTask(ctx context.Context, caller Caller, taskID TaskID) (TaskPayout, error) {
	var payout TaskPayout
	operationError := engine.decideTask(ctx, caller, taskID, TaskActionApprove, "", &payout)
	engine.logOperation(ctx, OperationLog{
		Operation: operationApproveTask,
		ActorID:   caller.MemberID,
		MemberID:  payout.Task.ClaimantID,
		Subject:   taskID.String(),
		Amount:    payout.Entry.Delta,
		Reference: payout.Entry.ID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return TaskPayout{}, operationError
	}
	return payout, nil
}

// RejectTask sends a submitted task back to open, clearing its claimant.
func (engine *Engine) RejectTask(ctx context.Context, caller Caller, taskID TaskID, reason string) (Task, error) {
	var outcome TaskPayout
	operationError := engine.decideTask(ctx, caller, taskID, TaskActionReject, reason, &outcome)
	engine.logOperation(ctx, OperationLog{
		Operation: operationRejectTask,
		ActorID:   caller.MemberID,
		Subject:   taskID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return Task{}, operationError
	}
	return outcome.Task, nil
}

func (engine *Engine) decideTask(ctx context.Context, caller Caller, taskID TaskID, action TaskAction, reason string, outcome *TaskPayout) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		task, err := txStore.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		next, err := nextTaskStatus(action, task.Status)
		if err != nil {
			return err
		}
		if action == TaskActionApprove && task.ClaimantID == caller.MemberID {
			return fmt.Errorf("%w: admins cannot approve their own work", ErrPermissionDenied)
		}
		now := engine.now()
		expectedVersion := task.Version
		claimantID := task.ClaimantID
		task.Status = next
		task.DecidedBy = caller.MemberID
		task.DecidedAt = &now
		decision := TaskDecision{
			TaskID:     task.ID,
			Outcome:    TaskStatusApproved,
			ClaimantID: claimantID,
			DecidedBy:  caller.MemberID,
			Points:     task.Points.Int64(),
			DecidedAt:  now,
		}
		if action == TaskActionReject {
			task.LastRejectionReason = strings.TrimSpace(reason)
			task.ClaimantID = MemberID{}
			task.ClaimedAt = nil
			task.SubmissionText = ""
			task.SubmissionURL = ""
			task.SubmittedAt = nil
			decision.Outcome = TaskStatusRejected
			decision.Reason = task.LastRejectionReason
			decision.Points = 0
		}
		updated, err := txStore.UpdateTask(ctx, task, expectedVersion)
		if err != nil {
			return err
		}
		if err := txStore.InsertTaskDecision(ctx, decision); err != nil {
			return err
		}
		*outcome = TaskPayout{Task: updated}
		if action != TaskActionApprove {
			return nil
		}
		return engine.payTask(ctx, txStore, caller, updated, claimantID, outcome)
	})
}

// AwardTask closes an open task directly in favour of memberID and pays it out.
func (engine *Engine) AwardTask(ctx context.Context, caller Caller, taskID TaskID, memberID MemberID) (TaskPayout, error) {
	var payout TaskPayout
	operationError := engine.awardTask(ctx, caller, taskID, memberID, &payout)
	engine.logOperation(ctx, OperationLog{
		Operation: operationAwardTask,
		ActorID:   caller.MemberID,
		MemberID:  memberID,
		Subject:   taskID.String(),
		Amount:    payout.Entry.Delta,
		Reference: payout.Entry.ID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return TaskPayout{}, operationError
	}
	return payout, nil
}

func (engine *Engine) awardTask(ctx context.Context, caller Caller, taskID TaskID, memberID MemberID, payout *TaskPayout) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if memberID.IsZero() {
		return fmt.Errorf("%w: award target is required", ErrInvalidMemberID)
	}
	if memberID == caller.MemberID {
		return fmt.Errorf("%w: admins cannot award tasks to themselves", ErrPermissionDenied)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		task, err := txStore.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != TaskStatusOpen {
			return &TaskNotOpenError{TaskID: task.ID, Status: task.Status}
		}
		if !task.AssigneeID.IsZero() && task.AssigneeID != memberID {
			return fmt.Errorf("%w: task %s is reserved for %s", ErrNotAssigned, task.ID, task.AssigneeID)
		}
		next, err := nextTaskStatus(TaskActionAward, task.Status)
		if err != nil {
			return err
		}
		now := engine.now()
		expectedVersion := task.Version
		task.Status = next
		task.ClaimantID = memberID
		task.ClaimedAt = &now
		task.DecidedBy = caller.MemberID
		task.DecidedAt = &now
		updated, err := txStore.UpdateTask(ctx, task, expectedVersion)
		if err != nil {
			return err
		}
		if err := txStore.InsertTaskDecision(ctx, TaskDecision{
			TaskID:     task.ID,
			Outcome:    TaskStatusApproved,
			ClaimantID: memberID,
			DecidedBy:  caller.MemberID,
			Points:     task.Points.Int64(),
			DecidedAt:  now,
		}); err != nil {
			return err
		}
		*payout = TaskPayout{Task: updated}
		return engine.payTask(ctx, txStore, caller, updated, memberID, payout)
	})
}

func (engine *Engine) payTask(ctx context.Context, txStore Store, caller Caller, task Task, claimantID MemberID, payout *TaskPayout) error {
	idempotencyKey, err := deriveIdempotencyKey(idempotencyPrefixTaskPayout, task.ID.String())
	if err != nil {
		return err
	}
	reason, err := NewReason("Task #" + task.ID.String() + ": " + task.Title)
	if err != nil {
		return err
	}
	entry, member, err := engine.applyEntry(ctx, txStore, EntryInput{
		MemberID:       claimantID,
		Delta:          task.Points.Int64(),
		Reason:         reason,
		Category:       CategoryTaskPayout,
		ActorID:        caller.MemberID,
		Reference:      "task:" + task.ID.String(),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return err
	}
	payout.Entry = entry
	payout.Balance = balanceOf(member)
	return nil
}
