package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"gorm.io/gorm"
)

func (store *Store) CreateTask(ctx context.Context, task points.Task) (points.Task, error) {
	model := toTaskModel(task)
	model.TaskID = 0
	if model.Version == 0 {
		model.Version = 1
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return points.Task{}, wrapStoreError(errorSubjectTask, errorCodeCreate, err)
	}
	created, err := mapTask(model)
	if err != nil {
		return points.Task{}, wrapStoreError(errorSubjectTask, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetTask(ctx context.Context, taskID points.TaskID) (points.Task, error) {
	var model Task
	err := store.db.WithContext(ctx).Where("task_id = ?", taskID.Int64()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.Task{}, wrapStoreError(errorSubjectTask, errorCodeGet, points.ErrTaskNotFound)
		}
		return points.Task{}, wrapStoreError(errorSubjectTask, errorCodeGet, err)
	}
	task, err := mapTask(model)
	if err != nil {
		return points.Task{}, wrapStoreError(errorSubjectTask, errorCodeInvalid, err)
	}
	return task, nil
}

func (store *Store) ListTasks(ctx context.Context, filter points.TaskFilter) ([]points.Task, error) {
	query := store.db.WithContext(ctx).Model(&Task{})
	if filter.Status != 0 {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Portfolio != "" {
		query = query.Where("portfolio = ?", filter.Portfolio)
	}
	if !filter.ClaimantID.IsZero() {
		query = query.Where("claimant_id = ?", filter.ClaimantID.String())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []Task
	if err := query.Order("task_id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTask, errorCodeList, err)
	}
	tasks := make([]points.Task, 0, len(rows))
	for _, row := range rows {
		task, err := mapTask(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTask, errorCodeInvalid, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// UpdateTask rewrites the row only while its version still equals expectedVersion. Two claims
// racing on one open task therefore produce exactly one winner.
func (store *Store) UpdateTask(ctx context.Context, task points.Task, expectedVersion int64) (points.Task, error) {
	model := toTaskModel(task)
	result := store.db.WithContext(ctx).
		Model(&Task{}).
		Where("task_id = ? AND version = ?", task.ID.Int64(), expectedVersion).
		Updates(map[string]interface{}{
			"title":                 model.Title,
			"description":           model.Description,
			"portfolio":             model.Portfolio,
			"points":                model.Points,
			"status":                model.Status,
			"claimant_id":           model.ClaimantID,
			"assignee_id":           model.AssigneeID,
			"submission_text":       model.SubmissionText,
			"submission_url":        model.SubmissionURL,
			"due_date":              model.DueDate,
			"claimed_at":            model.ClaimedAt,
			"submitted_at":          model.SubmittedAt,
			"decided_by":            model.DecidedBy,
			"decided_at":            model.DecidedAt,
			"last_rejection_reason": model.LastRejectionReason,
			"version":               expectedVersion + 1,
		})
	if result.Error != nil {
		return points.Task{}, wrapStoreError(errorSubjectTask, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetTask(ctx, task.ID); err != nil {
			return points.Task{}, err
		}
		return points.Task{}, wrapStoreError(errorSubjectTask, errorCodeConflict, points.ErrTransientConflict)
	}
	return store.GetTask(ctx, task.ID)
}

func (store *Store) InsertTaskDecision(ctx context.Context, decision points.TaskDecision) error {
	model := TaskDecision{
		TaskID:     decision.TaskID.Int64(),
		Outcome:    decision.Outcome.String(),
		ClaimantID: decision.ClaimantID.String(),
		DecidedBy:  decision.DecidedBy.String(),
		Reason:     decision.Reason,
		Points:     decision.Points,
		DecidedAt:  decision.DecidedAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTaskDecision, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTaskDecisions(ctx context.Context, taskID points.TaskID) ([]points.TaskDecision, error) {
	var rows []TaskDecision
	err := store.db.WithContext(ctx).
		Where("task_id = ?", taskID.Int64()).
		Order("decision_id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTaskDecision, errorCodeList, err)
	}
	decisions := make([]points.TaskDecision, 0, len(rows))
	for _, row := range rows {
		outcome, err := points.ParseTaskStatus(row.Outcome)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTaskDecision, errorCodeInvalid, err)
		}
		claimantID, err := optionalMemberID(row.ClaimantID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTaskDecision, errorCodeInvalid, err)
		}
		decidedBy, err := points.NewMemberID(row.DecidedBy)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTaskDecision, errorCodeInvalid, err)
		}
		decisions = append(decisions, points.TaskDecision{
			TaskID:     taskID,
			Outcome:    outcome,
			ClaimantID: claimantID,
			DecidedBy:  decidedBy,
			Reason:     row.Reason,
			Points:     row.Points,
			DecidedAt:  row.DecidedAt.UTC(),
		})
	}
	return decisions, nil
}

func toTaskModel(task points.Task) Task {
	dueDate := ""
	if !task.DueDate.IsZero() {
		dueDate = task.DueDate.String()
	}
	return Task{
		TaskID:              task.ID.Int64(),
		Title:               task.Title,
		Description:         task.Description,
		Portfolio:           task.Portfolio,
		Points:              task.Points.Int64(),
		Status:              task.Status.String(),
		ClaimantID:          task.ClaimantID.String(),
		AssigneeID:          task.AssigneeID.String(),
		SubmissionText:      task.SubmissionText,
		SubmissionURL:       task.SubmissionURL,
		DueDate:             dueDate,
		CreatedBy:           task.CreatedBy.String(),
		CreatedAt:           task.CreatedAt,
		ClaimedAt:           task.ClaimedAt,
		SubmittedAt:         task.SubmittedAt,
		DecidedBy:           task.DecidedBy.String(),
		DecidedAt:           task.DecidedAt,
		LastRejectionReason: task.LastRejectionReason,
		Version:             task.Version,
	}
}

func mapTask(row Task) (points.Task, error) {
	taskID, err := points.NewTaskID(row.TaskID)
	if err != nil {
		return points.Task{}, err
	}
	amount, err := points.NewPositivePoints(row.Points)
	if err != nil {
		return points.Task{}, err
	}
	status, err := points.ParseTaskStatus(row.Status)
	if err != nil {
		return points.Task{}, err
	}
	claimantID, err := optionalMemberID(row.ClaimantID)
	if err != nil {
		return points.Task{}, err
	}
	assigneeID, err := optionalMemberID(row.AssigneeID)
	if err != nil {
		return points.Task{}, err
	}
	createdBy, err := points.NewMemberID(row.CreatedBy)
	if err != nil {
		return points.Task{}, err
	}
	decidedBy, err := optionalMemberID(row.DecidedBy)
	if err != nil {
		return points.Task{}, err
	}
	dueDate, err := optionalDate(row.DueDate)
	if err != nil {
		return points.Task{}, err
	}
	return points.Task{
		ID:                  taskID,
		Title:               row.Title,
		Description:         row.Description,
		Portfolio:           row.Portfolio,
		Points:              amount,
		Status:              status,
		ClaimantID:          claimantID,
		AssigneeID:          assigneeID,
		SubmissionText:      row.SubmissionText,
		SubmissionURL:       row.SubmissionURL,
		DueDate:             dueDate,
		CreatedBy:           createdBy,
		CreatedAt:           row.CreatedAt.UTC(),
		ClaimedAt:           utcPointer(row.ClaimedAt),
		SubmittedAt:         utcPointer(row.SubmittedAt),
		DecidedBy:           decidedBy,
		DecidedAt:           utcPointer(row.DecidedAt),
		LastRejectionReason: row.LastRejectionReason,
		Version:             row.Version,
	}, nil
}

func utcPointer(moment *time.Time) *time.Time {
	if moment == nil {
		return nil
	}
	value := moment.UTC()
	return &value
}
