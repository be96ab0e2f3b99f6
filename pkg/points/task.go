package points

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskID identifies a task.
type TaskID int64

// ParseTaskID parses a positive integer id, tolerating a leading '#'.
func ParseTaskID(raw string) (TaskID, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTaskID, raw)
	}
	return TaskID(value), nil
}

// NewTaskID validates a numeric id.
func NewTaskID(raw int64) (TaskID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidTaskID)
	}
	return TaskID(raw), nil
}

// String formats the id.
func (id TaskID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 exposes the raw id.
func (id TaskID) Int64() int64 {
	return int64(id)
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus uint8

const (
	TaskStatusOpen TaskStatus = iota + 1
	TaskStatusClaimed
	TaskStatusSubmitted
	TaskStatusApproved
	TaskStatusRejected
)

var taskStatusLabels = map[TaskStatus]string{
	TaskStatusOpen:      "open",
	TaskStatusClaimed:   "claimed",
	TaskStatusSubmitted: "submitted",
	TaskStatusApproved:  "approved",
	TaskStatusRejected:  "rejected",
}

// ParseTaskStatus validates a status label.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for status, label := range taskStatusLabels {
		if label == normalized {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTaskStatus, raw)
}

// String returns the status label.
func (status TaskStatus) String() string {
	if label, ok := taskStatusLabels[status]; ok {
		return label
	}
	return "unknown"
}

// TaskAction names a workflow step.
type TaskAction uint8

const (
	TaskActionClaim TaskAction = iota + 1
	TaskActionSubmit
	TaskActionApprove
	TaskActionReject
	TaskActionAward
)

type taskTransition struct {
	from TaskStatus
	to   TaskStatus
}

// Rejection returns the task to open; the rejected outcome lives in the decision log.
var taskTransitions = map[TaskAction]taskTransition{
	TaskActionClaim:   {from: TaskStatusOpen, to: TaskStatusClaimed},
	TaskActionSubmit:  {from: TaskStatusClaimed, to: TaskStatusSubmitted},
	TaskActionApprove: {from: TaskStatusSubmitted, to: TaskStatusApproved},
	TaskActionReject:  {from: TaskStatusSubmitted, to: TaskStatusOpen},
	TaskActionAward:   {from: TaskStatusOpen, to: TaskStatusApproved},
}

// nextTaskStatus returns the target state of action from current, or ErrInvalidState.
func nextTaskStatus(action TaskAction, current TaskStatus) (TaskStatus, error) {
	transition, ok := taskTransitions[action]
	if !ok {
		return 0, fmt.Errorf("%w: unknown task action %d", ErrInvalidState, action)
	}
	if transition.from != current {
		return 0, fmt.Errorf("%w: task is %s, expected %s", ErrInvalidState, current, transition.from)
	}
	return transition.to, nil
}

// Task is a unit of community work that pays out points on approval.
type Task struct {
	ID                  TaskID
	Title               string
	Description         string
	Portfolio           string
	Points              PositivePoints
	Status              TaskStatus
	ClaimantID          MemberID
	AssigneeID          MemberID
	SubmissionText      string
	SubmissionURL       string
	DueDate             Date
	CreatedBy           MemberID
	CreatedAt           time.Time
	ClaimedAt           *time.Time
	SubmittedAt         *time.Time
	DecidedBy           MemberID
	DecidedAt           *time.Time
	LastRejectionReason string
	Version             int64
}

// NewTask describes a task to create.
type NewTask struct {
	Title       string
	Description string
	Portfolio   string
	Points      PositivePoints
	AssigneeID  MemberID
	DueDate     Date
}

// TaskSubmission is the claimant's evidence of completion.
type TaskSubmission struct {
	Text string
	URL  string
}

// TaskFilter narrows task listings. Zero values match everything.
type TaskFilter struct {
	Status     TaskStatus
	Portfolio  string
	ClaimantID MemberID
	Limit      int
}

// TaskDecision records an approval or rejection.
type TaskDecision struct {
	TaskID     TaskID
	Outcome    TaskStatus
	ClaimantID MemberID
	DecidedBy  MemberID
	Reason     string
	Points     int64
	DecidedAt  time.Time
}
