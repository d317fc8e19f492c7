package handlers

import (
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/models"
	"github.com/shuvam-kayal/Devember-CollabQuest/services"
)

// TaskView is the task shape the frontend renders: raw vote pools are
// collapsed to counts and paired with the thresholds they are racing
// toward, so the client never re-implements quorum math.
type TaskView struct {
	ID                string            `json:"id"`
	Description       string            `json:"description"`
	AssigneeID        string            `json:"assignee_id"`
	Deadline          time.Time         `json:"deadline"`
	Status            models.TaskStatus `json:"status"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	VerificationVotes int               `json:"verification_votes"`
	RequiredVotes     int               `json:"required_votes"`
	ReworkVotes       int               `json:"rework_votes"`
	RequiredRework    int               `json:"required_rework"`
	IsOverdue         bool              `json:"is_overdue"`
	ExtensionActive   bool              `json:"extension_active"`
	ExtensionVotes    int               `json:"extension_votes"`
	ExtensionRequired int               `json:"extension_required"`
	WasExtended       bool              `json:"was_extended"`
}

func newTaskView(team *models.Team, task models.Task, now time.Time) TaskView {
	reviewers := len(team.Members) - 1
	view := TaskView{
		ID:                task.ID.Hex(),
		Description:       task.Description,
		AssigneeID:        task.AssigneeID,
		Deadline:          task.Deadline,
		Status:            task.Status,
		CompletedAt:       task.CompletedAt,
		VerificationVotes: len(task.VerificationVotes),
		RequiredVotes:     services.VerificationThreshold(reviewers),
		ReworkVotes:       len(task.ReworkVotes),
		RequiredRework:    services.ReworkThreshold(reviewers),
		IsOverdue:         task.Status != models.TaskCompleted && now.After(task.Deadline),
		ExtensionRequired: services.MajorityThreshold(len(team.Members)),
		WasExtended:       task.WasExtended,
	}
	if task.Extension != nil && task.Extension.IsActive {
		view.ExtensionActive = true
		view.ExtensionVotes = task.Extension.ApproveCount()
	}
	return view
}

func newTaskViews(team *models.Team, now time.Time) []TaskView {
	views := make([]TaskView, 0, len(team.Tasks))
	for _, task := range team.Tasks {
		views = append(views, newTaskView(team, task, now))
	}
	return views
}
