package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReview    TaskStatus = "review"
	TaskRework    TaskStatus = "rework"
	TaskCompleted TaskStatus = "completed"
)

// ExtensionProposal is the deadline-extension sub-vote attached to a task.
// It resolves on a simple majority of all current members.
type ExtensionProposal struct {
	RequestedDeadline time.Time `bson:"requested_deadline" json:"requested_deadline"`
	Proposal          `bson:",inline"`
}

// Task is a unit of work owned by a team. Verification and rework votes
// are live simultaneously while the task is in review; whichever pool
// reaches its threshold first resolves the task.
type Task struct {
	ID                primitive.ObjectID `bson:"id" json:"id"`
	Description       string             `bson:"description" json:"description"`
	AssigneeID        string             `bson:"assignee_id" json:"assignee_id"`
	Deadline          time.Time          `bson:"deadline" json:"deadline"`
	Status            TaskStatus         `bson:"status" json:"status"`
	CompletedAt       *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	VerificationVotes []string           `bson:"verification_votes" json:"verification_votes"`
	ReworkVotes       []string           `bson:"rework_votes" json:"rework_votes"`
	Extension         *ExtensionProposal `bson:"extension,omitempty" json:"extension,omitempty"`
	WasExtended       bool               `bson:"was_extended" json:"was_extended"`
	DeadlineWarned    bool               `bson:"deadline_warned" json:"deadline_warned"`
}

// HasReviewed checks both vote pools, so one reviewer cannot vote to
// verify and to rework the same submission.
func (t *Task) HasReviewed(userID string) bool {
	for _, id := range t.VerificationVotes {
		if id == userID {
			return true
		}
	}
	for _, id := range t.ReworkVotes {
		if id == userID {
			return true
		}
	}
	return false
}
