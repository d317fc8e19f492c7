package services

import (
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProposalTTL is how long any vote stays open before it lapses. Expiry is
// evaluated lazily whenever the team is read or voted on; there is no
// background timer.
const ProposalTTL = 48 * time.Hour

// deadlineWarningWindow is how far ahead of a task deadline the assignee
// gets warned.
const deadlineWarningWindow = 24 * time.Hour

// ExpiredProposal describes one proposal that SweepExpired just closed.
type ExpiredProposal struct {
	Kind        string // "deletion", "completion", "member", "extension"
	InitiatorID string
	RequestID   primitive.ObjectID
	TaskID      primitive.ObjectID
}

// Key identifies the expired proposal within one sweep.
func (e ExpiredProposal) Key() string {
	switch e.Kind {
	case "member":
		return "member:" + e.RequestID.Hex()
	case "extension":
		return "extension:" + e.TaskID.Hex()
	default:
		return e.Kind
	}
}

// SweepExpired closes every proposal on the team older than ProposalTTL
// and reports what it closed. Expired proposals are treated as rejected:
// no side effects are applied and the slot is freed for a new vote.
// Sweeping an already-swept team again returns nothing and changes
// nothing, so a caller may run it as often as it likes.
func SweepExpired(team *models.Team, now time.Time) []ExpiredProposal {
	var expired []ExpiredProposal
	lapsed := func(p *models.Proposal) bool {
		return p.IsActive && now.Sub(p.CreatedAt) > ProposalTTL
	}

	if team.DeletionRequest != nil && lapsed(team.DeletionRequest) {
		expired = append(expired, ExpiredProposal{Kind: "deletion", InitiatorID: team.DeletionRequest.InitiatorID})
		team.DeletionRequest = nil
	}
	if team.CompletionRequest != nil && lapsed(team.CompletionRequest) {
		expired = append(expired, ExpiredProposal{Kind: "completion", InitiatorID: team.CompletionRequest.InitiatorID})
		team.CompletionRequest = nil
	}
	for i := range team.MemberRequests {
		request := &team.MemberRequests[i]
		if lapsed(&request.Proposal) {
			request.IsActive = false
			expired = append(expired, ExpiredProposal{Kind: "member", InitiatorID: request.InitiatorID, RequestID: request.ID})
		}
	}
	for i := range team.Tasks {
		task := &team.Tasks[i]
		if task.Extension != nil && lapsed(&task.Extension.Proposal) {
			expired = append(expired, ExpiredProposal{Kind: "extension", InitiatorID: task.Extension.InitiatorID, TaskID: task.ID})
			task.Extension = nil
		}
	}
	return expired
}

// SweepDeadlineWarnings flags every unfinished task whose deadline is
// inside the warning window and returns the tasks that were newly
// flagged. The flag is cleared when an extension is approved, so a moved
// deadline warns again on its own schedule.
func SweepDeadlineWarnings(team *models.Team, now time.Time) []*models.Task {
	var warned []*models.Task
	for i := range team.Tasks {
		task := &team.Tasks[i]
		if task.Status == models.TaskCompleted || task.DeadlineWarned {
			continue
		}
		if now.After(task.Deadline.Add(-deadlineWarningWindow)) {
			task.DeadlineWarned = true
			warned = append(warned, task)
		}
	}
	return warned
}
