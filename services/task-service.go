package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/logging"
	"github.com/shuvam-kayal/Devember-CollabQuest/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskService drives the work-item pipeline: assign, submit, peer
// verification or rework, and the deadline-extension sub-vote. It runs
// through the same serialized aggregate mutation as team governance, but
// task votes are scoped per task and never take the team-wide governance
// lock.
type TaskService struct {
	teams *TeamService
}

func NewTaskService(teams *TeamService) *TaskService {
	return &TaskService{teams: teams}
}

// reviewerCount is the verification/rework denominator: every member
// except the assignee, consistent with the rule that the assignee never
// votes on their own task.
func reviewerCount(team *models.Team) int {
	return len(team.Members) - 1
}

// CreateTask appends a pending task. Leader only; the team must have been
// started (planning rejects tasks, completed rejects everything).
func (s *TaskService) CreateTask(ctx context.Context, teamID, actorID, description, assigneeID string, deadline time.Time) (*models.Task, error) {
	var created *models.Task
	_, err := s.teams.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if actorID != team.LeaderID {
			return fmt.Errorf("only the leader can create tasks: %w", ErrForbidden)
		}
		if team.Status != models.TeamActive {
			return fmt.Errorf("tasks require an active project (status is %s): %w", team.Status, ErrConflict)
		}
		if !team.IsMember(assigneeID) {
			return fmt.Errorf("assignee %s is not a team member: %w", assigneeID, ErrInvalidState)
		}
		if description == "" {
			return fmt.Errorf("task description is required: %w", ErrInvalidState)
		}
		if !deadline.After(s.teams.now()) {
			return fmt.Errorf("task deadline must be in the future: %w", ErrInvalidState)
		}

		task := models.Task{
			ID:                primitive.NewObjectID(),
			Description:       description,
			AssigneeID:        assigneeID,
			Deadline:          deadline,
			Status:            models.TaskPending,
			VerificationVotes: []string{},
			ReworkVotes:       []string{},
		}
		team.Tasks = append(team.Tasks, task)
		created = &team.Tasks[len(team.Tasks)-1]

		if assigneeID != actorID {
			m.notify(assigneeID, actorID, fmt.Sprintf("You were assigned a task in team %q: %s", team.Name, description), "task_assigned", task.ID.Hex())
		}
		m.outcome = OutcomeInitiated
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %s created in team %s for user %s", created.ID.Hex(), teamID, assigneeID)
	taskCopy := *created
	return &taskCopy, nil
}

// DeleteTask removes a task outright. Leader only.
func (s *TaskService) DeleteTask(ctx context.Context, teamID, actorID, taskID string) (Outcome, error) {
	return s.teams.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if actorID != team.LeaderID {
			return fmt.Errorf("only the leader can delete tasks: %w", ErrForbidden)
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("completed team is read-only: %w", ErrConflict)
		}

		id, err := primitive.ObjectIDFromHex(taskID)
		if err != nil {
			return fmt.Errorf("invalid task ID %q: %w", taskID, ErrNotFound)
		}
		for i := range team.Tasks {
			if team.Tasks[i].ID == id {
				task := team.Tasks[i]
				team.Tasks = append(team.Tasks[:i], team.Tasks[i+1:]...)
				if task.AssigneeID != actorID {
					m.notify(task.AssigneeID, actorID, fmt.Sprintf("Your task %q in team %q was removed.", task.Description, team.Name), "task_deleted", taskID)
				}
				m.outcome = OutcomeDeleted
				return nil
			}
		}
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	})
}

// SubmitTask moves the assignee's work into review and resets both vote
// pools, so a resubmission after rework starts from a clean ledger.
func (s *TaskService) SubmitTask(ctx context.Context, teamID, actorID, taskID string) (Outcome, error) {
	return s.teams.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		task, err := s.requireTask(team, actorID, taskID)
		if err != nil {
			return err
		}
		if actorID != task.AssigneeID {
			return fmt.Errorf("only the assignee can submit a task: %w", ErrForbidden)
		}
		if task.Status != models.TaskPending && task.Status != models.TaskRework {
			return fmt.Errorf("task is %s, not submittable: %w", task.Status, ErrInvalidState)
		}

		task.Status = models.TaskReview
		task.VerificationVotes = []string{}
		task.ReworkVotes = []string{}

		for _, memberID := range team.Members {
			if memberID != actorID {
				m.notify(memberID, actorID, fmt.Sprintf("Task %q in team %q is ready for review.", task.Description, team.Name), "task_review", taskID)
			}
		}
		m.outcome = OutcomeInitiated
		return nil
	})
}

// VerifyTask casts a verification vote. Verification and rework race on
// the same review window: the first pool to hit its threshold resolves
// the task.
func (s *TaskService) VerifyTask(ctx context.Context, teamID, actorID, taskID string) (Outcome, error) {
	return s.teams.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		task, err := s.requireReviewVote(team, actorID, taskID)
		if err != nil {
			return err
		}

		task.VerificationVotes = append(task.VerificationVotes, actorID)
		if len(task.VerificationVotes) >= VerificationThreshold(reviewerCount(team)) {
			now := s.teams.now()
			task.Status = models.TaskCompleted
			task.CompletedAt = &now
			task.Extension = nil
			m.notify(task.AssigneeID, "", fmt.Sprintf("Your task %q was verified and completed.", task.Description), "task_completed", taskID)
			m.outcome = OutcomeCompleted
			logging.Logger.Infof("Event ID: TASK_COMPLETED, Description: Task %s in team %s verified by %d reviewers", taskID, teamID, len(task.VerificationVotes))
			return nil
		}
		m.outcome = OutcomeVoted
		return nil
	})
}

// RequestRework casts a rework vote; at threshold the task drops back to
// the rework state for the assignee to resubmit.
func (s *TaskService) RequestRework(ctx context.Context, teamID, actorID, taskID string) (Outcome, error) {
	return s.teams.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		task, err := s.requireReviewVote(team, actorID, taskID)
		if err != nil {
			return err
		}

		task.ReworkVotes = append(task.ReworkVotes, actorID)
		if len(task.ReworkVotes) >= ReworkThreshold(reviewerCount(team)) {
			task.Status = models.TaskRework
			m.notify(task.AssigneeID, "", fmt.Sprintf("Your task %q needs rework before it can be accepted.", task.Description), "task_rework", taskID)
			m.outcome = OutcomeApproved
			return nil
		}
		m.outcome = OutcomeVoted
		return nil
	})
}

// InitiateExtension opens a deadline-extension vote on a task. The
// assignee or the leader may ask; solo teams resolve on the spot.
func (s *TaskService) InitiateExtension(ctx context.Context, teamID, actorID, taskID string, requestedDeadline time.Time) (Outcome, error) {
	return s.teams.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		task, err := s.requireTask(team, actorID, taskID)
		if err != nil {
			return err
		}
		if actorID != task.AssigneeID && actorID != team.LeaderID {
			return fmt.Errorf("only the assignee or the leader can request an extension: %w", ErrForbidden)
		}
		if task.Status == models.TaskCompleted {
			return fmt.Errorf("completed task cannot be extended: %w", ErrInvalidState)
		}
		if task.Extension != nil && task.Extension.IsActive {
			return fmt.Errorf("an extension vote is already active for this task: %w", ErrConflict)
		}
		if !requestedDeadline.After(task.Deadline) {
			return fmt.Errorf("requested deadline must be after the current one: %w", ErrInvalidState)
		}

		if len(team.Members) == 1 {
			s.applyExtension(team, m, task, requestedDeadline, taskID)
			return nil
		}

		task.Extension = &models.ExtensionProposal{
			RequestedDeadline: requestedDeadline,
			Proposal: models.Proposal{
				IsActive:    true,
				InitiatorID: actorID,
				Votes:       map[string]models.VoteDecision{actorID: models.VoteApprove},
				CreatedAt:   s.teams.now(),
			},
		}
		for _, memberID := range team.Members {
			if memberID != actorID {
				m.notify(memberID, actorID, fmt.Sprintf("Vote on extending the deadline of task %q in team %q.", task.Description, team.Name), "task_extension", taskID)
			}
		}
		m.outcome = OutcomeInitiated
		return nil
	})
}

// VoteExtension records a ballot on a task's extension vote; a simple
// majority of all current members approves it.
func (s *TaskService) VoteExtension(ctx context.Context, teamID, actorID, taskID string, decision models.VoteDecision) (Outcome, error) {
	return s.teams.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		task, err := s.requireTask(team, actorID, taskID)
		if err != nil {
			return err
		}
		if task.Extension == nil || !task.Extension.IsActive {
			if m.expiredThisPass("extension:" + taskID) {
				m.outcome = OutcomeExpired
				return nil
			}
			return fmt.Errorf("no active extension vote on this task: %w", ErrInvalidState)
		}
		if err := castVote(&task.Extension.Proposal, actorID, decision); err != nil {
			return err
		}

		eligible := len(team.Members)
		switch ResolveVotes(eligible, task.Extension.Votes, MajorityThreshold(eligible)) {
		case ResolutionApproved:
			s.applyExtension(team, m, task, task.Extension.RequestedDeadline, taskID)
		case ResolutionRejected:
			task.Extension = nil
			m.notify(task.AssigneeID, "", fmt.Sprintf("The extension for task %q was rejected; the deadline stands.", task.Description), "task_extension", taskID)
			m.outcome = OutcomeRejected
		default:
			m.outcome = OutcomeVoted
		}
		return nil
	})
}

// applyExtension moves the deadline and rearms the approaching-deadline
// warning. WasExtended is a historical marker, not a one-shot lock: a
// task may be extended again later.
func (s *TaskService) applyExtension(team *models.Team, m *mutation, task *models.Task, requestedDeadline time.Time, taskID string) {
	task.Deadline = requestedDeadline
	task.WasExtended = true
	task.DeadlineWarned = false
	task.Extension = nil

	m.notify(task.AssigneeID, "", fmt.Sprintf("The deadline of task %q was extended to %s.", task.Description, requestedDeadline.Format("2006-01-02 15:04")), "task_extension", taskID)
	m.outcome = OutcomeApproved
	logging.Logger.Infof("Event ID: TASK_EXTENDED, Description: Task %s in team %s extended to %s", taskID, team.ID.Hex(), requestedDeadline.Format(time.RFC3339))
}

// requireTask is the shared guard for task operations: actor must be a
// member and the team must not be frozen.
func (s *TaskService) requireTask(team *models.Team, actorID, taskID string) (*models.Task, error) {
	if err := requireMember(team, actorID); err != nil {
		return nil, err
	}
	if team.Status == models.TeamCompleted {
		return nil, fmt.Errorf("completed team is read-only: %w", ErrConflict)
	}
	id, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return nil, fmt.Errorf("invalid task ID %q: %w", taskID, ErrNotFound)
	}
	task := team.TaskByID(id)
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return task, nil
}

// requireReviewVote adds the review-window rules on top of requireTask:
// the task must be in review, the assignee is excluded, and one reviewer
// gets one vote across both pools.
func (s *TaskService) requireReviewVote(team *models.Team, actorID, taskID string) (*models.Task, error) {
	task, err := s.requireTask(team, actorID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskReview {
		return nil, fmt.Errorf("task is %s, not in review: %w", task.Status, ErrInvalidState)
	}
	if actorID == task.AssigneeID {
		return nil, fmt.Errorf("the assignee cannot review their own task: %w", ErrForbidden)
	}
	if task.HasReviewed(actorID) {
		return nil, fmt.Errorf("user %s already reviewed this submission: %w", actorID, ErrInvalidState)
	}
	return task, nil
}
