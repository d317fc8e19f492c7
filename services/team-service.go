package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/logging"
	"github.com/shuvam-kayal/Devember-CollabQuest/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Outcome is the resolution tag returned by every mutating operation, so
// clients can render the new state without re-fetching.
type Outcome string

const (
	OutcomeInitiated Outcome = "initiated"
	OutcomeVoted     Outcome = "voted"
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeExpired   Outcome = "expired"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeCompleted Outcome = "completed"
)

// maxSaveAttempts bounds the optimistic-concurrency retry loop. Each
// retry re-applies the operation against a freshly loaded aggregate.
const maxSaveAttempts = 3

// TeamService orchestrates team-level governance: deletion and completion
// votes, member leave/remove requests, and the lazy expiry of all of them.
type TeamService struct {
	store    TeamStore
	notifier Notifier
	cascade  CascadeClient
	now      func() time.Time
}

func NewTeamService(store TeamStore, notifier Notifier, cascade CascadeClient) *TeamService {
	return &TeamService{
		store:    store,
		notifier: notifier,
		cascade:  cascade,
		now:      time.Now,
	}
}

// mutation collects what one read-modify-write pass decided: the outcome
// tag, the notifications to send once the save lands, and whether the
// whole team document goes away.
type mutation struct {
	outcome    Outcome
	deleteTeam bool
	notes      []models.Notification
	expired    map[string]bool
}

func newMutation() *mutation {
	return &mutation{outcome: OutcomeVoted, expired: map[string]bool{}}
}

func (m *mutation) notify(recipientID, senderID, message, kind, relatedID string) {
	m.notes = append(m.notes, models.Notification{
		RecipientID: recipientID,
		SenderID:    senderID,
		Message:     message,
		Type:        kind,
		RelatedID:   relatedID,
	})
}

func (m *mutation) expiredThisPass(key string) bool {
	return m.expired[key]
}

// mutateTeam is the single serialization point for aggregate writes: load,
// sweep expired proposals, apply fn, save with a version check. A version
// conflict means another member got in first, so the whole pass is redone
// against the fresh document. Notifications only go out after the save
// succeeds; they are never on the critical path and never roll it back.
func (s *TeamService) mutateTeam(ctx context.Context, teamID string, fn func(team *models.Team, m *mutation) error) (Outcome, error) {
	id, err := primitive.ObjectIDFromHex(teamID)
	if err != nil {
		return "", fmt.Errorf("invalid team ID %q: %w", teamID, ErrNotFound)
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		team, err := s.store.Get(ctx, id)
		if err != nil {
			return "", err
		}

		m := newMutation()
		s.sweep(team, m)

		if err := fn(team, m); err != nil {
			return "", err
		}

		if m.deleteTeam {
			if err := s.store.Delete(ctx, id); err != nil {
				return "", err
			}
			s.cascade.DeleteTeamArtifacts(ctx, id.Hex())
		} else if err := s.store.Replace(ctx, team); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				logging.Logger.Infof("Event ID: TEAM_SAVE_RETRY, Description: Concurrent update on team %s, retrying (attempt %d)", teamID, attempt+1)
				continue
			}
			return "", err
		}

		s.dispatch(ctx, m.notes)
		return m.outcome, nil
	}
	return "", fmt.Errorf("team %s kept changing under concurrent votes: %w", teamID, ErrConflict)
}

// sweep applies lazy expiry and deadline warnings, queueing their
// notifications. Returns how many state transitions it made.
func (s *TeamService) sweep(team *models.Team, m *mutation) int {
	now := s.now()

	expired := SweepExpired(team, now)
	for _, e := range expired {
		m.expired[e.Key()] = true
		m.notify(e.InitiatorID, "", fmt.Sprintf("Your %s vote in team %q timed out without a decision.", e.Kind, team.Name), "vote_expired", team.ID.Hex())
	}

	warned := SweepDeadlineWarnings(team, now)
	for _, task := range warned {
		m.notify(task.AssigneeID, "", fmt.Sprintf("Task %q is due soon (%s).", task.Description, task.Deadline.Format("2006-01-02 15:04")), "task_deadline", task.ID.Hex())
	}

	return len(expired) + len(warned)
}

func (s *TeamService) dispatch(ctx context.Context, notes []models.Notification) {
	for _, n := range notes {
		s.notifier.Notify(ctx, n)
	}
}

// CreateTeam starts a new team in the planning phase with the creator as
// leader and sole member.
func (s *TeamService) CreateTeam(ctx context.Context, actorID, name, description string) (*models.Team, error) {
	if name == "" {
		return nil, fmt.Errorf("team name is required: %w", ErrInvalidState)
	}
	team := &models.Team{
		ID:                  primitive.NewObjectID(),
		Name:                name,
		Description:         description,
		LeaderID:            actorID,
		Members:             []string{actorID},
		Status:              models.TeamPlanning,
		IsLookingForMembers: true,
		MemberRequests:      []models.MemberRequest{},
		Tasks:               []models.Task{},
		CreatedAt:           s.now(),
	}
	if err := s.store.Insert(ctx, team); err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: TEAM_CREATED, Description: Team %s created by user %s", team.ID.Hex(), actorID)
	return team, nil
}

// GetTeam loads the aggregate, applying lazy expiry first. A read that
// sweeps something persists the swept state so expired proposals never
// linger as the active blocker for new ones.
func (s *TeamService) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	id, err := primitive.ObjectIDFromHex(teamID)
	if err != nil {
		return nil, fmt.Errorf("invalid team ID %q: %w", teamID, ErrNotFound)
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		team, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		m := newMutation()
		if s.sweep(team, m) == 0 {
			return team, nil
		}
		if err := s.store.Replace(ctx, team); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		s.dispatch(ctx, m.notes)
		return team, nil
	}
	return nil, fmt.Errorf("team %s kept changing under concurrent votes: %w", teamID, ErrConflict)
}

// UpdateTeam lets the leader move the team from planning to active and
// toggle recruiting visibility. Completion only ever happens via vote.
func (s *TeamService) UpdateTeam(ctx context.Context, teamID, actorID string, status *models.TeamStatus, isLookingForMembers *bool) (Outcome, error) {
	return s.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if actorID != team.LeaderID {
			return fmt.Errorf("only the leader can update the team: %w", ErrForbidden)
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("completed team is read-only: %w", ErrConflict)
		}
		if status != nil {
			if *status != models.TeamActive || team.Status != models.TeamPlanning {
				return fmt.Errorf("only a planning team can be started: %w", ErrInvalidState)
			}
			team.Status = models.TeamActive
			for _, memberID := range team.Members {
				if memberID != actorID {
					m.notify(memberID, actorID, fmt.Sprintf("Project %q has started.", team.Name), "team_started", team.ID.Hex())
				}
			}
		}
		if isLookingForMembers != nil {
			team.IsLookingForMembers = *isLookingForMembers
		}
		m.outcome = OutcomeApproved
		return nil
	})
}

// InitiateDeletion starts a deletion vote. The leader of a solo team
// deletes it outright; no proposal object is ever created in that case.
func (s *TeamService) InitiateDeletion(ctx context.Context, teamID, actorID string) (Outcome, error) {
	return s.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("completed team cannot be deleted: %w", ErrConflict)
		}
		if actorID != team.LeaderID {
			return fmt.Errorf("only the leader can start a deletion vote: %w", ErrForbidden)
		}
		if len(team.Members) == 1 {
			m.deleteTeam = true
			m.outcome = OutcomeDeleted
			logging.Logger.Infof("Event ID: TEAM_DELETED, Description: Solo team %s deleted by leader %s", team.ID.Hex(), actorID)
			return nil
		}
		if team.HasActiveGovernanceVote() {
			return fmt.Errorf("another governance vote is active on this team: %w", ErrConflict)
		}

		team.DeletionRequest = &models.Proposal{
			IsActive:    true,
			InitiatorID: actorID,
			Votes:       map[string]models.VoteDecision{actorID: models.VoteApprove},
			CreatedAt:   s.now(),
		}
		for _, memberID := range team.Members {
			if memberID != actorID {
				m.notify(memberID, actorID, fmt.Sprintf("A vote to delete team %q has started.", team.Name), "team_vote", team.ID.Hex())
			}
		}
		m.outcome = OutcomeInitiated
		return nil
	})
}

// VoteDeletion records a ballot on the active deletion vote and resolves
// it if the ledger is decisive.
func (s *TeamService) VoteDeletion(ctx context.Context, teamID, actorID string, decision models.VoteDecision) (Outcome, error) {
	return s.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("completed team is read-only: %w", ErrConflict)
		}
		proposal := team.DeletionRequest
		if proposal == nil || !proposal.IsActive {
			if m.expiredThisPass("deletion") {
				m.outcome = OutcomeExpired
				return nil
			}
			return fmt.Errorf("no active deletion vote: %w", ErrInvalidState)
		}
		if err := castVote(proposal, actorID, decision); err != nil {
			return err
		}

		eligible := len(team.Members)
		switch ResolveVotes(eligible, proposal.Votes, ConsensusThreshold(eligible)) {
		case ResolutionApproved:
			m.deleteTeam = true
			m.outcome = OutcomeDeleted
			for _, memberID := range team.Members {
				m.notify(memberID, "", fmt.Sprintf("Team %q was deleted by member vote.", team.Name), "team_deleted", team.ID.Hex())
			}
			logging.Logger.Infof("Event ID: TEAM_DELETED, Description: Team %s deleted after a %d/%d vote", team.ID.Hex(), proposal.ApproveCount(), eligible)
		case ResolutionRejected:
			team.DeletionRequest = nil
			m.outcome = OutcomeRejected
			for _, memberID := range team.Members {
				m.notify(memberID, "", fmt.Sprintf("The vote to delete team %q did not pass.", team.Name), "team_vote", team.ID.Hex())
			}
		default:
			m.outcome = OutcomeVoted
		}
		return nil
	})
}

// InitiateCompletion starts a completion vote. The initiator's approval
// counts immediately, which resolves solo teams on the spot.
func (s *TeamService) InitiateCompletion(ctx context.Context, teamID, actorID string) (Outcome, error) {
	return s.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("team is already completed: %w", ErrConflict)
		}
		if actorID != team.LeaderID {
			return fmt.Errorf("only the leader can start a completion vote: %w", ErrForbidden)
		}
		if team.HasActiveGovernanceVote() {
			return fmt.Errorf("another governance vote is active on this team: %w", ErrConflict)
		}

		team.CompletionRequest = &models.Proposal{
			IsActive:    true,
			InitiatorID: actorID,
			Votes:       map[string]models.VoteDecision{actorID: models.VoteApprove},
			CreatedAt:   s.now(),
		}

		eligible := len(team.Members)
		if ResolveVotes(eligible, team.CompletionRequest.Votes, ConsensusThreshold(eligible)) == ResolutionApproved {
			s.applyCompletion(team, m)
			return nil
		}

		for _, memberID := range team.Members {
			if memberID != actorID {
				m.notify(memberID, actorID, fmt.Sprintf("A vote to mark team %q completed has started.", team.Name), "team_vote", team.ID.Hex())
			}
		}
		m.outcome = OutcomeInitiated
		return nil
	})
}

// VoteCompletion records a ballot on the active completion vote.
func (s *TeamService) VoteCompletion(ctx context.Context, teamID, actorID string, decision models.VoteDecision) (Outcome, error) {
	return s.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("team is already completed: %w", ErrConflict)
		}
		proposal := team.CompletionRequest
		if proposal == nil || !proposal.IsActive {
			if m.expiredThisPass("completion") {
				m.outcome = OutcomeExpired
				return nil
			}
			return fmt.Errorf("no active completion vote: %w", ErrInvalidState)
		}
		if err := castVote(proposal, actorID, decision); err != nil {
			return err
		}

		eligible := len(team.Members)
		switch ResolveVotes(eligible, proposal.Votes, ConsensusThreshold(eligible)) {
		case ResolutionApproved:
			s.applyCompletion(team, m)
		case ResolutionRejected:
			team.CompletionRequest = nil
			m.outcome = OutcomeRejected
			for _, memberID := range team.Members {
				m.notify(memberID, "", fmt.Sprintf("The vote to complete team %q did not pass.", team.Name), "team_vote", team.ID.Hex())
			}
		default:
			m.outcome = OutcomeVoted
		}
		return nil
	})
}

// applyCompletion freezes the team and prompts every member to rate their
// peers. Completed is terminal: all governance and task mutation locks.
func (s *TeamService) applyCompletion(team *models.Team, m *mutation) {
	team.Status = models.TeamCompleted
	team.IsLookingForMembers = false
	team.CompletionRequest = nil
	for _, memberID := range team.Members {
		m.notify(memberID, "", fmt.Sprintf("Project %q is completed. Congratulations!", team.Name), "team_completed", team.ID.Hex())
		m.notify(memberID, "", fmt.Sprintf("Rate your teammates from %q.", team.Name), "rate_prompt", team.ID.Hex())
	}
	m.outcome = OutcomeCompleted
	logging.Logger.Infof("Event ID: TEAM_COMPLETED, Description: Team %s marked completed", team.ID.Hex())
}

// InitiateMemberRequest opens a leave or remove vote for one member.
// While the team is still planning, the action applies instantly with no
// vote; recruiting-phase rosters are the leader's call.
func (s *TeamService) InitiateMemberRequest(ctx context.Context, teamID, actorID, targetUserID string, requestType models.MemberRequestType, explanation string) (Outcome, error) {
	return s.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("completed team is read-only: %w", ErrConflict)
		}

		switch requestType {
		case models.RequestLeave:
			targetUserID = actorID
			if actorID == team.LeaderID {
				return fmt.Errorf("the leader cannot leave the team: %w", ErrForbidden)
			}
		case models.RequestRemove:
			if actorID != team.LeaderID {
				return fmt.Errorf("only the leader can propose a removal: %w", ErrForbidden)
			}
			if targetUserID == team.LeaderID {
				return fmt.Errorf("the leader cannot be removed: %w", ErrForbidden)
			}
			if !team.IsMember(targetUserID) {
				return fmt.Errorf("user %s is not a member of this team: %w", targetUserID, ErrNotFound)
			}
		default:
			return fmt.Errorf("unknown member request type %q: %w", requestType, ErrInvalidState)
		}

		if team.ActiveMemberRequestFor(targetUserID) != nil {
			return fmt.Errorf("a vote already targets user %s: %w", targetUserID, ErrConflict)
		}

		if team.Status == models.TeamPlanning {
			s.applyMemberRemoval(team, m, targetUserID, requestType)
			m.outcome = OutcomeApproved
			return nil
		}

		if team.HasActiveGovernanceVote() {
			return fmt.Errorf("another governance vote is active on this team: %w", ErrConflict)
		}

		request := models.MemberRequest{
			ID:           primitive.NewObjectID(),
			TargetUserID: targetUserID,
			Type:         requestType,
			Explanation:  explanation,
			Proposal: models.Proposal{
				IsActive:    true,
				InitiatorID: actorID,
				Votes:       map[string]models.VoteDecision{},
				CreatedAt:   s.now(),
			},
		}
		team.MemberRequests = append(team.MemberRequests, request)

		verb := "leave"
		if requestType == models.RequestRemove {
			verb = "be removed from"
		}
		for _, memberID := range team.Members {
			if memberID != actorID && memberID != targetUserID {
				m.notify(memberID, actorID, fmt.Sprintf("Vote whether a member should %s team %q.", verb, team.Name), "member_request", request.ID.Hex())
			}
		}
		m.outcome = OutcomeInitiated
		return nil
	})
}

// VoteMemberRequest records a ballot on a leave/remove request. The
// target of the request is never an eligible voter.
func (s *TeamService) VoteMemberRequest(ctx context.Context, teamID, actorID, requestID string, decision models.VoteDecision) (Outcome, error) {
	return s.mutateTeam(ctx, teamID, func(team *models.Team, m *mutation) error {
		if err := requireMember(team, actorID); err != nil {
			return err
		}
		if team.Status == models.TeamCompleted {
			return fmt.Errorf("completed team is read-only: %w", ErrConflict)
		}

		id, err := primitive.ObjectIDFromHex(requestID)
		if err != nil {
			return fmt.Errorf("invalid request ID %q: %w", requestID, ErrNotFound)
		}
		request := team.MemberRequestByID(id)
		if request == nil {
			return fmt.Errorf("member request %s: %w", requestID, ErrNotFound)
		}
		if !request.IsActive {
			if m.expiredThisPass("member:" + requestID) {
				m.outcome = OutcomeExpired
				return nil
			}
			return fmt.Errorf("member request %s is no longer active: %w", requestID, ErrInvalidState)
		}
		if actorID == request.TargetUserID {
			return fmt.Errorf("the subject of a vote cannot vote on it: %w", ErrForbidden)
		}
		if err := castVote(&request.Proposal, actorID, decision); err != nil {
			return err
		}

		eligible := len(team.Members) - 1
		switch ResolveVotes(eligible, request.Votes, ConsensusThreshold(eligible)) {
		case ResolutionApproved:
			target := request.TargetUserID
			requestType := request.Type
			request.IsActive = false
			s.applyMemberRemoval(team, m, target, requestType)
			for _, memberID := range team.Members {
				m.notify(memberID, "", fmt.Sprintf("The member vote in team %q passed.", team.Name), "member_request", requestID)
			}
			m.outcome = OutcomeApproved
		case ResolutionRejected:
			request.IsActive = false
			m.notify(request.TargetUserID, "", fmt.Sprintf("The vote concerning you in team %q did not pass. You remain a member.", team.Name), "member_request", requestID)
			m.outcome = OutcomeRejected
		default:
			m.outcome = OutcomeVoted
		}
		return nil
	})
}

// applyMemberRemoval takes the target off the roster and purges their
// ballots from every open proposal so stale votes cannot skew a quorum
// they are no longer counted in.
func (s *TeamService) applyMemberRemoval(team *models.Team, m *mutation, targetUserID string, requestType models.MemberRequestType) {
	team.RemoveMember(targetUserID)
	team.PurgeVotes(targetUserID)

	if requestType == models.RequestLeave {
		m.notify(targetUserID, "", fmt.Sprintf("You have left team %q.", team.Name), "member_left", team.ID.Hex())
		m.notify(team.LeaderID, "", fmt.Sprintf("A member has left team %q.", team.Name), "member_left", team.ID.Hex())
	} else {
		m.notify(targetUserID, "", fmt.Sprintf("You have been removed from team %q.", team.Name), "member_removed", team.ID.Hex())
	}
	logging.Logger.Infof("Event ID: MEMBER_REMOVED, Description: User %s removed from team %s (%s)", targetUserID, team.ID.Hex(), requestType)
}

func requireMember(team *models.Team, actorID string) error {
	if !team.IsMember(actorID) {
		return fmt.Errorf("user %s is not a member of team %s: %w", actorID, team.ID.Hex(), ErrForbidden)
	}
	return nil
}

// castVote validates and records one ballot. Re-voting is an error, not
// an overwrite.
func castVote(proposal *models.Proposal, actorID string, decision models.VoteDecision) error {
	if !decision.Valid() {
		return fmt.Errorf("unknown vote decision %q: %w", decision, ErrInvalidState)
	}
	if proposal.HasVoted(actorID) {
		return fmt.Errorf("user %s already voted on this proposal: %w", actorID, ErrInvalidState)
	}
	if proposal.Votes == nil {
		proposal.Votes = map[string]models.VoteDecision{}
	}
	proposal.Votes[actorID] = decision
	return nil
}
