package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TeamStatus string

const (
	TeamPlanning  TeamStatus = "planning"
	TeamActive    TeamStatus = "active"
	TeamCompleted TeamStatus = "completed"
)

// VoteDecision is the closed set of values a ballot may carry. Anything
// else is rejected at the handler boundary and never stored.
type VoteDecision string

const (
	VoteApprove VoteDecision = "approve"
	VoteReject  VoteDecision = "reject"
)

func (d VoteDecision) Valid() bool {
	return d == VoteApprove || d == VoteReject
}

// Proposal is the shared vote ledger for team-level decisions. Votes are
// keyed by member id; the initiator's approval is recorded at creation for
// deletion and completion votes.
type Proposal struct {
	IsActive    bool                    `bson:"is_active" json:"is_active"`
	InitiatorID string                  `bson:"initiator_id" json:"initiator_id"`
	Votes       map[string]VoteDecision `bson:"votes" json:"votes"`
	CreatedAt   time.Time               `bson:"created_at" json:"created_at"`
}

func (p *Proposal) ApproveCount() int {
	count := 0
	for _, decision := range p.Votes {
		if decision == VoteApprove {
			count++
		}
	}
	return count
}

func (p *Proposal) HasVoted(userID string) bool {
	_, ok := p.Votes[userID]
	return ok
}

type MemberRequestType string

const (
	RequestLeave  MemberRequestType = "leave"
	RequestRemove MemberRequestType = "remove"
)

// MemberRequest is a leave or remove proposal targeting a single member.
// The target is never an eligible voter on its own request.
type MemberRequest struct {
	ID           primitive.ObjectID `bson:"id" json:"id"`
	TargetUserID string             `bson:"target_user_id" json:"target_user_id"`
	Type         MemberRequestType  `bson:"type" json:"type"`
	Explanation  string             `bson:"explanation" json:"explanation"`
	Proposal     `bson:",inline"`
}

// Team is the aggregate root. Every embedded proposal and task is mutated
// exclusively through the services package, and the whole document is the
// unit of optimistic concurrency (see Version).
type Team struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                string             `bson:"name" json:"name"`
	Description         string             `bson:"description" json:"description"`
	LeaderID            string             `bson:"leader_id" json:"leader_id"`
	Members             []string           `bson:"members" json:"members"`
	Status              TeamStatus         `bson:"status" json:"status"`
	IsLookingForMembers bool               `bson:"is_looking_for_members" json:"is_looking_for_members"`
	DeletionRequest     *Proposal          `bson:"deletion_request,omitempty" json:"deletion_request,omitempty"`
	CompletionRequest   *Proposal          `bson:"completion_request,omitempty" json:"completion_request,omitempty"`
	MemberRequests      []MemberRequest    `bson:"member_requests" json:"member_requests"`
	Tasks               []Task             `bson:"tasks" json:"tasks"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	Version             int64              `bson:"version" json:"-"`
}

func (t *Team) IsMember(userID string) bool {
	for _, memberID := range t.Members {
		if memberID == userID {
			return true
		}
	}
	return false
}

// RemoveMember drops the member from the ordered member list.
func (t *Team) RemoveMember(userID string) {
	for i, memberID := range t.Members {
		if memberID == userID {
			t.Members = append(t.Members[:i], t.Members[i+1:]...)
			return
		}
	}
}

// HasActiveGovernanceVote reports whether any team-level vote (deletion,
// completion, leave or remove) is currently open. At most one of these may
// run at a time so the eligible-voter denominator stays stable mid-vote.
func (t *Team) HasActiveGovernanceVote() bool {
	if t.DeletionRequest != nil && t.DeletionRequest.IsActive {
		return true
	}
	if t.CompletionRequest != nil && t.CompletionRequest.IsActive {
		return true
	}
	for i := range t.MemberRequests {
		if t.MemberRequests[i].IsActive {
			return true
		}
	}
	return false
}

// ActiveMemberRequestFor returns the open request targeting the given
// member, if any.
func (t *Team) ActiveMemberRequestFor(targetUserID string) *MemberRequest {
	for i := range t.MemberRequests {
		if t.MemberRequests[i].IsActive && t.MemberRequests[i].TargetUserID == targetUserID {
			return &t.MemberRequests[i]
		}
	}
	return nil
}

func (t *Team) MemberRequestByID(requestID primitive.ObjectID) *MemberRequest {
	for i := range t.MemberRequests {
		if t.MemberRequests[i].ID == requestID {
			return &t.MemberRequests[i]
		}
	}
	return nil
}

func (t *Team) TaskByID(taskID primitive.ObjectID) *Task {
	for i := range t.Tasks {
		if t.Tasks[i].ID == taskID {
			return &t.Tasks[i]
		}
	}
	return nil
}

// PurgeVotes removes every ballot cast by the given user from all open
// proposals and task vote pools, so a departed member cannot keep skewing
// a quorum they are no longer counted in.
func (t *Team) PurgeVotes(userID string) {
	if t.DeletionRequest != nil {
		delete(t.DeletionRequest.Votes, userID)
	}
	if t.CompletionRequest != nil {
		delete(t.CompletionRequest.Votes, userID)
	}
	for i := range t.MemberRequests {
		delete(t.MemberRequests[i].Votes, userID)
	}
	for i := range t.Tasks {
		task := &t.Tasks[i]
		task.VerificationVotes = removeID(task.VerificationVotes, userID)
		task.ReworkVotes = removeID(task.ReworkVotes, userID)
		if task.Extension != nil {
			delete(task.Extension.Votes, userID)
		}
	}
}

func removeID(ids []string, userID string) []string {
	for i, id := range ids {
		if id == userID {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
