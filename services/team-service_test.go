package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateDeletionSoloTeam(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice")

	outcome, err := f.teams.InitiateDeletion(context.Background(), team.ID.Hex(), "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)

	assert.False(t, f.store.contains(team.ID), "solo delete must remove the document without a vote")
	assert.Equal(t, []string{team.ID.Hex()}, f.cascade.deleted, "dependent chat group and matches must be cleaned up")
}

func TestInitiateDeletionRequiresLeader(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob")

	_, err := f.teams.InitiateDeletion(context.Background(), team.ID.Hex(), "bob")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.teams.InitiateDeletion(context.Background(), team.ID.Hex(), "mallory")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDeletionVoteThreeMembers(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	outcome, err := f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInitiated, outcome)

	stored := f.reload(t, team.ID)
	require.NotNil(t, stored.DeletionRequest)
	assert.Equal(t, 1, stored.DeletionRequest.ApproveCount(), "initiator's approval counts immediately")

	outcome, err = f.teams.VoteDeletion(ctx, team.ID.Hex(), "bob", models.VoteApprove)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVoted, outcome, "2 of 3 approvals is below ceil(3*0.7)=3")
	assert.True(t, f.store.contains(team.ID))

	outcome, err = f.teams.VoteDeletion(ctx, team.ID.Hex(), "carol", models.VoteApprove)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	assert.False(t, f.store.contains(team.ID))

	deleted := f.notifier.ofType("team_deleted")
	assert.Len(t, deleted, 3, "every member hears about the deletion")
}

func TestDeletionVoteRejectedWhenEveryoneVoted(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)

	_, err = f.teams.VoteDeletion(ctx, team.ID.Hex(), "bob", models.VoteReject)
	require.NoError(t, err)

	outcome, err := f.teams.VoteDeletion(ctx, team.ID.Hex(), "carol", models.VoteReject)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)

	stored := f.reload(t, team.ID)
	assert.Nil(t, stored.DeletionRequest, "a rejected vote frees the slot")
	assert.True(t, f.store.contains(team.ID))
}

func TestDoubleVoteRejected(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)

	_, err = f.teams.VoteDeletion(ctx, team.ID.Hex(), "bob", models.VoteApprove)
	require.NoError(t, err)

	_, err = f.teams.VoteDeletion(ctx, team.ID.Hex(), "bob", models.VoteReject)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.teams.VoteDeletion(ctx, team.ID.Hex(), "alice", models.VoteApprove)
	require.ErrorIs(t, err, ErrInvalidState, "the initiator has already voted")
}

func TestGovernanceLockIsGlobal(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)

	_, err = f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.ErrorIs(t, err, ErrConflict, "no second deletion vote")

	_, err = f.teams.InitiateCompletion(ctx, team.ID.Hex(), "alice")
	require.ErrorIs(t, err, ErrConflict, "no completion vote while deletion is open")

	_, err = f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "alice", "bob", models.RequestRemove, "inactive")
	require.ErrorIs(t, err, ErrConflict, "no member vote while deletion is open")
}

func TestCompletionVote(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob")
	ctx := context.Background()

	outcome, err := f.teams.InitiateCompletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInitiated, outcome, "ceil(2*0.7)=2, one approval is not enough")

	outcome, err = f.teams.VoteCompletion(ctx, team.ID.Hex(), "bob", models.VoteApprove)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	stored := f.reload(t, team.ID)
	assert.Equal(t, models.TeamCompleted, stored.Status)
	assert.False(t, stored.IsLookingForMembers)
	assert.Nil(t, stored.CompletionRequest)
	assert.Len(t, f.notifier.ofType("rate_prompt"), 2, "completion prompts peer rating")

	// Completed is terminal: no further governance.
	_, err = f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.ErrorIs(t, err, ErrConflict)
	_, err = f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "bob", "bob", models.RequestLeave, "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestCompletionSoloTeamResolvesImmediately(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice")

	outcome, err := f.teams.InitiateCompletion(context.Background(), team.ID.Hex(), "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, models.TeamCompleted, f.reload(t, team.ID).Status)
}

func TestLeaveInstantWhilePlanning(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamPlanning, "alice", "bob", "carol")

	outcome, err := f.teams.InitiateMemberRequest(context.Background(), team.ID.Hex(), "bob", "bob", models.RequestLeave, "found another project")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome)

	stored := f.reload(t, team.ID)
	assert.Equal(t, []string{"alice", "carol"}, stored.Members)
	assert.Empty(t, stored.MemberRequests, "no proposal object is created while planning")
}

func TestLeaderCannotLeaveOrBeRemoved(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob")
	ctx := context.Background()

	_, err := f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "alice", "alice", models.RequestLeave, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "bob", "alice", models.RequestRemove, "coup")
	require.ErrorIs(t, err, ErrForbidden, "removal is a leader-only action")

	_, err = f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "alice", "alice", models.RequestRemove, "")
	require.ErrorIs(t, err, ErrForbidden, "the leader is never a valid target")
}

func TestMemberRemovalVotePurgesBallots(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol", "dave")
	ctx := context.Background()

	// bob has open ballots on a task before being voted out.
	taskID := f.seedTask(t, team.ID, "carol", models.TaskReview)
	_, err := f.tasks.RequestRework(ctx, team.ID.Hex(), "bob", taskID.Hex())
	require.NoError(t, err)

	extTaskID := f.seedTask(t, team.ID, "dave", models.TaskPending)
	_, err = f.tasks.InitiateExtension(ctx, team.ID.Hex(), "dave", extTaskID.Hex(), f.now.Add(14*24*time.Hour))
	require.NoError(t, err)
	_, err = f.tasks.VoteExtension(ctx, team.ID.Hex(), "bob", extTaskID.Hex(), models.VoteApprove)
	require.NoError(t, err)

	outcome, err := f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "alice", "bob", models.RequestRemove, "unresponsive for weeks")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInitiated, outcome)

	stored := f.reload(t, team.ID)
	require.Len(t, stored.MemberRequests, 1)
	requestID := stored.MemberRequests[0].ID.Hex()
	assert.Empty(t, stored.MemberRequests[0].Votes, "member requests start with an empty ledger")

	// The target may not vote on its own removal.
	_, err = f.teams.VoteMemberRequest(ctx, team.ID.Hex(), "bob", requestID, models.VoteReject)
	require.ErrorIs(t, err, ErrForbidden)

	// Eligible voters exclude the target: ceil(3*0.7)=3.
	for _, voter := range []string{"alice", "carol"} {
		outcome, err = f.teams.VoteMemberRequest(ctx, team.ID.Hex(), voter, requestID, models.VoteApprove)
		require.NoError(t, err)
		assert.Equal(t, OutcomeVoted, outcome)
	}
	outcome, err = f.teams.VoteMemberRequest(ctx, team.ID.Hex(), "dave", requestID, models.VoteApprove)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome)

	stored = f.reload(t, team.ID)
	assert.Equal(t, []string{"alice", "carol", "dave"}, stored.Members)
	assert.False(t, stored.MemberRequests[0].IsActive)

	reviewTask := stored.TaskByID(taskID)
	require.NotNil(t, reviewTask)
	assert.Empty(t, reviewTask.ReworkVotes, "the removed member's rework ballot is purged")

	extTask := stored.TaskByID(extTaskID)
	require.NotNil(t, extTask)
	require.NotNil(t, extTask.Extension)
	assert.NotContains(t, extTask.Extension.Votes, "bob", "the removed member's extension ballot is purged")
}

func TestDuplicateMemberRequestConflicts(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "alice", "bob", models.RequestRemove, "first")
	require.NoError(t, err)

	_, err = f.teams.InitiateMemberRequest(ctx, team.ID.Hex(), "alice", "bob", models.RequestRemove, "second")
	require.ErrorIs(t, err, ErrConflict)
}

func TestDeletionVoteExpiresLazily(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)

	f.now = f.now.Add(ProposalTTL + time.Hour)

	outcome, err := f.teams.VoteDeletion(ctx, team.ID.Hex(), "bob", models.VoteApprove)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome, "a vote against a lapsed proposal reports the timeout, not a generic error")

	stored := f.reload(t, team.ID)
	assert.Nil(t, stored.DeletionRequest)
	assert.Len(t, f.notifier.ofType("vote_expired"), 1)

	// The lapsed proposal no longer blocks a fresh one.
	outcome, err = f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInitiated, outcome)
}

func TestGetTeamPersistsSweep(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := f.teams.InitiateCompletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err)

	f.now = f.now.Add(ProposalTTL + time.Hour)

	fetched, err := f.teams.GetTeam(ctx, team.ID.Hex())
	require.NoError(t, err)
	assert.Nil(t, fetched.CompletionRequest)

	stored := f.reload(t, team.ID)
	assert.Nil(t, stored.CompletionRequest, "a read that sweeps persists the swept state")

	// Re-reading must not re-notify the same expiry.
	before := len(f.notifier.ofType("vote_expired"))
	_, err = f.teams.GetTeam(ctx, team.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, before, len(f.notifier.ofType("vote_expired")))
}

func TestVersionConflictRetries(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")
	ctx := context.Background()

	conflicts := 0
	f.store.onReplace = func(*models.Team) error {
		if conflicts < 2 {
			conflicts++
			return fmt.Errorf("induced: %w", ErrVersionConflict)
		}
		return nil
	}

	outcome, err := f.teams.InitiateDeletion(ctx, team.ID.Hex(), "alice")
	require.NoError(t, err, "the operation is re-applied against the fresh aggregate")
	assert.Equal(t, OutcomeInitiated, outcome)
	assert.Equal(t, 2, conflicts)
}

func TestVersionConflictExhaustionSurfacesConflict(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamActive, "alice", "bob", "carol")

	f.store.onReplace = func(*models.Team) error {
		return fmt.Errorf("induced: %w", ErrVersionConflict)
	}

	_, err := f.teams.InitiateDeletion(context.Background(), team.ID.Hex(), "alice")
	require.ErrorIs(t, err, ErrConflict)
}

func TestUpdateTeamStartsProject(t *testing.T) {
	f := newFixture(t)
	team := f.seedTeam(t, models.TeamPlanning, "alice", "bob")
	ctx := context.Background()

	active := models.TeamActive
	outcome, err := f.teams.UpdateTeam(ctx, team.ID.Hex(), "alice", &active, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome)
	assert.Equal(t, models.TeamActive, f.reload(t, team.ID).Status)

	// Already active: starting again is invalid.
	_, err = f.teams.UpdateTeam(ctx, team.ID.Hex(), "alice", &active, nil)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.teams.UpdateTeam(ctx, team.ID.Hex(), "bob", nil, nil)
	require.ErrorIs(t, err, ErrForbidden)
}
