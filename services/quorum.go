package services

import (
	"math"

	"github.com/shuvam-kayal/Devember-CollabQuest/models"
)

// Resolution is the quorum calculator's verdict for a vote ledger.
type Resolution string

const (
	ResolutionPending  Resolution = "pending"
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
)

// ResolveVotes decides a proposal from its current ledger. A proposal is
// approved as soon as the approve count reaches the threshold, rejected
// once every eligible voter has voted without reaching it, and pending
// otherwise. The result depends only on the final vote set, never on the
// order ballots arrived in.
func ResolveVotes(eligible int, votes map[string]models.VoteDecision, threshold int) Resolution {
	approvals := 0
	for _, decision := range votes {
		if decision == models.VoteApprove {
			approvals++
		}
	}
	if approvals >= threshold {
		return ResolutionApproved
	}
	if len(votes) >= eligible {
		return ResolutionRejected
	}
	return ResolutionPending
}

// ConsensusThreshold is the 70% bar used by team-level votes (deletion,
// completion, leave, remove).
func ConsensusThreshold(eligible int) int {
	return int(math.Ceil(float64(eligible) * 0.7))
}

// MajorityThreshold is the simple majority used by deadline extensions.
func MajorityThreshold(eligible int) int {
	return eligible/2 + 1
}

// VerificationThreshold is a raw count bar, not a consensus-of-all: the
// first reviewers to reach it complete the task even if nobody else votes.
func VerificationThreshold(reviewers int) int {
	return int(math.Ceil(float64(reviewers) * 0.2))
}

// ReworkThreshold is the raw count bar for sending a submission back.
func ReworkThreshold(reviewers int) int {
	return int(math.Ceil(float64(reviewers) * 0.3))
}
