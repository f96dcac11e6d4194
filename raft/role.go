package raft

import (
	"time"

	"kvraft/message"
)

// becomeFollower adopts term, resets vote/candidate bookkeeping, and
// drops any leader-only state. If we were leading or candidating,
// every pending client request is swept onto the redirect path, since
// the pending table only makes sense while we believe ourselves leader.
func (r *Replica) becomeFollower(term uint64) {
	wasLeaderOrCandidate := r.role == Leader || r.role == Candidate

	r.term = term
	r.role = Follower
	r.votedFor = ""
	r.votesGranted = nil
	r.matchIndex = nil
	r.resolvedMIDs = nil

	if wasLeaderOrCandidate && len(r.pending) > 0 {
		r.flushPendingToRedirect()
	}
}

// becomeCandidate starts a new election: bump term, vote for self,
// broadcast candidacy, and arm a fresh randomized election timer. Used
// both for the initial follower->candidate transition and for a
// candidate's own timeout re-fire.
func (r *Replica) becomeCandidate() {
	r.term++
	r.role = Candidate
	r.votedFor = r.id
	r.votesGranted = map[string]bool{}
	if r.matchIndex == nil {
		r.matchIndex = make(map[string]int, len(r.peers))
	}
	r.resetElectionTimer()
	r.broadcastCandidacy()
}

// becomeLeader promotes a candidate that has already won a majority.
// matchIndex is left as-is: handleVote primes it from vote payloads as
// votes arrive, so a freshly promoted leader already has a head start
// on every voter without an extra round trip.
func (r *Replica) becomeLeader() {
	r.role = Leader
	r.leaderID = r.id
	r.votesGranted = nil
	if r.matchIndex == nil {
		r.matchIndex = make(map[string]int, len(r.peers))
	}
	if r.resolvedMIDs == nil {
		r.resolvedMIDs = make(map[string]bool)
	}

	now := time.Now()
	r.lastConsensus = now
	r.heartbeatDeadline = now

	r.replicateToAll()
}

// stepDownForNoProgress is the leader-progress watchdog firing: no
// commit progress for 2T is the symptom of a leader that has lost
// quorum (e.g. to a partition), so it gives up leadership and starts a
// fresh election.
func (r *Replica) stepDownForNoProgress() {
	r.leaderID = message.Broadcast
	if len(r.pending) > 0 {
		r.flushPendingToRedirect()
	}
	r.becomeCandidate()
}
