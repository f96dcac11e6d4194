package raft

import "kvraft/message"

// broadcastCandidacy announces a new election round to every peer.
func (r *Replica) broadcastCandidacy() {
	r.send(message.Envelope{
		Src: r.id, Dst: message.Broadcast, Leader: r.leaderID, Type: message.Candidacy,
		Term:      r.term,
		LastIndex: int64(r.lastLogIndex()),
		LastTerm:  r.lastLogTerm(),
	})
}

// logUpToDate implements Raft's up-to-date check (Raft thesis §5.4.1):
// higher term wins outright; on a term tie the longer log wins.
func logUpToDate(candTerm uint64, candIndex int64, ourTerm uint64, ourIndex int64) bool {
	if candTerm != ourTerm {
		return candTerm > ourTerm
	}
	return candIndex >= ourIndex
}

// handleCandidacy is the voter side of the election protocol. There is
// no explicit vote-denial message: a denial is simply silence.
func (r *Replica) handleCandidacy(msg message.Envelope) {
	if msg.Term < r.term {
		return
	}

	alreadyVotedElsewhere := r.votedFor != "" && r.votedFor != msg.Src
	if alreadyVotedElsewhere {
		return
	}

	if !logUpToDate(msg.LastTerm, msg.LastIndex, r.lastLogTerm(), int64(r.lastLogIndex())) {
		return
	}

	r.votedFor = msg.Src
	r.resetElectionTimer()

	r.send(message.Envelope{
		Src: r.id, Dst: msg.Src, Leader: r.leaderID, Type: message.Vote,
		Term: r.term, Value: int64(r.lastLogIndex()),
	})
}

// handleVote is the candidate side of vote tallying, plus the residual
// case of a vote arriving after we've already been promoted (treated
// as an implicit match-index report rather than discarded).
func (r *Replica) handleVote(msg message.Envelope) {
	v := int(msg.ValueIndex())

	switch r.role {
	case Candidate:
		if msg.Term != r.term {
			return
		}

		r.votesGranted[msg.Src] = true
		r.recordMatchIndex(msg.Src, v)

		total := len(r.peers) + 1
		granted := len(r.votesGranted) + 1 // +1 for our own implicit self-vote
		if granted*2 > total {
			r.becomeLeader()
		}

	case Leader:
		r.recordMatchIndex(msg.Src, v)
		r.recomputeCommit()

	default:
		// Followers ignore stray votes; nothing to do with them.
	}
}

func (r *Replica) recordMatchIndex(peer string, value int) {
	if cur, ok := r.matchIndex[peer]; !ok || value > cur {
		r.matchIndex[peer] = value
	}
}
