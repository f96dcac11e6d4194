package raft

import (
	"sort"
	"time"

	"kvraft/message"
)

// matchIndexOrDefault returns match_index[peer] if known, or the
// spec's default assumption for an unknown follower: it's probably at
// most 50 entries behind our tail.
func (r *Replica) matchIndexOrDefault(peer string) int {
	if idx, ok := r.matchIndex[peer]; ok {
		return idx
	}
	d := len(r.log) - maxBatchEntries
	if d < 0 {
		d = 0
	}
	return d
}

// replicateToAll fans AppendEntries out to every peer. Called on the
// heartbeat tick, right after becoming leader, and (eagerly, though
// the protocol only requires the next heartbeat) right after a put is
// appended.
func (r *Replica) replicateToAll() {
	for _, p := range r.peers {
		r.sendAppendEntriesTo(p)
	}
}

// sendAppendEntriesTo builds and sends one or more AppendEntries
// datagrams to peer, each capped at maxBatchEntries, iterating instead
// of recursing through successive 50-entry windows until peer is
// caught up to our tail (or would be, pending its reply).
func (r *Replica) sendAppendEntriesTo(peer string) {
	start := r.matchIndexOrDefault(peer)
	if start > r.lastLogIndex() {
		start = r.lastLogIndex()
	}

	for {
		prevTerm := uint64(0)
		if start >= 0 {
			if t, ok := r.termAt(start); ok {
				prevTerm = t
			}
		}

		remaining := r.log[start+1:]
		n := len(remaining)
		if n > maxBatchEntries {
			n = maxBatchEntries
		}
		batch := append([]message.Entry(nil), remaining[:n]...)

		r.send(message.Envelope{
			Src: r.id, Dst: peer, Leader: r.id, Type: message.AppendEntries,
			Term: r.term, PrevLogIndex: int64(start), PrevLogTerm: prevTerm,
			Entries: batch, LeaderCommit: int64(r.commitIndex),
		})

		if len(remaining) <= maxBatchEntries {
			return
		}
		start += maxBatchEntries
	}
}

func (r *Replica) sendAgree(dst string, lastIndex int) {
	r.send(message.Envelope{
		Src: r.id, Dst: dst, Leader: r.leaderID, Type: message.Agree,
		Term: r.term, Value: int64(lastIndex),
	})
}

func (r *Replica) sendInduceMe(dst string) {
	r.send(message.Envelope{
		Src: r.id, Dst: dst, Leader: r.leaderID, Type: message.InduceMe,
		Term: r.term, Value: int64(r.commitIndex),
	})
}

// handleAppendEntries is the follower side of replication.
func (r *Replica) handleAppendEntries(msg message.Envelope) {
	if (r.role == Candidate || r.role == Leader) && r.leaderID != msg.Src {
		r.becomeFollower(r.term)
	}

	r.leaderID = msg.Src
	r.lastHeartbeat = time.Now()
	r.resetElectionTimer()

	if len(msg.Entries) == 0 {
		// Heartbeat: if the leader's commit is already past our tail we
		// believe ourselves behind and ask to be caught up.
		if msg.LeaderCommit >= int64(len(r.log)) {
			r.sendInduceMe(msg.Src)
		}
		return
	}

	prevIndex := int(msg.PrevLogIndex)

	if r.matchesAt(prevIndex, msg.Entries) {
		// Case 1: idempotent duplicate. Reply agree without mutating,
		// reporting our true log tail rather than just this batch's
		// window, since a reordered earlier batch can have already
		// carried us further than prevIndex+len(entries).
		r.sendAgree(msg.Src, r.lastLogIndex())
		return
	}

	prevTermMatches := prevIndex == -1 || (len(r.log) > prevIndex && r.log[prevIndex].Term == msg.PrevLogTerm)
	if !prevTermMatches {
		// Case 3: consistency check fails, ask for an earlier position.
		r.sendInduceMe(msg.Src)
		return
	}

	// Case 2: truncate any conflicting suffix and append.
	r.truncateAfter(prevIndex)
	r.log = append(r.log, msg.Entries...)
	lastIndex := r.lastLogIndex()

	r.sendAgree(msg.Src, lastIndex)

	if msg.LeaderCommit > int64(r.commitIndex) {
		newCommit := int(msg.LeaderCommit)
		if newCommit > lastIndex {
			newCommit = lastIndex
		}
		r.commitIndex = newCommit
		r.applyUpTo(r.commitIndex)
	}
}

// handleAgree is the leader side of a successful replication reply.
func (r *Replica) handleAgree(msg message.Envelope) {
	if r.role != Leader {
		return
	}
	r.recordMatchIndex(msg.Src, int(msg.ValueIndex()))
	r.recomputeCommit()
}

// handleInduceMe is the leader side of a follower requesting catch-up
// from an earlier position.
func (r *Replica) handleInduceMe(msg message.Envelope) {
	if r.role != Leader {
		return
	}
	if _, known := r.matchIndex[msg.Src]; !known {
		r.matchIndex[msg.Src] = int(msg.ValueIndex())
	}
	r.sendAppendEntriesTo(msg.Src)
}

// recomputeCommit implements the generic quorum rule for an n-node
// cluster: take the ceil((n+1)/2)-th largest element of the
// match-index multiset that includes the leader's own log tail, where
// n is the full cluster size (peers plus self).
func (r *Replica) recomputeCommit() {
	if r.role != Leader {
		return
	}

	n := len(r.peers) + 1
	indices := make([]int, 0, n)
	indices = append(indices, r.lastLogIndex())
	for _, p := range r.peers {
		if v, ok := r.matchIndex[p]; ok {
			indices = append(indices, v)
		} else {
			indices = append(indices, -1)
		}
	}

	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	k := n/2 + 1
	H := indices[k-1]
	if H > r.lastLogIndex() {
		H = r.lastLogIndex()
	}

	if H <= r.commitIndex || H < 0 {
		return
	}

	// A leader commits H only if its own term created the entry there,
	// preventing the classic "committed entry replaced" anomaly: prior
	// terms' entries are only committed indirectly, via a later
	// same-term entry.
	term, ok := r.termAt(H)
	if !ok || term != r.term {
		return
	}

	r.commitIndex = H
	r.applyUpTo(r.commitIndex)
	r.lastConsensus = time.Now()
	r.resolvePending()
}

// resolvePending answers every pending put whose log index has now
// committed, and drops it from the table.
func (r *Replica) resolvePending() {
	for mid, pr := range r.pending {
		if pr.index <= r.commitIndex {
			r.send(message.Envelope{
				Src: r.id, Dst: pr.req.Src, Leader: r.leaderID, Type: message.OK, MID: mid,
			})
			delete(r.pending, mid)
			r.resolvedMIDs[mid] = true
		}
	}
}
