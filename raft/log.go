package raft

import "kvraft/message"

// lastLogIndex is -1 when the log is empty ("before the log").
func (r *Replica) lastLogIndex() int { return len(r.log) - 1 }

// lastLogTerm is 0 when the log is empty.
func (r *Replica) lastLogTerm() uint64 {
	if len(r.log) == 0 {
		return 0
	}
	return r.log[len(r.log)-1].Term
}

// termAt returns the term of the entry at index, and whether the log
// holds an entry there at all.
func (r *Replica) termAt(index int) (uint64, bool) {
	if index < 0 || index >= len(r.log) {
		return 0, false
	}
	return r.log[index].Term, true
}

// matchesAt reports whether the log already holds entries, starting at
// prevLogIndex+1, identical to entries. Used for AppendEntries case 1:
// an idempotent duplicate that needs no mutation.
func (r *Replica) matchesAt(prevLogIndex int, entries []message.Entry) bool {
	for i, e := range entries {
		idx := prevLogIndex + 1 + i
		if idx >= len(r.log) {
			return false
		}
		if r.log[idx] != e {
			return false
		}
	}
	return true
}

// truncateAfter drops any entries strictly after index. A leader never
// calls this on its own log, only followers repairing a conflicting
// suffix do.
func (r *Replica) truncateAfter(index int) {
	if index+1 < len(r.log) {
		r.log = r.log[:index+1]
	}
}

// applyUpTo applies log[lastApplied+1 .. target] to the key-value map,
// strictly in index order, each entry at most once.
func (r *Replica) applyUpTo(target int) {
	for r.lastApplied < target {
		r.lastApplied++
		e := r.log[r.lastApplied]
		r.data[e.Key] = e.Value
	}
}
