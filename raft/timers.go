package raft

import "time"

func (r *Replica) heartbeatInterval() time.Duration { return r.baseTimeout / 2 }
func (r *Replica) watchdogInterval() time.Duration  { return 2 * r.baseTimeout }
func (r *Replica) redirectFlushInterval() time.Duration { return 2 * r.baseTimeout }

// randomElectionTimeout draws uniformly from [T, 2T].
func (r *Replica) randomElectionTimeout() time.Duration {
	span := int64(r.baseTimeout)
	if span <= 0 {
		return r.baseTimeout
	}
	return r.baseTimeout + time.Duration(r.rng.Int63n(span+1))
}

func (r *Replica) resetElectionTimer() {
	r.electionDeadline = time.Now().Add(r.randomElectionTimeout())
}
