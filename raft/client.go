package raft

import (
	"time"

	"kvraft/message"
)

// handleGet answers a read from the applied state on the leader, or
// enqueues it for deferred redirection otherwise. Reads never go
// through the log, so a leader that has been partitioned away but
// does not know it yet can briefly answer a stale value.
func (r *Replica) handleGet(msg message.Envelope) {
	if r.role != Leader {
		r.enqueueRedirect(msg)
		return
	}

	value := r.data[msg.Key]
	r.send(message.Envelope{
		Src: r.id, Dst: msg.Src, Leader: r.leaderID, Type: message.OK,
		MID: msg.MID, Value: value,
	})
}

// handlePut admits a write on the leader (deduplicating by MID) or
// enqueues it for deferred redirection otherwise. Acknowledgment is
// deferred until the entry commits (see recomputeCommit/resolvePending).
func (r *Replica) handlePut(msg message.Envelope) {
	if r.role != Leader {
		r.enqueueRedirect(msg)
		return
	}

	if _, dup := r.pending[msg.MID]; dup {
		return
	}
	if r.resolvedMIDs[msg.MID] {
		// Already committed and acknowledged on an earlier attempt; a
		// retry arriving after resolvePending cleared pending must not
		// append a second entry for the same client request.
		return
	}

	r.log = append(r.log, message.Entry{Term: r.term, Key: msg.Key, Value: msg.ValueString()})
	r.pending[msg.MID] = pendingRequest{req: msg, index: r.lastLogIndex()}

	// Eager fan-out: the protocol only requires the next heartbeat tick
	// to carry this entry, but sending it immediately shortens commit
	// latency and costs nothing extra.
	r.replicateToAll()
}

// enqueueRedirect buffers a non-leader client request for the
// batched, deferred redirect flush, whether or not a leader is
// currently known.
func (r *Replica) enqueueRedirect(msg message.Envelope) {
	r.redirectQueue = append(r.redirectQueue, msg)
	if len(r.redirectQueue) > redirectBatchThreshold {
		r.flushRedirects()
	}
}

// flushPendingToRedirect moves every in-flight put onto the redirect
// path on demotion. The entries may still commit under whichever
// leader now holds them, but clients must retry to find out; MID
// idempotency is what makes that safe.
func (r *Replica) flushPendingToRedirect() {
	for _, pr := range r.pending {
		r.redirectQueue = append(r.redirectQueue, pr.req)
	}
	r.pending = make(map[string]pendingRequest)

	if len(r.redirectQueue) > redirectBatchThreshold {
		r.flushRedirects()
	}
}

// flushRedirects drains the redirect queue, sending one redirect per
// buffered message.
func (r *Replica) flushRedirects() {
	for _, msg := range r.redirectQueue {
		r.send(message.Envelope{
			Src: r.id, Dst: msg.Src, Leader: r.leaderID, Type: message.Redirect, MID: msg.MID,
		})
	}
	r.redirectQueue = nil
	r.redirectFlushDeadline = time.Now().Add(r.redirectFlushInterval())
}
