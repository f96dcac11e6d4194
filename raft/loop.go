package raft

import (
	"context"
	"time"

	"kvraft/message"
)

// recvPollInterval bounds how long the event loop blocks on the
// transport before reinspecting timers. This is the loop's one
// suspension point, and it handles at most one message per iteration.
const recvPollInterval = 10 * time.Millisecond

// send is the one place a replica writes to the wire.
func (r *Replica) send(env message.Envelope) {
	frame, err := message.Encode(env)
	if err != nil {
		r.logger.Printf("[%s] encode %s to %s: %v", r.id, env.Type, env.Dst, err)
		return
	}
	if err := r.transport.Send(env.Dst, frame); err != nil {
		r.logger.Printf("[%s] send %s to %s: %v", r.id, env.Type, env.Dst, err)
	}
}

// Run drives the event loop until ctx is canceled. It multiplexes the
// transport (bounded wait, at most one message per iteration) with the
// replica's timers: election timeout, heartbeat interval,
// leader-progress watchdog, and redirect flush deadline.
func (r *Replica) Run(ctx context.Context) {
	r.send(message.Envelope{
		Src: r.id, Dst: message.Broadcast, Leader: message.Broadcast, Type: message.Hello,
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if frame, ok := r.transport.Recv(recvPollInterval); ok {
			if env, err := message.Decode(frame); err != nil {
				r.logger.Printf("[%s] dropping malformed frame: %v", r.id, err)
			} else {
				r.Dispatch(env)
			}
		}

		r.tick()
	}
}

// tick reinspects every timer once per loop iteration.
func (r *Replica) tick() {
	now := time.Now()

	switch r.role {
	case Follower, Candidate:
		if !now.Before(r.electionDeadline) {
			r.becomeCandidate()
		}

	case Leader:
		if !now.Before(r.heartbeatDeadline) {
			r.replicateToAll()
			r.heartbeatDeadline = now.Add(r.heartbeatInterval())
		}
		if now.Sub(r.lastConsensus) >= r.watchdogInterval() {
			r.stepDownForNoProgress()
		}
	}

	if len(r.redirectQueue) > 0 && !now.Before(r.redirectFlushDeadline) {
		r.flushRedirects()
	}
}
