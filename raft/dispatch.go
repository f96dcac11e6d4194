package raft

import "kvraft/message"

// Dispatch routes one inbound envelope through the term-advance rule
// and then to its type-specific handler. It is exported so tests can
// drive a replica without going through Run's transport polling loop.
func (r *Replica) Dispatch(msg message.Envelope) {
	if !message.AddressedToMe(msg.Dst, r.id) {
		return
	}

	// Any role, on any message whose term exceeds ours: adopt it and
	// demote to follower before doing anything else. Client requests
	// (get/put) always carry term 0 and never trip this.
	if msg.Term > r.term {
		r.becomeFollower(msg.Term)
	}

	switch msg.Type {
	case message.Hello, message.OK, message.Fail, message.Redirect:
		// Informational/client-facing; a replica takes no action on these.
		return

	case message.Get:
		r.handleGet(msg)

	case message.Put:
		r.handlePut(msg)

	case message.Candidacy:
		if msg.Term < r.term {
			return
		}
		r.handleCandidacy(msg)

	case message.Vote:
		if msg.Term < r.term {
			return
		}
		r.handleVote(msg)

	case message.AppendEntries:
		if msg.Term < r.term {
			return
		}
		r.handleAppendEntries(msg)

	case message.Agree:
		if msg.Term < r.term {
			return
		}
		r.handleAgree(msg)

	case message.InduceMe:
		if msg.Term < r.term {
			return
		}
		r.handleInduceMe(msg)
	}
}
