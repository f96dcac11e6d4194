// Package raft is the consensus core: the role state machine, election
// and replication protocols, commit computation, and client request
// handling described for a single replica. Everything here runs on one
// goroutine (see Replica.Run). No field is touched from more than one
// goroutine, so there is no locking anywhere in this package.
package raft

import (
	"log"
	"math/rand"
	"os"
	"time"

	"kvraft/message"
	"kvraft/transport"
)

// Role is the replica's position in the Raft role state machine.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// DefaultBaseTimeout is the reference election-timeout base T.
const DefaultBaseTimeout = 150 * time.Millisecond

// maxBatchEntries caps a single AppendEntries payload, bounding
// datagram size and giving successive batches natural pipelining.
const maxBatchEntries = 50

// redirectBatchThreshold is the queue depth that forces an immediate
// redirect flush instead of waiting for the deadline.
const redirectBatchThreshold = 10

// pendingRequest is a client put awaiting commit: the original request
// plus the log index it was placed at.
type pendingRequest struct {
	req   message.Envelope
	index int
}

// Config holds everything NewReplica needs to construct a Replica. The
// process launcher (out of scope for this module) is responsible for
// supplying ID, Peers, and Transport.
type Config struct {
	ID        string
	Peers     []string // peer ids, excluding self
	Transport transport.Endpoint

	// BaseTimeout is T. Defaults to DefaultBaseTimeout.
	BaseTimeout time.Duration

	// Rand, if set, drives randomized election timeouts (for
	// deterministic tests). Defaults to a time-seeded source.
	Rand *rand.Rand

	// Logger receives diagnostic output. Defaults to a stderr logger.
	Logger *log.Logger
}

// Replica is one node's full Raft state: role, term, log, applied
// key-value map, and (while leader) the per-peer replication and
// pending-request bookkeeping. It is owned exclusively by the event
// loop in Run, so there is no synchronization because there is no
// concurrent access.
type Replica struct {
	id    string
	peers []string

	transport transport.Endpoint
	logger    *log.Logger

	baseTimeout time.Duration
	rng         *rand.Rand

	// Per-replica state.
	term     uint64
	role     Role
	leaderID string
	votedFor string

	// votesGranted is only meaningful while role == Candidate.
	votesGranted map[string]bool

	log         []message.Entry
	data        map[string]string
	lastApplied int
	commitIndex int

	// matchIndex is only meaningful while role == Leader, but is
	// primed opportunistically from vote payloads while still a
	// candidate (see handleVote).
	matchIndex map[string]int

	// pending is only meaningful while role == Leader.
	pending map[string]pendingRequest

	// resolvedMIDs remembers MIDs already committed and acknowledged,
	// so a retry arriving after resolvePending has already cleared the
	// pending entry is still recognized as a duplicate instead of
	// appending a second log entry for the same client request.
	// Leader-only, cleared when the replica becomes a follower.
	resolvedMIDs map[string]bool

	redirectQueue []message.Envelope

	lastHeartbeat         time.Time
	lastConsensus         time.Time
	electionDeadline      time.Time
	heartbeatDeadline     time.Time
	redirectFlushDeadline time.Time
}

// NewReplica constructs a Replica in the initial follower state with
// an empty log and an empty applied map.
func NewReplica(cfg Config) *Replica {
	baseTimeout := cfg.BaseTimeout
	if baseTimeout <= 0 {
		baseTimeout = DefaultBaseTimeout
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	r := &Replica{
		id:           cfg.ID,
		peers:        append([]string(nil), cfg.Peers...),
		transport:    cfg.Transport,
		logger:       logger,
		baseTimeout:  baseTimeout,
		rng:          rng,
		role:         Follower,
		leaderID:     message.Broadcast,
		data:         make(map[string]string),
		lastApplied:  -1,
		commitIndex:  -1,
		matchIndex:   make(map[string]int),
		pending:      make(map[string]pendingRequest),
		resolvedMIDs: make(map[string]bool),
	}

	now := time.Now()
	r.lastHeartbeat = now
	r.lastConsensus = now
	r.redirectFlushDeadline = now.Add(r.redirectFlushInterval())
	r.resetElectionTimer()

	return r
}

// ID returns the replica's own identifier.
func (r *Replica) ID() string { return r.id }

// Term returns the current election term.
func (r *Replica) Term() uint64 { return r.term }

// RoleState returns the current role.
func (r *Replica) RoleState() Role { return r.role }

// LeaderID returns the last known leader, or message.Broadcast if
// unknown.
func (r *Replica) LeaderID() string { return r.leaderID }

// CommitIndex returns the highest committed log index, or -1.
func (r *Replica) CommitIndex() int { return r.commitIndex }

// LastApplied returns the highest applied log index, or -1.
func (r *Replica) LastApplied() int { return r.lastApplied }

// LogLength returns the number of entries in the log.
func (r *Replica) LogLength() int { return len(r.log) }

// Value returns the applied value for key, and whether it is present.
func (r *Replica) Value(key string) (string, bool) {
	v, ok := r.data[key]
	return v, ok
}
