package raft

import (
	"math/rand"
	"testing"
	"time"

	"kvraft/message"
	"kvraft/transport"
)

// newTestReplica wires a replica to a shared bus with one endpoint per
// peer already registered, so sends succeed and can be inspected.
func newTestReplica(t *testing.T, bus *transport.Bus, id string, peers []string) *Replica {
	t.Helper()
	ep := bus.NewEndpoint(id)
	return NewReplica(Config{
		ID:          id,
		Peers:       peers,
		Transport:   ep,
		BaseTimeout: 40 * time.Millisecond,
		Rand:        rand.New(rand.NewSource(1)),
	})
}

// recvEnvelope drains one decoded envelope from a peer's inbox,
// failing the test if none arrives within the timeout.
func recvEnvelope(t *testing.T, bus *transport.Bus, peerID string, ep *transport.Memory) message.Envelope {
	t.Helper()
	frame, ok := ep.Recv(time.Second)
	if !ok {
		t.Fatalf("expected a message for %s, got none", peerID)
	}
	env, err := message.Decode(frame)
	if err != nil {
		t.Fatalf("decode message for %s: %v", peerID, err)
	}
	return env
}

func drain(ep *transport.Memory) {
	for {
		if _, ok := ep.Recv(5 * time.Millisecond); !ok {
			return
		}
	}
}
