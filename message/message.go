// Package message defines the wire envelope exchanged between kvraft
// replicas and clients, and between replicas themselves.
//
// Every datagram carries exactly one JSON-encoded envelope (see
// MaxFrameSize). The envelope is a flat, tagged record: Type selects
// which of the payload fields are meaningful, mirroring the small
// tagged-record formats used across the Raft lab implementations this
// package is grounded on.
package message

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the payload-bearing fields of an Envelope.
type Type string

const (
	Hello         Type = "hello"
	Get           Type = "get"
	Put           Type = "put"
	OK            Type = "ok"
	Fail          Type = "fail"
	Redirect      Type = "redirect"
	Candidacy     Type = "candidacy"
	Vote          Type = "vote"
	AppendEntries Type = "AppendEntries"
	Agree         Type = "agree"
	InduceMe      Type = "induce_me"
)

// Broadcast is the distinguished destination/leader id meaning
// "broadcast / unknown leader".
const Broadcast = "FFFF"

// MaxFrameSize is the largest encoded envelope a transport will send or
// accept, matching the datagram substrate's frame ceiling.
const MaxFrameSize = 65535

// Entry is one log entry: the leader's term at creation plus the
// client's (key, value) mutation. On the wire it is encoded as the
// two-element tuple [term, [key, value]], not as a JSON object, to
// match the substrate's compact AppendEntries payload.
type Entry struct {
	Term  uint64
	Key   string
	Value string
}

// MarshalJSON encodes the entry as [term, [key, value]].
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Term, [2]string{e.Key, e.Value}})
}

// UnmarshalJSON decodes the [term, [key, value]] wire shape.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode log entry: %w", err)
	}
	if err := json.Unmarshal(raw[0], &e.Term); err != nil {
		return fmt.Errorf("decode log entry term: %w", err)
	}
	var kv [2]string
	if err := json.Unmarshal(raw[1], &kv); err != nil {
		return fmt.Errorf("decode log entry key/value: %w", err)
	}
	e.Key, e.Value = kv[0], kv[1]
	return nil
}

// Envelope is the common message shape: {src, dst, leader, type, ...}.
// Only the fields relevant to Type are populated; the rest carry their
// zero value and are omitted on the wire.
type Envelope struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Leader string `json:"leader"`
	Type   Type   `json:"type"`

	// Client request/response fields.
	MID   string      `json:"MID,omitempty"`
	Key   string      `json:"key,omitempty"`
	Value interface{} `json:"value,omitempty"`

	// Election fields (candidacy, vote).
	Term      uint64 `json:"term,omitempty"`
	LastIndex int64  `json:"lastIndex,omitempty"`
	LastTerm  uint64 `json:"lastTerm,omitempty"`

	// Replication fields (AppendEntries, agree, induce_me).
	PrevLogIndex int64   `json:"prevLogIndex,omitempty"`
	PrevLogTerm  uint64  `json:"prevLogTerm,omitempty"`
	Entries      []Entry `json:"entries,omitempty"`
	LeaderCommit int64   `json:"leaderCommit,omitempty"`
}

// ValueString returns Value as a string, for get/put replies where
// value is the stored string (or "" when absent/missing).
func (e Envelope) ValueString() string {
	s, _ := e.Value.(string)
	return s
}

// ValueIndex returns Value as an index, for vote/agree/induce_me
// replies where value is a log index or commit index.
func (e Envelope) ValueIndex() int64 {
	switch v := e.Value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Encode serializes an envelope to its wire form and rejects frames
// that would exceed the substrate's maximum datagram size.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("encoded envelope too large: %d bytes", len(data))
	}
	return data, nil
}

// Decode parses a wire frame into an envelope. Malformed frames are the
// caller's cue to drop the packet silently, per the protocol's error
// handling design.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// AddressedToMe reports whether a message with the given destination
// should be processed by the replica with id localID: dst equal to
// localID or to Broadcast indicates "process me"; any other dst is
// silently ignored.
func AddressedToMe(dst, localID string) bool {
	return dst == localID || dst == Broadcast
}
