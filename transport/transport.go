// Package transport abstracts the datagram substrate a replica sits on:
// a lossy, reorderable, unreliable channel delivering length-framed
// byte frames between named endpoints. The consensus core never talks
// to a socket directly, it only ever sees an Endpoint.
package transport

import "time"

// Endpoint is the bidirectional datagram channel a replica's event
// loop multiplexes over. Implementations need not guarantee delivery,
// ordering, or freedom from duplication.
type Endpoint interface {
	// Send fans a frame out to dst. Best-effort: a returned error means
	// the local send failed outright (e.g. the socket closed), not that
	// dst failed to receive it, that case is indistinguishable from
	// ordinary datagram loss and is not reported.
	Send(dst string, frame []byte) error

	// Recv blocks for at most timeout waiting for one inbound frame.
	// ok is false on timeout; ok is true with a non-nil frame otherwise.
	Recv(timeout time.Duration) (frame []byte, ok bool)

	// LocalAddr is the endpoint's own address/id as seen by peers.
	LocalAddr() string

	// Close releases any underlying resources. What Send and Recv do
	// after Close depends on the implementation (see UDP.Close and
	// Memory.Close).
	Close() error
}
