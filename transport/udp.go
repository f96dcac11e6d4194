package transport

import (
	"fmt"
	"net"
	"os"
	"time"

	"kvraft/message"
)

// UDP is the production Endpoint: one UDP socket per replica, with a
// static id-to-address table supplied by the process launcher (out of
// scope for this module, it hands us the local id, the listen address,
// and the peer table; see cmd/kvraftd).
//
// UDP datagrams are naturally length-framed (the kernel hands us one
// packet's bytes per ReadFrom), so no additional length prefix is
// needed on top of the JSON envelope.
type UDP struct {
	id        string
	conn      *net.UDPConn
	peerAddrs map[string]*net.UDPAddr
}

// NewUDP binds a UDP socket at listenAddr for replica id, and resolves
// the given peer id -> "host:port" table up front.
func NewUDP(id, listenAddr string, peers map[string]string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", listenAddr, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp on %q: %w", listenAddr, err)
	}

	peerAddrs := make(map[string]*net.UDPAddr, len(peers))
	for peerID, addr := range peers {
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("resolve peer %s address %q: %w", peerID, addr, err)
		}
		peerAddrs[peerID] = raddr
	}

	return &UDP{id: id, conn: conn, peerAddrs: peerAddrs}, nil
}

// Send writes frame to dst's address, or to every known peer when dst
// is message.Broadcast. Oversized frames are rejected rather than
// fragmented, matching the substrate's frame-size ceiling.
func (u *UDP) Send(dst string, frame []byte) error {
	if len(frame) > message.MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds max frame size %d", len(frame), message.MaxFrameSize)
	}

	if dst == message.Broadcast {
		var firstErr error
		for _, addr := range u.peerAddrs {
			if _, err := u.conn.WriteToUDP(frame, addr); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	addr, ok := u.peerAddrs[dst]
	if !ok {
		return fmt.Errorf("unknown peer %q", dst)
	}

	_, err := u.conn.WriteToUDP(frame, addr)
	return err
}

// Recv waits up to timeout for one inbound datagram.
func (u *UDP) Recv(timeout time.Duration) ([]byte, bool) {
	buf := make([]byte, message.MaxFrameSize)

	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, false
	}

	n, _, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, false
		}
		if os.IsTimeout(err) {
			return nil, false
		}
		return nil, false
	}

	return buf[:n], true
}

// LocalAddr returns the replica id this endpoint was constructed with.
func (u *UDP) LocalAddr() string { return u.id }

// Close releases the underlying UDP socket. Afterwards Send returns an
// error and Recv returns ok=false without waiting.
func (u *UDP) Close() error { return u.conn.Close() }
