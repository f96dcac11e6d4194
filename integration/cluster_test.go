// Package integration runs kvraftd under Docker and exercises it over
// real UDP, the way an HTTP health-check end-to-end test would poll a
// service, but over the datagram protocol instead. There is no HTTP
// health endpoint here, the protocol itself is the probe: a get sent
// to the leader answers ok, a get sent to anyone else answers redirect
// naming the leader.
package integration

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	docker_network "github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"kvraft/message"
)

type testNode struct {
	id        string
	container testcontainers.Container
	hostAddr  string
}

// probe sends a get for key to dstID and returns the decoded reply, or
// ok=false if nothing arrives within timeout.
func probe(t *testing.T, conn *net.UDPConn, addr *net.UDPAddr, dstID, key, mid string, timeout time.Duration) (message.Envelope, bool) {
	t.Helper()

	frame, err := message.Encode(message.Envelope{Src: "probe", Dst: dstID, Type: message.Get, Key: key, MID: mid})
	require.NoError(t, err)

	_, err = conn.WriteToUDP(frame, addr)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	buf := make([]byte, message.MaxFrameSize)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return message.Envelope{}, false
	}

	env, err := message.Decode(buf[:n])
	require.NoError(t, err)
	return env, true
}

type testCluster struct {
	t       *testing.T
	ctx     context.Context
	nodes   []*testNode
	network *testcontainers.DockerNetwork
	conn    *net.UDPConn
}

func newTestCluster(t *testing.T, ctx context.Context, n int) *testCluster {
	t.Helper()

	network, err := docker_network.New(ctx)
	require.NoError(t, err)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)

	c := &testCluster{t: t, ctx: ctx, network: network, conn: conn}

	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%04d", i+1)
	}

	for i, id := range ids {
		others := append([]string(nil), ids[:i]...)
		others = append(others, ids[i+1:]...)
		c.nodes = append(c.nodes, c.startNode(id, others))
	}

	return c
}

func (c *testCluster) startNode(id string, others []string) *testNode {
	c.t.Helper()

	args := append([]string{"9000", id}, others...)

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "kvraftd:latest",
			Name:         "kvraftd-" + id,
			ExposedPorts: []string{"9000/udp"},
			Networks:     []string{c.network.Name},
			Cmd:          append([]string{"-host", "0.0.0.0"}, args...),
			WaitingFor:   wait.ForLog("listening on").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	}

	container, err := testcontainers.GenericContainer(c.ctx, req)
	require.NoError(c.t, err)

	host, err := container.Host(c.ctx)
	require.NoError(c.t, err)
	mapped, err := container.MappedPort(c.ctx, "9000/udp")
	require.NoError(c.t, err)

	return &testNode{id: id, container: container, hostAddr: fmt.Sprintf("%s:%s", host, mapped.Port())}
}

func (c *testCluster) shutdown() {
	for _, n := range c.nodes {
		if n.container != nil {
			_ = n.container.Terminate(c.ctx)
		}
	}
	if c.network != nil {
		_ = c.network.Remove(c.ctx)
	}
	_ = c.conn.Close()
}

func (c *testCluster) leader(timeout time.Duration) (*testNode, bool) {
	for _, n := range c.nodes {
		addr, err := net.ResolveUDPAddr("udp", n.hostAddr)
		if err != nil {
			continue
		}
		if env, ok := probe(c.t, c.conn, addr, n.id, "probe-key", "probe-mid", timeout); ok && env.Type == message.OK {
			return n, true
		}
	}
	return nil, false
}

func (c *testCluster) waitForLeader(timeout time.Duration) *testNode {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n, ok := c.leader(300 * time.Millisecond); ok {
			return n
		}
	}
	c.t.Fatalf("no leader elected within %s", timeout)
	return nil
}

func TestClusterElectsLeaderAndReplicatesAPut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-based integration test in short mode")
	}

	ctx := context.Background()
	c := newTestCluster(t, ctx, 3)
	defer c.shutdown()

	leader := c.waitForLeader(15 * time.Second)
	t.Logf("leader elected: %s", leader.id)

	leaderAddr, err := net.ResolveUDPAddr("udp", leader.hostAddr)
	require.NoError(t, err)

	frame, err := message.Encode(message.Envelope{Src: "probe", Dst: leader.id, Type: message.Put, Key: "k", Value: "v", MID: "put-1"})
	require.NoError(t, err)
	_, err = c.conn.WriteToUDP(frame, leaderAddr)
	require.NoError(t, err)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, message.MaxFrameSize)
	n, _, err := c.conn.ReadFromUDP(buf)
	require.NoError(t, err)
	ack, err := message.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, message.OK, ack.Type)
	require.Equal(t, "put-1", ack.MID)

	// Replicas never expose applied state directly to clients (reads are
	// answered only by whichever node currently believes itself leader,
	// per the protocol's external interface), so verification re-reads
	// through the leader rather than inspecting followers out of band.
	require.Eventually(t, func() bool {
		n, ok := c.leader(time.Second)
		if !ok {
			return false
		}
		get, ok := probe(t, c.conn, mustResolve(t, n.hostAddr), n.id, "k", "verify", time.Second)
		return ok && get.Type == message.OK && get.ValueString() == "v"
	}, 10*time.Second, 500*time.Millisecond, "the committed put must be observable through the leader")
}

func mustResolve(t *testing.T, addr string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)
	return a
}
