// Command kvraftd runs one replica of the key-value store.
//
// Usage: kvraftd [-config file] [-host host] [-base-timeout dur] port id others...
//
// port, id, and others are positional and in that fixed order, per the
// protocol's CLI contract: the UDP port to bind, this replica's id,
// and the ids of every other replica in the cluster. Without -config,
// every id doubles as that replica's own UDP port on -host (default
// localhost), which is the simplest address scheme that fits the
// spec's minimal three-field CLI. With -config, a YAML cluster
// manifest supplies real per-replica addresses instead: the positional
// id must match the manifest's node.id, and the positional port and
// others are ignored in favour of the manifest's listen address and
// peer list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"kvraft/config"
	"kvraft/raft"
	"kvraft/transport"
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional YAML cluster manifest")
		host        = flag.String("host", "127.0.0.1", "host peer ids resolve against, absent -config")
		baseTimeout = flag.Duration("base-timeout", raft.DefaultBaseTimeout, "election timeout base T")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: kvraftd [-config file] [-host host] [-base-timeout dur] port id others...")
		os.Exit(2)
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatalf("invalid port %q: %v", args[0], err)
	}
	id := args[1]
	others := args[2:]

	listenAddr := fmt.Sprintf("%s:%d", *host, port)
	peerAddrs := make(map[string]string, len(others))
	for _, peerID := range others {
		peerAddrs[peerID] = fmt.Sprintf("%s:%s", *host, peerID)
	}

	if *configPath != "" {
		cf, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load cluster file: %v", err)
		}
		if cf.Node.ID != id {
			log.Fatalf("cluster file node.id=%s does not match positional id=%s", cf.Node.ID, id)
		}
		listenAddr = cf.Node.Address
		peerAddrs = cf.PeerAddresses()
		others = cf.PeerIDs()
	}

	ep, err := transport.NewUDP(id, listenAddr, peerAddrs)
	if err != nil {
		log.Fatalf("bind udp at %s: %v", listenAddr, err)
	}
	defer ep.Close()

	replica := raft.NewReplica(raft.Config{
		ID:          id,
		Peers:       others,
		Transport:   ep,
		BaseTimeout: *baseTimeout,
		Logger:      log.New(os.Stderr, fmt.Sprintf("[%s] ", id), log.LstdFlags),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("[%s] shutting down", id)
		cancel()
	}()

	log.Printf("[%s] listening on %s, peers=%v", id, listenAddr, others)
	start := time.Now()
	replica.Run(ctx)
	log.Printf("[%s] stopped after %s", id, time.Since(start).Round(time.Second))
}
