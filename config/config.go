// Package config parses the optional YAML cluster manifest a kvraftd
// process can be pointed at instead of spelling out every peer address
// on the command line.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClusterFile is the top-level manifest shape: this node plus the full
// peer set, so any node's identity can be validated against the
// cluster it claims to belong to.
type ClusterFile struct {
	Node    NodeConfig    `yaml:"node"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// NodeConfig identifies this process within the cluster.
type NodeConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// ClusterConfig lists every replica in the cluster, including this
// node (see PeerConfig).
type ClusterConfig struct {
	Peers []PeerConfig `yaml:"peers"`
}

// PeerConfig is one cluster member's identity and datagram address.
type PeerConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// Load reads and validates a cluster manifest from path.
func Load(path string) (*ClusterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster file: %w", err)
	}

	var cf ClusterFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse cluster file: %w", err)
	}

	if err := cf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster file: %w", err)
	}

	return &cf, nil
}

// Validate checks internal consistency: a non-empty node id and
// address, a peer list containing this node with a matching address,
// and no duplicate peer ids.
func (c *ClusterFile) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if c.Node.Address == "" {
		return fmt.Errorf("node.address is required")
	}
	if len(c.Cluster.Peers) == 0 {
		return fmt.Errorf("cluster.peers must contain at least one peer")
	}

	seen := make(map[string]bool, len(c.Cluster.Peers))
	found := false
	for _, p := range c.Cluster.Peers {
		if seen[p.ID] {
			return fmt.Errorf("duplicate peer id: %s", p.ID)
		}
		seen[p.ID] = true

		if p.ID == c.Node.ID {
			found = true
			if p.Address != c.Node.Address {
				return fmt.Errorf("node address mismatch: node.address=%s but peer address=%s",
					c.Node.Address, p.Address)
			}
		}
	}
	if !found {
		return fmt.Errorf("node.id=%s not found in cluster.peers", c.Node.ID)
	}

	return nil
}

// PeerAddresses returns every peer's address other than this node's
// own, keyed by peer id, for the launcher to dial.
func (c *ClusterFile) PeerAddresses() map[string]string {
	out := make(map[string]string, len(c.Cluster.Peers)-1)
	for _, p := range c.Cluster.Peers {
		if p.ID != c.Node.ID {
			out[p.ID] = p.Address
		}
	}
	return out
}

// PeerIDs returns every peer id other than this node's own.
func (c *ClusterFile) PeerIDs() []string {
	ids := make([]string, 0, len(c.Cluster.Peers)-1)
	for _, p := range c.Cluster.Peers {
		if p.ID != c.Node.ID {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
