// Package node holds the static identity of a remote audio node together with
// the values derived from it at runtime: connection status and load stats.
package node

import (
	"github.com/orris-inc/soundmesh/internal/shared/config"
)

// Node is the immutable configuration of one remote audio node.
type Node struct {
	name     string
	password string
	httpHost string
	wsHost   string
	region   string
}

// New creates a node description. Name is the unique key inside a client.
func New(name, password, httpHost, wsHost, region string) *Node {
	return &Node{
		name:     name,
		password: password,
		httpHost: httpHost,
		wsHost:   wsHost,
		region:   region,
	}
}

// FromConfig builds a node from its configuration entry.
func FromConfig(cfg config.NodeConfig) *Node {
	return New(cfg.Name, cfg.Password, cfg.HTTPHost, cfg.WSHost, cfg.Region)
}

func (n *Node) Name() string     { return n.name }
func (n *Node) Password() string { return n.password }
func (n *Node) HTTPHost() string { return n.httpHost }
func (n *Node) WSHost() string   { return n.wsHost }
func (n *Node) Region() string   { return n.region }
