/*
Copyright (C) 2026  ferrodb authors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package cluster maintains the frontend's view of the query-executor
// fleet: a memberlist diff loop that keeps one load-balanced gRPC
// channel per node, growing and shrinking its sub-connections as nodes
// join, leave, or change address.
package cluster

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/attributes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/resolver"
)

type connIndexKey struct{}

// Member is one entry of a memberlist snapshot.
type Member struct {
	MemberID string
	NodeName string
	IP       string
}

// Memberlist is a point-in-time snapshot of the query-executor fleet.
type Memberlist []Member

// balancedEntry is the live state for one node: the gRPC channel
// load-balancing across connectionsPerNode sub-connections to the
// same address, and the resolver handle used to push address updates.
type balancedEntry struct {
	conn     *grpc.ClientConn
	resolver *nodeResolverBuilder
}

// ClientManager listens for memberlist updates and maintains one
// balanced *grpc.ClientConn per node, each carrying connectionsPerNode
// sub-connections so a single slow connection can't bottleneck a
// node's whole request volume.
type ClientManager struct {
	mu                  sync.RWMutex
	nodes               map[string]*balancedEntry
	connectionsPerNode  int
	grpcPort            int
	connectTimeout      time.Duration
	requestTimeout      time.Duration
	oldMemberlist       Memberlist
	logger              *zap.Logger
}

func NewClientManager(connectionsPerNode, grpcPort int, connectTimeout, requestTimeout time.Duration, logger *zap.Logger) *ClientManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if connectionsPerNode < 1 {
		connectionsPerNode = 1
	}
	return &ClientManager{
		nodes:              make(map[string]*balancedEntry),
		connectionsPerNode: connectionsPerNode,
		grpcPort:           grpcPort,
		connectTimeout:     connectTimeout,
		requestTimeout:     requestTimeout,
		logger:             logger,
	}
}

// ConnFor returns the balanced channel for node, if one exists. A
// generated query-executor client wraps this channel at the call
// site; ClientManager only owns connection lifecycle.
func (m *ClientManager) ConnFor(node string) (*grpc.ClientConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.nodes[node]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Nodes returns the currently known node names.
func (m *ClientManager) Nodes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.nodes))
	for n := range m.nodes {
		out = append(out, n)
	}
	return out
}

func (m *ClientManager) removeNode(node string) {
	m.mu.Lock()
	e, ok := m.nodes[node]
	if ok {
		delete(m.nodes, node)
	}
	m.mu.Unlock()
	if !ok {
		m.logger.Error("cluster: remove_node on unknown node", zap.String("node", node))
		return
	}
	_ = e.conn.Close()
}

func (m *ClientManager) addOrUpdateNode(node, ip string) {
	addr := fmt.Sprintf("%s:%d", ip, m.grpcPort)

	m.mu.RLock()
	e, exists := m.nodes[node]
	m.mu.RUnlock()
	if exists {
		e.resolver.handle().update(balancedAddresses(addr, m.connectionsPerNode))
		return
	}

	builder := newNodeResolverBuilder()
	target := fmt.Sprintf("%s:///%s", balancedScheme, node)
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithResolvers(builder),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy":"round_robin"}`),
		grpc.WithConnectParams(grpc.ConnectParams{MinConnectTimeout: m.connectTimeout}),
	)
	if err != nil {
		m.logger.Error("cluster: failed to build channel for node", zap.String("node", node), zap.Error(err))
		return
	}
	// NewClient starts idle and builds the resolver only on leaving idle
	// mode; handle() waits for that build.
	conn.Connect()
	builder.handle().update(balancedAddresses(addr, m.connectionsPerNode))

	m.mu.Lock()
	m.nodes[node] = &balancedEntry{conn: conn, resolver: builder}
	m.mu.Unlock()
}

func balancedAddresses(addr string, n int) []resolver.Address {
	out := make([]resolver.Address, n)
	for i := range out {
		// Identical network address, but a distinct BalancerAttributes
		// value per slot so round_robin treats each as its own
		// sub-connection instead of deduplicating them, giving
		// connections_per_node independent TCP connections to one node.
		out[i] = resolver.Address{
			Addr:               addr,
			BalancerAttributes: attributes.New(connIndexKey{}, i),
		}
	}
	return out
}

// ProcessMemberlist diffs newMembers against the previously seen
// memberlist and adds, removes, or recreates per-node channels
// accordingly. If every member shares the same node name (a
// single-machine development cluster), member ids are appended to
// disambiguate them.
func (m *ClientManager) ProcessMemberlist(newMembers Memberlist) {
	members := rewriteForLocalDev(newMembers)

	oldByNode := make(map[string]string, len(m.oldMemberlist))
	for _, old := range m.oldMemberlist {
		oldByNode[old.NodeName] = old.IP
	}

	seen := make(map[string]bool, len(members))
	for _, mem := range members {
		seen[mem.NodeName] = true
		if oldIP, ok := oldByNode[mem.NodeName]; ok {
			if oldIP != mem.IP {
				m.removeNode(mem.NodeName)
				m.addOrUpdateNode(mem.NodeName, mem.IP)
			}
			continue
		}
		m.addOrUpdateNode(mem.NodeName, mem.IP)
	}

	for node := range oldByNode {
		if !seen[node] {
			m.removeNode(node)
		}
	}

	m.oldMemberlist = members
}

func rewriteForLocalDev(members Memberlist) Memberlist {
	allSameNode := true
	var node string
	for _, mem := range members {
		if node == "" {
			node = mem.NodeName
		} else if node != mem.NodeName {
			allSameNode = false
			break
		}
	}
	if !allSameNode || len(members) == 0 {
		return members
	}
	out := make(Memberlist, len(members))
	for i, mem := range members {
		mem.NodeName = fmt.Sprintf("%s-%s", mem.NodeName, mem.MemberID)
		out[i] = mem
	}
	return out
}

// Close tears down every managed channel.
func (m *ClientManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for node, e := range m.nodes {
		_ = e.conn.Close()
		delete(m.nodes, node)
	}
}
