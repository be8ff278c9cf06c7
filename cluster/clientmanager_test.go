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

package cluster

import (
	"testing"
	"time"
)

func newTestClientManager() *ClientManager {
	return NewClientManager(2, 9000, time.Second, time.Second, nil)
}

func TestNewClientManagerDefaultsConnectionsPerNodeToAtLeastOne(t *testing.T) {
	m := NewClientManager(0, 9000, time.Second, time.Second, nil)
	if m.connectionsPerNode != 1 {
		t.Fatalf("connectionsPerNode = %d, want 1 when given 0", m.connectionsPerNode)
	}
}

func TestProcessMemberlistAddsNewNodes(t *testing.T) {
	m := newTestClientManager()
	defer m.Close()
	m.ProcessMemberlist(Memberlist{{MemberID: "a1", NodeName: "node-a", IP: "10.0.0.1"}})
	if len(m.Nodes()) != 1 {
		t.Fatalf("Nodes() = %v, want 1 entry", m.Nodes())
	}
	if _, ok := m.ConnFor("node-a"); !ok {
		t.Fatalf("ConnFor(node-a) missing after ProcessMemberlist")
	}
}

func TestProcessMemberlistRemovesDroppedNodes(t *testing.T) {
	m := newTestClientManager()
	defer m.Close()
	m.ProcessMemberlist(Memberlist{{MemberID: "a1", NodeName: "node-a", IP: "10.0.0.1"}})
	m.ProcessMemberlist(Memberlist{})
	if len(m.Nodes()) != 0 {
		t.Fatalf("Nodes() = %v, want empty after node dropped from memberlist", m.Nodes())
	}
}

func TestProcessMemberlistRecreatesChannelOnIPChange(t *testing.T) {
	m := newTestClientManager()
	defer m.Close()
	m.ProcessMemberlist(Memberlist{{MemberID: "a1", NodeName: "node-a", IP: "10.0.0.1"}})
	first, _ := m.ConnFor("node-a")

	m.ProcessMemberlist(Memberlist{{MemberID: "a1", NodeName: "node-a", IP: "10.0.0.2"}})
	second, ok := m.ConnFor("node-a")
	if !ok {
		t.Fatalf("ConnFor(node-a) missing after IP change")
	}
	if first == second {
		t.Fatalf("channel was not recreated after an IP change")
	}
}

func TestProcessMemberlistStableIPKeepsSameChannel(t *testing.T) {
	m := newTestClientManager()
	defer m.Close()
	m.ProcessMemberlist(Memberlist{{MemberID: "a1", NodeName: "node-a", IP: "10.0.0.1"}})
	first, _ := m.ConnFor("node-a")

	m.ProcessMemberlist(Memberlist{{MemberID: "a1", NodeName: "node-a", IP: "10.0.0.1"}})
	second, _ := m.ConnFor("node-a")
	if first != second {
		t.Fatalf("channel was unnecessarily recreated when the IP did not change")
	}
}

func TestRewriteForLocalDevDisambiguatesSameNodeName(t *testing.T) {
	members := Memberlist{
		{MemberID: "m1", NodeName: "dev", IP: "127.0.0.1"},
		{MemberID: "m2", NodeName: "dev", IP: "127.0.0.1"},
	}
	out := rewriteForLocalDev(members)
	if out[0].NodeName == out[1].NodeName {
		t.Fatalf("rewriteForLocalDev did not disambiguate: %+v", out)
	}
}

func TestRewriteForLocalDevLeavesDistinctNodesAlone(t *testing.T) {
	members := Memberlist{
		{MemberID: "m1", NodeName: "node-a", IP: "10.0.0.1"},
		{MemberID: "m2", NodeName: "node-b", IP: "10.0.0.2"},
	}
	out := rewriteForLocalDev(members)
	if out[0].NodeName != "node-a" || out[1].NodeName != "node-b" {
		t.Fatalf("rewriteForLocalDev altered distinct node names: %+v", out)
	}
}

func TestRewriteForLocalDevEmptyInput(t *testing.T) {
	if out := rewriteForLocalDev(Memberlist{}); len(out) != 0 {
		t.Fatalf("rewriteForLocalDev(empty) = %v, want empty", out)
	}
}

func TestBalancedAddressesProducesDistinctAttributesPerSlot(t *testing.T) {
	addrs := balancedAddresses("10.0.0.1:9000", 3)
	if len(addrs) != 3 {
		t.Fatalf("len(addrs) = %d, want 3", len(addrs))
	}
	for _, a := range addrs {
		if a.Addr != "10.0.0.1:9000" {
			t.Fatalf("Addr = %q, want the same address for every slot", a.Addr)
		}
	}
	if addrs[0].BalancerAttributes.Equal(addrs[1].BalancerAttributes) {
		t.Fatalf("slots should carry distinct BalancerAttributes so round_robin treats them as separate sub-connections")
	}
}

func TestClientManagerCloseClearsNodes(t *testing.T) {
	m := newTestClientManager()
	m.ProcessMemberlist(Memberlist{{MemberID: "a1", NodeName: "node-a", IP: "10.0.0.1"}})
	m.Close()
	if len(m.Nodes()) != 0 {
		t.Fatalf("Nodes() after Close = %v, want empty", m.Nodes())
	}
}
