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
	"google.golang.org/grpc/resolver"
)

const balancedScheme = "ferrodb-node"

// nodeResolver is a manually-updated resolver.Resolver: it has no
// external source of truth, its addresses are pushed by balancedEntry
// whenever a node's connection set changes. One instance backs one
// node's *grpc.ClientConn.
type nodeResolver struct {
	cc resolver.ClientConn
}

func (r *nodeResolver) update(addrs []resolver.Address) {
	r.cc.UpdateState(resolver.State{Addresses: addrs})
}

func (r *nodeResolver) ResolveNow(resolver.ResolveNowOptions) {}
func (r *nodeResolver) Close()                                {}

// nodeResolverBuilder creates a fresh nodeResolver each time grpc
// builds the resolver for a target and keeps the latest one as the
// handle callers see, so balancedEntry can push address updates after
// the channel already exists.
type nodeResolverBuilder struct {
	resolverCh chan *nodeResolver
}

func newNodeResolverBuilder() *nodeResolverBuilder {
	return &nodeResolverBuilder{resolverCh: make(chan *nodeResolver, 1)}
}

func (b *nodeResolverBuilder) Scheme() string { return balancedScheme }

func (b *nodeResolverBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	r := &nodeResolver{cc: cc}
	r.update(nil)
	select {
	case b.resolverCh <- r:
	default:
		// a reconnect rebuilt the resolver; replace the handle callers see.
		<-b.resolverCh
		b.resolverCh <- r
	}
	return r, nil
}

// handle blocks until Build has run at least once, returning the live
// resolver so its address set can be pushed.
func (b *nodeResolverBuilder) handle() *nodeResolver {
	r := <-b.resolverCh
	b.resolverCh <- r
	return r
}
