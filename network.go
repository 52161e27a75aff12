package raft

import "context"

// Network is the transport contract the core depends on. Implementations
// live under transport/ (memory, httpnode, grpcnode); the core only ever
// moves opaque, codec-encoded bytes, never Message values, across this
// boundary.
type Network interface {
	NodeID() NodeId
	NetworkSize() int
	Send(ctx context.Context, peer NodeId, payload []byte) error
	Recv(ctx context.Context) (NodeId, []byte, error)
}
