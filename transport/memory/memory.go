// Package memorytransport is an in-process raft.Network fabric: every
// Node shares a Hub, and Send delivers directly to the recipient's inbox
// channel with no encoding round-trip. It is the transport used by the
// package's own lifecycle tests, where a trivial local network is enough
// to exercise Server without real sockets.
package memorytransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/raftlabs/raftcore"
)

type envelope struct {
	from    raft.NodeId
	payload []byte
}

// Hub is the shared switchboard a set of Nodes register with.
type Hub struct {
	mu    sync.Mutex
	nodes map[raft.NodeId]*Node
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{nodes: map[raft.NodeId]*Node{}}
}

// Node registers a new participant with id in a cluster of the given
// size, and returns its raft.Network handle.
func (h *Hub) Node(id raft.NodeId, size int) *Node {
	n := &Node{
		id:    id,
		size:  size,
		hub:   h,
		inbox: make(chan envelope, 256),
	}
	h.mu.Lock()
	h.nodes[id] = n
	h.mu.Unlock()
	return n
}

// Node is one participant's raft.Network handle into a Hub.
type Node struct {
	id    raft.NodeId
	size  int
	hub   *Hub
	inbox chan envelope
}

func (n *Node) NodeID() raft.NodeId   { return n.id }
func (n *Node) NetworkSize() int      { return n.size }

func (n *Node) Send(ctx context.Context, peer raft.NodeId, payload []byte) error {
	n.hub.mu.Lock()
	dst, ok := n.hub.nodes[peer]
	n.hub.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown peer %d", raft.ErrTransportSend, peer)
	}
	select {
	case dst.inbox <- envelope{from: n.id, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Node) Recv(ctx context.Context) (raft.NodeId, []byte, error) {
	select {
	case e := <-n.inbox:
		return e.from, e.payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}
