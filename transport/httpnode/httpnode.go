// Package httpnode implements raft.Network over plain HTTP: one POST
// endpoint, one header carrying the sender's identity, one HTTP client
// shared by all peers.
package httpnode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raftlabs/raftcore"
)

// MessagePath is the single route a Node serves and posts to.
const MessagePath = "/raft/message"

// senderHeader carries the sending node's id, since the payload itself is
// an opaque, codec-encoded raft.Message with no envelope of its own.
const senderHeader = "X-Raft-From"

type envelope struct {
	from    raft.NodeId
	payload []byte
}

// Node is an HTTP-backed raft.Network participant.
type Node struct {
	id    raft.NodeId
	size  int
	addrs map[raft.NodeId]string

	client *http.Client
	server *http.Server
	inbox  chan envelope
}

// New returns a Node that will serve on listenAddr and dial peers at the
// addresses in addrs (addrs need not, and should not, include id's own
// address).
func New(id raft.NodeId, size int, listenAddr string, addrs map[raft.NodeId]string) *Node {
	n := &Node{
		id:     id,
		size:   size,
		addrs:  addrs,
		client: &http.Client{Timeout: 5 * time.Second},
		inbox:  make(chan envelope, 256),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(MessagePath, n.handleMessage)
	n.server = &http.Server{Addr: listenAddr, Handler: mux}
	return n
}

// ListenAndServe blocks serving incoming messages until the server is
// shut down.
func (n *Node) ListenAndServe() error {
	err := n.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (n *Node) Shutdown(ctx context.Context) error {
	return n.server.Shutdown(ctx)
}

func (n *Node) handleMessage(w http.ResponseWriter, r *http.Request) {
	fromHeader := r.Header.Get(senderHeader)
	var from raft.NodeId
	if _, err := fmt.Sscanf(fromHeader, "%d", &from); err != nil {
		http.Error(w, "missing or malformed "+senderHeader, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	select {
	case n.inbox <- envelope{from: from, payload: body}:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
	}
}

func (n *Node) NodeID() raft.NodeId { return n.id }
func (n *Node) NetworkSize() int    { return n.size }

func (n *Node) Send(ctx context.Context, peer raft.NodeId, payload []byte) error {
	addr, ok := n.addrs[peer]
	if !ok {
		return fmt.Errorf("%w: no address for peer %d", raft.ErrTransportSend, peer)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+MessagePath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", raft.ErrTransportSend, err)
	}
	req.Header.Set(senderHeader, fmt.Sprintf("%d", n.id))
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", raft.ErrTransportSend, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: peer %d responded %s", raft.ErrTransportSend, peer, resp.Status)
	}
	return nil
}

func (n *Node) Recv(ctx context.Context) (raft.NodeId, []byte, error) {
	select {
	case e := <-n.inbox:
		return e.from, e.payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}
