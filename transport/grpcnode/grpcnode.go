// Package grpcnode implements raft.Network over gRPC. It deliberately
// avoids protoc-generated code: the one RPC it needs carries an opaque
// byte payload, so it reuses the stable, pre-built wrapperspb.BytesValue
// and emptypb.Empty messages and registers a hand-written
// grpc.ServiceDesc instead of a generated *_grpc.pb.go.
package grpcnode

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/raftlabs/raftcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// senderMetadataKey carries the sending node's id alongside the RPC,
// since the payload itself is an opaque, codec-encoded raft.Message.
const senderMetadataKey = "raft-from-node"

type envelope struct {
	from    raft.NodeId
	payload []byte
}

// Node is a gRPC-backed raft.Network participant. It is both a client (it
// dials peers lazily and caches the connections) and a server (it
// registers serviceDesc on the *grpc.Server passed to Serve).
type Node struct {
	id    raft.NodeId
	size  int
	addrs map[raft.NodeId]string

	inbox chan envelope

	mu    sync.Mutex
	conns map[raft.NodeId]*grpc.ClientConn
}

// New returns a Node ready to be wired into a *grpc.Server via Serve.
func New(id raft.NodeId, size int, addrs map[raft.NodeId]string) *Node {
	return &Node{
		id:    id,
		size:  size,
		addrs: addrs,
		inbox: make(chan envelope, 256),
		conns: map[raft.NodeId]*grpc.ClientConn{},
	}
}

// Serve registers this Node's service on server. The caller owns
// server's lifecycle (grpc.NewServer, lis.Accept loop, GracefulStop).
func (n *Node) Serve(server *grpc.Server) {
	server.RegisterService(&serviceDesc, (*serverImpl)(n))
}

func (n *Node) NodeID() raft.NodeId { return n.id }
func (n *Node) NetworkSize() int    { return n.size }

func (n *Node) Send(ctx context.Context, peer raft.NodeId, payload []byte) error {
	conn, err := n.dial(peer)
	if err != nil {
		return fmt.Errorf("%w: %v", raft.ErrTransportSend, err)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, senderMetadataKey, fmt.Sprintf("%d", n.id))
	req := wrapperspb.Bytes(payload)
	reply := &emptypb.Empty{}
	if err := conn.Invoke(ctx, "/raftcore.Raft/Send", req, reply); err != nil {
		return fmt.Errorf("%w: %v", raft.ErrTransportSend, err)
	}
	return nil
}

func (n *Node) dial(peer raft.NodeId) (*grpc.ClientConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if conn, ok := n.conns[peer]; ok {
		return conn, nil
	}
	addr, ok := n.addrs[peer]
	if !ok {
		return nil, fmt.Errorf("no address for peer %d", peer)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	n.conns[peer] = conn
	return conn, nil
}

func (n *Node) Recv(ctx context.Context) (raft.NodeId, []byte, error) {
	select {
	case e := <-n.inbox:
		return e.from, e.payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Close releases any cached outbound connections.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var first error
	for _, conn := range n.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// serverImpl is Node viewed as the receiving end of the RPC; it is never
// constructed directly, only cast from a *Node in Serve.
type serverImpl Node

func (s *serverImpl) send(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var from raft.NodeId
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(senderMetadataKey); len(vals) > 0 {
			fmt.Sscanf(vals[0], "%d", &from)
		}
	}
	select {
	case s.inbox <- envelope{from: from, payload: req.GetValue()}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &emptypb.Empty{}, nil
}

func sendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*serverImpl).send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftcore.Raft/Send"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*serverImpl).send(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "raftcore.Raft",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftcore/grpcnode.proto",
}

// ListenTCP is a convenience constructor combining net.Listen with a fresh
// *grpc.Server hosting this Node's service; the caller still owns calling
// Serve(lis) on the returned *grpc.Server and GracefulStop on shutdown.
func ListenTCP(n *Node, addr string) (net.Listener, *grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	server := grpc.NewServer()
	n.Serve(server)
	return lis, server, nil
}
