package raft

import (
	"errors"
	"fmt"
)

// Error taxonomy. LogMismatch never escapes the handlers (it is reflected
// as success=false in the reply). Transports return ErrTransportSend, which
// server.go logs and drops; ErrTransportRecv and ErrStorage wrap the
// failures that end Server.Run. ErrSerialization is not produced by this
// package: a message that fails to encode or decode is logged and dropped.
var (
	ErrLogMismatch   = errors.New("raft: log mismatch")
	ErrSteppedDown   = errors.New("raft: stepped down before command committed")
	ErrTransportSend = errors.New("raft: transport send failed")
	ErrTransportRecv = errors.New("raft: transport receive failed")
	ErrSerialization = errors.New("raft: message serialization failed")
	ErrStorage       = errors.New("raft: durability checkpoint failed")

	// ErrNotLeader is the sentinel wrapped by NotLeaderError, for use with
	// errors.Is.
	ErrNotLeader = errors.New("raft: not leader")
)

// NotLeaderError is returned by Server.Submit when this node is not the
// leader. CurrentLeader is a hint for the embedder to retry against, and
// is nil if the leader is unknown.
type NotLeaderError struct {
	CurrentLeader *NodeId
}

func (e *NotLeaderError) Error() string {
	if e.CurrentLeader == nil {
		return "raft: not leader (current leader unknown)"
	}
	return fmt.Sprintf("raft: not leader (current leader is %d)", *e.CurrentLeader)
}

func (e *NotLeaderError) Is(target error) bool {
	return target == ErrNotLeader
}
