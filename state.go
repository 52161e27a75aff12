package raft

// Role is a server's position in the Raft state machine.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// PeerState is the leader's replication bookkeeping for a single peer.
// It is allocated for every peer regardless of role, but only meaningful
// while this node is Leader.
type PeerState struct {
	NextIndex  Index
	MatchIndex Index
}

// RoleState is the complete state of one Raft server: the durable fields
// (CurrentTerm, VotedFor, Log), the volatile fields (CommitIndex,
// LastApplied, CurrentLeader), and the leader-only/candidate-only
// bookkeeping (Peers, VotesReceived). Handlers mutate a RoleState in place
// and record their side effects as Actions; see actions.go.
type RoleState struct {
	NodeID      NodeId
	NetworkSize int

	Role          Role
	CurrentTerm   Term
	VotedFor      *NodeId
	Log           *Log
	CommitIndex   Index
	LastApplied   Index
	CurrentLeader *NodeId

	Peers         map[NodeId]*PeerState
	VotesReceived map[NodeId]struct{}

	// ElectionTimerKey holds the key of the most recently armed election
	// timer. It is cleared to nil by ClearElectionTimer but not when the
	// timer fires, so the next SetElectionTimer may Cancel a key whose event
	// was already delivered; TimerService.Cancel treats that as a no-op.
	// HeartbeatTimerKeys is not used by the event loop: Server tracks
	// outstanding heartbeat keys in its own heartbeatKeys map, which is
	// likewise only updated on set and clear, not on expiration.
	ElectionTimerKey   *TimerKey
	HeartbeatTimerKeys map[NodeId]TimerKey
}

// NewRoleState returns a fresh Follower RoleState for a cluster of the
// given size, with id as this server's own id. Peers are allocated for
// every other id in [0, size).
func NewRoleState(id NodeId, size int) *RoleState {
	peers := make(map[NodeId]*PeerState, size)
	for i := 0; i < size; i++ {
		p := NodeId(i)
		if p == id {
			continue
		}
		peers[p] = &PeerState{NextIndex: 1, MatchIndex: 0}
	}
	return &RoleState{
		NodeID:             id,
		NetworkSize:        size,
		Role:               Follower,
		Log:                NewLog(),
		Peers:              peers,
		VotesReceived:      map[NodeId]struct{}{},
		HeartbeatTimerKeys: map[NodeId]TimerKey{},
	}
}

// Majority returns floor(NetworkSize/2) + 1.
func (s *RoleState) Majority() int {
	return s.NetworkSize/2 + 1
}

// LastLogTerm returns the term of the last entry in the log, or 0 for an
// empty log.
func (s *RoleState) LastLogTerm() Term {
	return s.Log.Get(s.Log.Length()).Term
}

// LastLogIndex returns the index of the last entry in the log, or 0 for an
// empty log.
func (s *RoleState) LastLogIndex() Index {
	return s.Log.Length()
}

// StateSnapshot is a cloned, consistent copy of a RoleState for
// observe_state/testing. It shares no mutable state with the live
// RoleState.
type StateSnapshot struct {
	NodeID        NodeId
	Role          Role
	CurrentTerm   Term
	VotedFor      *NodeId
	CommitIndex   Index
	LastApplied   Index
	CurrentLeader *NodeId
	LogLength     Index
	Peers         map[NodeId]PeerState
}

func (s *RoleState) Snapshot() StateSnapshot {
	peers := make(map[NodeId]PeerState, len(s.Peers))
	for id, p := range s.Peers {
		peers[id] = *p
	}
	var votedFor, leader *NodeId
	if s.VotedFor != nil {
		v := *s.VotedFor
		votedFor = &v
	}
	if s.CurrentLeader != nil {
		l := *s.CurrentLeader
		leader = &l
	}
	return StateSnapshot{
		NodeID:        s.NodeID,
		Role:          s.Role,
		CurrentTerm:   s.CurrentTerm,
		VotedFor:      votedFor,
		CommitIndex:   s.CommitIndex,
		LastApplied:   s.LastApplied,
		CurrentLeader: leader,
		LogLength:     s.Log.Length(),
		Peers:         peers,
	}
}
