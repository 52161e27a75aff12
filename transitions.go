package raft

// transitionToFollower moves s into the Follower role: all heartbeat
// timers are cleared (they are meaningless outside Leader), any in-flight
// candidacy is abandoned, and a fresh election timer is armed.
func transitionToFollower(s *RoleState, a *Actions) {
	if s.Role == Leader {
		a.ClearAllHeartbeatTimers()
	}
	s.Role = Follower
	s.VotesReceived = map[NodeId]struct{}{}
	a.SetElectionTimer()
	a.TransitionTo(Follower)
}

// transitionToCandidate begins a new election: term is incremented, the
// node votes for itself, and RequestVote is broadcast to every peer. The
// term bump and self-vote are persisted before any message is sent, per
// the universal term rule.
func transitionToCandidate(s *RoleState, a *Actions) {
	if s.Role == Leader {
		a.ClearAllHeartbeatTimers()
	}
	s.Role = Candidate
	s.CurrentTerm++
	self := s.NodeID
	s.VotedFor = &self
	s.VotesReceived = map[NodeId]struct{}{self: {}}
	a.Persist()
	a.SetElectionTimer()

	for peer := range s.Peers {
		a.Send(peer, Message{
			Type:         MsgRequestVoteReq,
			Term:         s.CurrentTerm,
			CandidateId:  s.NodeID,
			LastLogIndex: s.LastLogIndex(),
			LastLogTerm:  s.LastLogTerm(),
		})
	}
	a.TransitionTo(Candidate)
}

// transitionToLeader installs this node as leader of the current term:
// per-peer replication state is reset optimistically to "peer has nothing
// past our last entry", and an empty AppendEntries (heartbeat) is sent to
// every peer immediately to assert leadership before anyone else's
// election timer expires.
func transitionToLeader(s *RoleState, a *Actions) {
	s.Role = Leader
	self := s.NodeID
	s.CurrentLeader = &self
	a.ClearElectionTimer()

	lastIndex := s.LastLogIndex()
	for peer, ps := range s.Peers {
		ps.NextIndex = lastIndex + 1
		ps.MatchIndex = 0
		a.Send(peer, Message{
			Type:         MsgAppendEntriesReq,
			Term:         s.CurrentTerm,
			Leader:       s.NodeID,
			PrevLogIndex: lastIndex,
			PrevLogTerm:  s.Log.Get(lastIndex).Term,
			Entries:      nil,
			LeaderCommit: s.CommitIndex,
		})
		a.SetHeartbeatTimer(peer)
	}
	a.TransitionTo(Leader)
}
