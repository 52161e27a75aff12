package raft

// applyUniversalTermRule implements the rule that applies before any other
// per-message logic: if the incoming term is greater than our own, we
// adopt it, forget any vote cast in the old term, and step down to
// Follower. The term bump is persisted immediately rather than deferred to
// whatever reply follows, because a crash between adopting a higher term
// and persisting it would let us vote twice in that term after restart.
func applyUniversalTermRule(s *RoleState, msgTerm Term, a *Actions) {
	if msgTerm <= s.CurrentTerm {
		return
	}
	s.CurrentTerm = msgTerm
	s.VotedFor = nil
	s.CurrentLeader = nil
	a.Persist()
	if s.Role != Follower {
		transitionToFollower(s, a)
	}
}

// HandleAppendEntriesReq processes an AppendEntries RPC from the purported
// leader "from". It is the only place a Follower learns who its leader is.
func HandleAppendEntriesReq(s *RoleState, from NodeId, m Message, a *Actions) {
	applyUniversalTermRule(s, m.Term, a)

	if m.Term < s.CurrentTerm {
		a.Send(from, Message{
			Type:      MsgAppendEntriesRep,
			Term:      s.CurrentTerm,
			Success:   false,
			NextIndex: s.LastLogIndex() + 1,
		})
		return
	}

	// A Leader never receives one at its own term from another node in a
	// well-formed cluster; if it does, the request is ignored: no reply is
	// sent and this node does not step down.
	if s.Role == Leader {
		return
	}

	a.SetElectionTimer()
	if s.Role == Candidate {
		// Someone else won this term's election; transitionToFollower
		// would set its own election timer redundantly, so apply the
		// rest of its effects (clearing votes_received, role) directly.
		s.Role = Follower
		s.VotesReceived = map[NodeId]struct{}{}
		a.TransitionTo(Follower)
	}
	s.CurrentLeader = &m.Leader

	if err := s.Log.Append(m.PrevLogIndex, m.PrevLogTerm, m.Entries); err != nil {
		a.Send(from, Message{
			Type:      MsgAppendEntriesRep,
			Term:      s.CurrentTerm,
			Success:   false,
			NextIndex: s.LastLogIndex() + 1,
		})
		return
	}

	if m.LeaderCommit > s.CommitIndex {
		newCommit := m.LeaderCommit
		if last := s.LastLogIndex(); newCommit > last {
			newCommit = last
		}
		s.CommitIndex = newCommit
	}

	a.Persist()
	a.Send(from, Message{
		Type:      MsgAppendEntriesRep,
		Term:      s.CurrentTerm,
		Success:   true,
		NextIndex: s.LastLogIndex() + 1,
	})
}

// HandleAppendEntriesRep processes a reply to an AppendEntries RPC this
// node previously sent as Leader.
func HandleAppendEntriesRep(s *RoleState, from NodeId, m Message, a *Actions) {
	applyUniversalTermRule(s, m.Term, a)

	if s.Role != Leader {
		return
	}
	if m.Term < s.CurrentTerm {
		return
	}

	peer, ok := s.Peers[from]
	if !ok {
		return
	}

	if !m.Success {
		next := peer.NextIndex - 1
		if m.NextIndex < next {
			next = m.NextIndex
		}
		if next < 1 {
			next = 1
		}
		peer.NextIndex = next
		a.SetHeartbeatTimer(from)
		sendAppendEntries(s, from, peer, a)
		return
	}

	if m.NextIndex-1 > peer.MatchIndex {
		peer.MatchIndex = m.NextIndex - 1
	}
	if m.NextIndex > peer.NextIndex {
		peer.NextIndex = m.NextIndex
	}
	advanceCommitIndex(s, a)
}

// sendAppendEntries emits the AppendEntries RPC appropriate for peer's
// current NextIndex: a heartbeat/retry carrying every entry this node has
// past NextIndex-1.
func sendAppendEntries(s *RoleState, peer NodeId, ps *PeerState, a *Actions) {
	prevIndex := ps.NextIndex - 1
	a.Send(peer, Message{
		Type:         MsgAppendEntriesReq,
		Term:         s.CurrentTerm,
		Leader:       s.NodeID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  s.Log.Get(prevIndex).Term,
		Entries:      s.Log.Slice(prevIndex + 1),
		LeaderCommit: s.CommitIndex,
	})
}

// advanceCommitIndex scans for the highest N such that a majority of
// MatchIndex values (including our own, implicitly at LastLogIndex) are
// >= N and the entry at N was appended in the current term. Raft forbids
// committing entries from earlier terms by counting alone; only a
// current-term entry's majority can move the commit index.
func advanceCommitIndex(s *RoleState, a *Actions) {
	lastIndex := s.LastLogIndex()
	for n := lastIndex; n > s.CommitIndex; n-- {
		if s.Log.Get(n).Term != s.CurrentTerm {
			continue
		}
		count := 1 // self
		for _, ps := range s.Peers {
			if ps.MatchIndex >= n {
				count++
			}
		}
		if count >= s.Majority() {
			s.CommitIndex = n
			break
		}
	}
}

// HandleRequestVoteReq decides whether to grant a vote to "from" for the
// term and log position it advertises.
func HandleRequestVoteReq(s *RoleState, from NodeId, m Message, a *Actions) {
	applyUniversalTermRule(s, m.Term, a)

	if m.Term < s.CurrentTerm {
		a.Send(from, Message{Type: MsgRequestVoteRep, Term: s.CurrentTerm, VoteGranted: false})
		return
	}

	alreadyVotedElsewhere := s.VotedFor != nil && *s.VotedFor != from
	candidateUpToDate := m.LastLogTerm > s.LastLogTerm() ||
		(m.LastLogTerm == s.LastLogTerm() && m.LastLogIndex >= s.LastLogIndex())

	if alreadyVotedElsewhere || !candidateUpToDate {
		a.Send(from, Message{Type: MsgRequestVoteRep, Term: s.CurrentTerm, VoteGranted: false})
		return
	}

	s.VotedFor = &from
	a.Persist()
	a.SetElectionTimer()
	a.Send(from, Message{Type: MsgRequestVoteRep, Term: s.CurrentTerm, VoteGranted: true})
}

// HandleRequestVoteRep processes a reply to a RequestVote RPC this node
// previously sent as Candidate.
func HandleRequestVoteRep(s *RoleState, from NodeId, m Message, a *Actions) {
	applyUniversalTermRule(s, m.Term, a)

	if s.Role != Candidate {
		return
	}
	if m.Term != s.CurrentTerm || !m.VoteGranted {
		return
	}

	s.VotesReceived[from] = struct{}{}
	if len(s.VotesReceived) >= s.Majority() {
		transitionToLeader(s, a)
	}
}
